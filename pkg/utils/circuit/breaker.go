// Package circuit provides a minimal circuit breaker for best-effort
// outbound calls. The risk engine wraps its broker publishing with one so
// that a broker outage degrades to dropped telemetry instead of a write
// timeout on every recompute.
package circuit

import (
	"errors"
	"sync"
	"time"

	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// Config tunes the breaker thresholds.
type Config struct {
	// MaxFailures in a row before the breaker opens. Default 5.
	MaxFailures int
	// Cooldown before an open breaker lets a probe call through. Default 30s.
	Cooldown time.Duration
}

// Breaker is a consecutive-failure circuit breaker. Closed passes calls
// through; MaxFailures consecutive failures open it; after Cooldown one
// probe call runs half-open and its outcome decides the next state.
type Breaker struct {
	name        string
	cfg         Config
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
	log         *logger.Logger
}

// NewBreaker creates a breaker with the given name for log attribution.
func NewBreaker(name string, cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		log:  logger.GetLogger("circuit." + name),
	}
}

// Do runs fn unless the breaker is open. The fn error passes through
// unchanged; ErrOpen is returned without running fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		b.log.Infof("Breaker %s half-open, probing", b.name)
		return nil
	default: // StateHalfOpen
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state != StateClosed {
			b.log.Infof("Breaker %s closed", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	b.probing = false
	if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
		if b.state != StateOpen {
			b.log.Warnf("Breaker %s opened after %d consecutive failures", b.name, b.failures)
		}
		b.state = StateOpen
	}
}
