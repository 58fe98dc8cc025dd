package risk

import (
	"context"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/internal/store"
	"github.com/dominichackett/alphaoptions-sub000/pkg/metrics"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// PriceFeed is the external price lookup collaborator. The engine treats it
// as a blocking synchronous call and enforces its own staleness bound on
// the returned timestamp.
type PriceFeed interface {
	GetPrice(ctx context.Context, symbol string) (price *big.Int, asOf time.Time, err error)
}

// LiquidationExecutor is the custody collaborator. Execute must not return
// until the request has been durably accepted; the engine deletes the
// position record only after that acknowledgement.
type LiquidationExecutor interface {
	Execute(ctx context.Context, req models.LiquidationRequest) error
}

// AlertSink receives risk alerts on notable transitions. Optional.
type AlertSink interface {
	Publish(alert models.RiskAlert)
}

// EngineConfig bundles the engine-level knobs.
type EngineConfig struct {
	Evaluator  EvaluatorConfig
	Aggregator AggregatorConfig
	// DefaultLimits is the fallback RiskLimits record for owners without
	// their own.
	DefaultLimits models.RiskLimits
	// PriceStalenessBound rejects quotes older than this. Default 1m.
	PriceStalenessBound time.Duration
	// RefreshWorkers bounds batch refresh parallelism. Default 4.
	RefreshWorkers int
}

// Engine is the risk and pricing engine core: it owns the position
// registry, recomputes position and portfolio risk, and makes admission,
// margin-call and liquidation decisions. Mutations to one owner's records
// are serialized through a per-owner lock; every operation either commits a
// full recompute or fails without touching stored state.
type Engine struct {
	cfg        EngineConfig
	store      *store.PositionStore
	evaluator  *Evaluator
	aggregator *Aggregator
	limits     *LimitEngine
	feed       PriceFeed
	executor   LiquidationExecutor
	recorder   *metrics.Recorder
	log        *logger.Logger

	lockMu     sync.Mutex
	ownerLocks map[string]*sync.Mutex

	condMu     sync.RWMutex
	conditions models.MarketConditions

	alertMu sync.RWMutex
	alerts  AlertSink
}

// NewEngine creates the risk engine. feed is required; executor may be nil
// when the deployment has no custody collaborator, in which case
// TriggerLiquidation refuses to run. A nil recorder gets replaced with one
// whose metrics are not registered anywhere.
func NewEngine(cfg EngineConfig, feed PriceFeed, executor LiquidationExecutor, recorder *metrics.Recorder) *Engine {
	if cfg.PriceStalenessBound <= 0 {
		cfg.PriceStalenessBound = time.Minute
	}
	if cfg.RefreshWorkers <= 0 {
		cfg.RefreshWorkers = 4
	}
	if recorder == nil {
		recorder = metrics.NewRecorderWith(nil)
	}
	return &Engine{
		cfg:        cfg,
		store:      store.NewPositionStore(),
		evaluator:  NewEvaluator(cfg.Evaluator, NewGreeksCalculator()),
		aggregator: NewAggregator(cfg.Aggregator),
		limits:     NewLimitEngine(cfg.DefaultLimits),
		feed:       feed,
		executor:   executor,
		recorder:   recorder,
		ownerLocks: make(map[string]*sync.Mutex),
		log:        logger.GetLogger("risk.engine"),
	}
}

// SetAlertSink installs the alert broadcaster.
func (e *Engine) SetAlertSink(sink AlertSink) {
	e.alertMu.Lock()
	defer e.alertMu.Unlock()
	e.alerts = sink
}

// SetMarketConditions replaces the market-wide stress snapshot. An extreme
// reading raises the emergency flag for every subsequent recompute.
func (e *Engine) SetMarketConditions(cond models.MarketConditions) {
	cond.LastUpdate = time.Now()

	e.condMu.Lock()
	wasEmergency := e.conditions.IsEmergency()
	e.conditions = cond
	e.condMu.Unlock()

	if cond.IsEmergency() && !wasEmergency {
		e.log.Warnw("emergency risk mode raised",
			"vix", cond.VIX.String(), "liquidity", cond.LiquidityScore.String())
		e.publishAlert(models.RiskAlert{
			Type:      models.AlertTypeEmergency,
			Level:     models.RiskLevelCritical,
			Message:   "emergency risk mode active: scores multiplied until conditions normalize",
			Timestamp: cond.LastUpdate,
		})
	}
}

// MarketConditions returns the current stress snapshot.
func (e *Engine) MarketConditions() models.MarketConditions {
	e.condMu.RLock()
	defer e.condMu.RUnlock()
	return e.conditions
}

// SetRiskLimits installs a per-owner limits record.
func (e *Engine) SetRiskLimits(owner string, limits models.RiskLimits) {
	e.limits.SetOwnerLimits(owner, limits)
}

// SetDefaultRiskLimits replaces the fallback limits record.
func (e *Engine) SetDefaultRiskLimits(limits models.RiskLimits) {
	e.limits.SetDefaultLimits(limits)
}

// SetAssetRiskConfig installs per-underlying parameters.
func (e *Engine) SetAssetRiskConfig(symbol string, cfg models.AssetRiskConfig) {
	e.limits.SetAssetConfig(symbol, cfg)
}

// Position returns the stored risk record for a position id.
func (e *Engine) Position(id string) (*models.PositionRisk, error) {
	return e.store.Get(id)
}

// Portfolio returns the stored aggregate for an owner.
func (e *Engine) Portfolio(owner string) (*models.PortfolioRisk, error) {
	return e.store.GetPortfolio(owner)
}

// Owners returns every owner with at least one registered position.
func (e *Engine) Owners() []string {
	return e.store.Owners()
}

// AddPosition registers a position created by the order-matching
// collaborator and computes its initial risk. Fails with DuplicateID when
// the id is already registered.
func (e *Engine) AddPosition(ctx context.Context, id, owner string, spec models.OptionSpec, notional *big.Int) (*models.PositionRisk, error) {
	start := time.Now()
	unlock := e.lockOwner(owner)
	defer unlock()

	pos, err := func() (*models.PositionRisk, error) {
		if _, err := e.store.Get(id); err == nil {
			return nil, errors.DuplicateID(id)
		}

		price, err := e.fetchPrice(ctx, spec.Underlying)
		if err != nil {
			return nil, err
		}

		pos, err := e.evaluator.Evaluate(id, owner, spec, price, notional, e.limits.AssetConfig(spec.Underlying), e.MarketConditions(), time.Now())
		if err != nil {
			return nil, err
		}
		if err := e.store.Insert(pos); err != nil {
			return nil, err
		}
		e.recomputePortfolio(owner, pos.LastUpdate)
		return pos, nil
	}()

	e.observe("add_position", err, start)
	if err != nil {
		return nil, err
	}

	e.log.Infow("position registered",
		"id", id, "owner", owner, "underlying", spec.Underlying,
		"score", pos.RiskScore, "level", pos.RiskLevel.String())
	e.notifyIfCritical(pos)
	return pos, nil
}

// RemovePosition deletes a closed position and recomputes the owner's
// portfolio. Fails with NotFound for unknown ids.
func (e *Engine) RemovePosition(ctx context.Context, id string) error {
	pos, err := e.store.Get(id)
	if err != nil {
		return err
	}

	unlock := e.lockOwner(pos.Owner)
	defer unlock()

	// The record may have been removed while we waited for the lock.
	pos, err = e.store.Get(id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(id); err != nil {
		return err
	}
	pos.Status = models.PositionStatusClosed
	e.recomputePortfolio(pos.Owner, time.Now())
	e.log.Infow("position removed", "id", id, "owner", pos.Owner)
	return nil
}

// RefreshPosition re-prices one position against the current market and
// recomputes the owner's portfolio. No stored state changes when any step
// fails. A recompute that lands on Critical triggers the liquidation check
// as a side effect and surfaces the outcome as an alert.
func (e *Engine) RefreshPosition(ctx context.Context, id string) (*models.PositionRisk, error) {
	start := time.Now()
	current, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}

	unlock := e.lockOwner(current.Owner)
	defer unlock()

	pos, err := func() (*models.PositionRisk, error) {
		price, err := e.fetchPrice(ctx, current.Spec.Underlying)
		if err != nil {
			return nil, err
		}
		pos, err := e.evaluator.Evaluate(current.ID, current.Owner, current.Spec, price, current.NotionalValue,
			e.limits.AssetConfig(current.Spec.Underlying), e.MarketConditions(), time.Now())
		if err != nil {
			return nil, err
		}
		if err := e.store.Update(pos); err != nil {
			return nil, err
		}
		e.recomputePortfolio(pos.Owner, pos.LastUpdate)
		return pos, nil
	}()

	e.observe("refresh_position", err, start)
	if err != nil {
		return nil, err
	}

	if pos.RiskLevel != current.RiskLevel {
		e.publishAlert(models.RiskAlert{
			Type:       models.AlertTypeLevelChange,
			PositionID: pos.ID,
			Owner:      pos.Owner,
			Level:      pos.RiskLevel,
			Message:    "risk level " + current.RiskLevel.String() + " -> " + pos.RiskLevel.String(),
			Timestamp:  pos.LastUpdate,
		})
	}
	e.notifyIfCritical(pos)
	return pos, nil
}

// RefreshOwner re-prices every position of one owner and commits all of
// them together with the portfolio recompute, or nothing at all.
func (e *Engine) RefreshOwner(ctx context.Context, owner string) error {
	start := time.Now()
	unlock := e.lockOwner(owner)
	defer unlock()

	err := func() error {
		positions := e.store.ListByOwner(owner)
		now := time.Now()

		refreshed := make([]*models.PositionRisk, 0, len(positions))
		for _, current := range positions {
			price, err := e.fetchPrice(ctx, current.Spec.Underlying)
			if err != nil {
				return err
			}
			pos, err := e.evaluator.Evaluate(current.ID, current.Owner, current.Spec, price, current.NotionalValue,
				e.limits.AssetConfig(current.Spec.Underlying), e.MarketConditions(), now)
			if err != nil {
				return err
			}
			refreshed = append(refreshed, pos)
		}

		// All positions evaluated cleanly; commit in one pass.
		for _, pos := range refreshed {
			if err := e.store.Update(pos); err != nil {
				return err
			}
		}
		e.recomputePortfolio(owner, now)
		return nil
	}()

	e.observe("refresh_owner", err, start)
	return err
}

// RefreshAll re-prices every owner's book. Owners are processed
// independently with bounded parallelism; one owner's failure never aborts
// the others. The returned map carries the per-owner failures, empty on a
// clean pass.
func (e *Engine) RefreshAll(ctx context.Context) map[string]error {
	owners := e.store.Owners()

	var mu sync.Mutex
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.RefreshWorkers)
	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			if err := e.RefreshOwner(gctx, owner); err != nil {
				mu.Lock()
				failures[owner] = err
				mu.Unlock()
				e.log.Warnw("owner refresh failed", "owner", owner, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// CanOpenPosition runs the admission check for a prospective position
// without registering anything. A nil return admits the trade; otherwise
// the error names the breached limit and the excess.
func (e *Engine) CanOpenPosition(owner string, spec models.OptionSpec, notional *big.Int) error {
	portfolio, _ := e.store.GetPortfolio(owner)
	err := e.limits.CanOpenPosition(owner, spec, notional, portfolio, e.MarketConditions())
	if err != nil {
		if engErr, ok := err.(*errors.EngineError); ok && engErr.Limit != "" {
			e.recorder.RecordRejection(engErr.Limit)
		}
		e.log.Infow("admission rejected", "owner", owner, "underlying", spec.Underlying, "error", err)
	}
	return err
}

// CheckLiquidation reports whether the position currently qualifies for
// liquidation, and why.
func (e *Engine) CheckLiquidation(id string) (bool, string, error) {
	pos, err := e.store.Get(id)
	if err != nil {
		return false, "", err
	}
	portfolio, _ := e.store.GetPortfolio(pos.Owner)
	eligible, reason := e.limits.CheckLiquidation(pos, portfolio)
	return eligible, reason, nil
}

// TriggerLiquidation re-validates the liquidation condition, dispatches the
// request to the custody collaborator, and deletes the position record only
// after the collaborator acknowledged. Fails with LiquidationNotJustified
// when no qualifying condition holds.
func (e *Engine) TriggerLiquidation(ctx context.Context, id string) error {
	if e.executor == nil {
		return errors.InvalidInput("no liquidation executor configured")
	}
	pos, err := e.store.Get(id)
	if err != nil {
		return err
	}

	unlock := e.lockOwner(pos.Owner)
	defer unlock()

	// Re-fetch and re-validate under the owner lock; the record may have
	// been removed and the book may have moved while we waited. Nothing is
	// dispatched to custody for a position that no longer exists.
	pos, err = e.store.Get(id)
	if err != nil {
		return err
	}
	portfolio, _ := e.store.GetPortfolio(pos.Owner)
	eligible, reason := e.limits.CheckLiquidation(pos, portfolio)
	if !eligible {
		return errors.LiquidationNotJustified(id)
	}

	req := models.LiquidationRequest{
		PositionID: pos.ID,
		Owner:      pos.Owner,
		Reason:     reason,
		RiskScore:  pos.RiskScore,
		Timestamp:  time.Now(),
	}
	if err := e.executor.Execute(ctx, req); err != nil {
		return errors.Wrap(err, "custody collaborator rejected liquidation request")
	}

	pos.Status = models.PositionStatusLiquidated
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.recomputePortfolio(pos.Owner, req.Timestamp)

	e.recorder.RecordLiquidation(reason)
	e.log.Warnw("position liquidated", "id", id, "owner", pos.Owner, "reason", reason)
	e.publishAlert(models.RiskAlert{
		Type:       models.AlertTypeLiquidation,
		PositionID: pos.ID,
		Owner:      pos.Owner,
		Level:      pos.RiskLevel,
		Message:    "liquidated: " + reason,
		Timestamp:  req.Timestamp,
	})
	return nil
}

// recomputePortfolio rebuilds the owner's aggregate from the indexed
// position set. Callers hold the owner lock.
func (e *Engine) recomputePortfolio(owner string, now time.Time) {
	positions := e.store.ListByOwner(owner)
	if len(positions) == 0 {
		e.store.DeletePortfolio(owner)
		e.recorder.ClearPortfolio(owner)
		e.recorder.SetActivePositions(e.store.Count())
		return
	}

	p := e.aggregator.Aggregate(owner, positions, now)
	e.store.SavePortfolio(p)
	e.recorder.SetPortfolio(owner, fixedToFloat(p.PortfolioVaR), p.PortfolioRiskScore)
	e.recorder.SetActivePositions(e.store.Count())

	if called, why := e.limits.CheckMarginCall(p); called {
		e.recorder.RecordMarginCall()
		e.publishAlert(models.RiskAlert{
			Type:      models.AlertTypeMarginCall,
			Owner:     owner,
			Level:     p.PortfolioRiskLevel,
			Message:   "margin call: " + why,
			Timestamp: now,
		})
	}
}

// fetchPrice queries the feed and enforces the staleness bound.
func (e *Engine) fetchPrice(ctx context.Context, symbol string) (*big.Int, error) {
	price, asOf, err := e.feed.GetPrice(ctx, symbol)
	if err != nil {
		e.recorder.RecordPriceFailure()
		return nil, errors.Wrap(errors.PriceUnavailable("feed error for %s", symbol), err.Error())
	}
	if age := time.Since(asOf); age > e.cfg.PriceStalenessBound {
		e.recorder.RecordPriceFailure()
		return nil, errors.PriceUnavailable("quote for %s is %s old, bound %s", symbol, age, e.cfg.PriceStalenessBound)
	}
	if price == nil || price.Sign() <= 0 {
		e.recorder.RecordPriceFailure()
		return nil, errors.InvalidInput("feed returned non-positive price for %s", symbol)
	}
	return price, nil
}

// notifyIfCritical runs the liquidation check for a freshly Critical
// position and surfaces the outcome. The engine never liquidates on its
// own; an authorized collaborator must confirm via TriggerLiquidation.
func (e *Engine) notifyIfCritical(pos *models.PositionRisk) {
	if pos.RiskLevel != models.RiskLevelCritical {
		return
	}
	portfolio, _ := e.store.GetPortfolio(pos.Owner)
	eligible, reason := e.limits.CheckLiquidation(pos, portfolio)
	msg := "position risk critical"
	if eligible {
		msg = "position liquidation-eligible: " + reason
	}
	e.publishAlert(models.RiskAlert{
		Type:       models.AlertTypeLevelChange,
		PositionID: pos.ID,
		Owner:      pos.Owner,
		Level:      pos.RiskLevel,
		Message:    msg,
		Timestamp:  pos.LastUpdate,
	})
}

func (e *Engine) publishAlert(alert models.RiskAlert) {
	e.alertMu.RLock()
	sink := e.alerts
	e.alertMu.RUnlock()
	if sink != nil {
		sink.Publish(alert)
	}
}

func (e *Engine) observe(operation string, err error, start time.Time) {
	e.recorder.RecordComputation(operation, err, time.Since(start))
}

// lockOwner serializes mutations to one owner's book.
func (e *Engine) lockOwner(owner string) func() {
	e.lockMu.Lock()
	l, ok := e.ownerLocks[owner]
	if !ok {
		l = &sync.Mutex{}
		e.ownerLocks[owner] = l
	}
	e.lockMu.Unlock()

	l.Lock()
	return l.Unlock
}

func fixedToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(fixedmath.Scale)).Float64()
	return f
}
