// Package feed caches the latest quote per underlying. The market-data
// consumer writes into the cache and the risk engine reads from it; the
// engine applies its own staleness bound to the quote timestamp, so the
// cache never decides freshness on its own.
package feed

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

type quote struct {
	price *big.Int
	asOf  time.Time
}

// Cache is a concurrency-safe last-value price cache.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]quote
	log    *logger.Logger
}

// NewCache creates an empty price cache.
func NewCache() *Cache {
	return &Cache{
		quotes: make(map[string]quote),
		log:    logger.GetLogger("feed.cache"),
	}
}

// Set stores the latest quote for a symbol. Older ticks arriving out of
// order never overwrite a newer quote.
func (c *Cache) Set(symbol string, price *big.Int, asOf time.Time) {
	if price == nil || price.Sign() <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.quotes[symbol]; ok && existing.asOf.After(asOf) {
		return
	}
	c.quotes[symbol] = quote{price: new(big.Int).Set(price), asOf: asOf}
}

// GetPrice returns the cached quote for a symbol. Satisfies the engine's
// price feed contract.
func (c *Cache) GetPrice(_ context.Context, symbol string) (*big.Int, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return nil, time.Time{}, errors.PriceUnavailable("no quote for %s", symbol)
	}
	return new(big.Int).Set(q.price), q.asOf, nil
}

// Symbols returns the symbols with a cached quote.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quotes))
	for s := range c.quotes {
		out = append(out, s)
	}
	return out
}

// Tick is the wire form of one market-data record. Price is an integer at
// the engine's 18-decimal scale.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     *big.Int  `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleTick decodes one market-data record into the cache. Satisfies the
// kafka consumer handler contract.
func (c *Cache) HandleTick(_ context.Context, msg kafkago.Message) error {
	var t Tick
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return errors.Wrap(err, "decode market tick")
	}
	if t.Symbol == "" || t.Price == nil || t.Price.Sign() <= 0 {
		return errors.InvalidInput("tick missing symbol or positive price")
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = msg.Time
	}
	c.Set(t.Symbol, t.Price, t.Timestamp)
	return nil
}
