// Command feed-simulator publishes random-walk market ticks so the risk
// engine can be exercised without a live market-data vendor.
package main

import (
	"context"
	"flag"
	"math/big"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dominichackett/alphaoptions-sub000/config"
	"github.com/dominichackett/alphaoptions-sub000/internal/feed"
	"github.com/dominichackett/alphaoptions-sub000/internal/kafka"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

var (
	symbolsFlag  = flag.String("symbols", "ETH,BTC", "comma-separated underlyings to simulate")
	intervalFlag = flag.Duration("interval", time.Second, "tick publication interval")
	basePrice    = flag.Int64("base", 3000, "starting price in whole currency units")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger("feed-simulator.main").Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("feed-simulator.main")

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		BatchTimeout: cfg.Kafka.Producer.BatchTimeout,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
	})
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	symbols := strings.Split(*symbolsFlag, ",")
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	prices := make(map[string]*big.Int, len(symbols))
	for _, s := range symbols {
		prices[s] = new(big.Int).Mul(big.NewInt(*basePrice), scale)
	}

	log.Infof("Publishing ticks for %v every %s", symbols, *intervalFlag)

	ticker := time.NewTicker(*intervalFlag)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				price := walk(prices[symbol])
				prices[symbol] = price
				tick := feed.Tick{Symbol: symbol, Price: price, Timestamp: time.Now()}
				if err := producer.ProduceJSON(ctx, cfg.Kafka.Topics.MarketData, symbol, tick); err != nil {
					log.Warnf("Tick publish failed for %s: %v", symbol, err)
				}
			}
		}
	}
}

// walk applies a random move of up to +/-0.5% and keeps the price positive.
func walk(price *big.Int) *big.Int {
	bp := rand.Int63n(101) - 50
	move := new(big.Int).Mul(price, big.NewInt(bp))
	move.Quo(move, big.NewInt(10000))
	next := new(big.Int).Add(price, move)
	if next.Sign() <= 0 {
		return price
	}
	return next
}
