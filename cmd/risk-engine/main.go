package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dominichackett/alphaoptions-sub000/config"
	"github.com/dominichackett/alphaoptions-sub000/internal/feed"
	"github.com/dominichackett/alphaoptions-sub000/internal/kafka"
	"github.com/dominichackett/alphaoptions-sub000/internal/risk"
	"github.com/dominichackett/alphaoptions-sub000/internal/websocket"
	"github.com/dominichackett/alphaoptions-sub000/pkg/api"
	"github.com/dominichackett/alphaoptions-sub000/pkg/metrics"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// fanoutSink delivers alerts to every configured sink.
type fanoutSink []risk.AlertSink

func (f fanoutSink) Publish(alert models.RiskAlert) {
	for _, sink := range f {
		sink.Publish(alert)
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger("risk-engine.main").Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("risk-engine.main")
	log.Infof("Starting %s", cfg.App.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := metrics.NewRecorder()

	// Price cache fed by the market-data topic.
	priceCache := feed.NewCache()

	// Kafka producer shared by the liquidation dispatcher and the risk
	// publisher.
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		BatchTimeout: cfg.Kafka.Producer.BatchTimeout,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
	})
	defer producer.Close()

	dispatcher := kafka.NewDispatcher(producer, cfg.Kafka.Topics.Liquidations)
	riskPublisher := kafka.NewRiskPublisher(producer, cfg.Kafka.Topics.PortfolioRisk, cfg.Kafka.Topics.Alerts)

	engine := risk.NewEngine(risk.EngineConfig{
		Evaluator: risk.EvaluatorConfig{
			DefaultImpliedVol:   mustFixed(cfg.Risk.DefaultImpliedVol),
			DefaultRiskFreeRate: mustFixed(cfg.Risk.DefaultRiskFreeRate),
			EmergencyMultiplier: cfg.Risk.EmergencyMultiplier,
		},
		Aggregator: risk.AggregatorConfig{
			DailyVolatility: mustFixed(cfg.Risk.DailyVolatility),
			VolOfVol:        mustFixed(cfg.Risk.VolOfVol),
		},
		DefaultLimits:       defaultLimits(cfg.Limits),
		PriceStalenessBound: cfg.Risk.PriceStalenessBound,
		RefreshWorkers:      cfg.Risk.RefreshWorkers,
	}, priceCache, dispatcher, recorder)

	// Alert hub for websocket monitoring clients.
	hub := websocket.NewHub()
	go hub.Run(ctx)
	engine.SetAlertSink(fanoutSink{hub, riskPublisher})

	// Market data and conditions consumers.
	if cfg.Feed.Enabled {
		tickConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.Consumer.GroupID,
			Topic:   cfg.Kafka.Topics.MarketData,
			MaxWait: cfg.Kafka.Consumer.MaxWait,
		})
		defer tickConsumer.Close()
		go func() {
			if err := tickConsumer.Run(ctx, priceCache.HandleTick); err != nil {
				log.Errorf("Market data consumer stopped: %v", err)
			}
		}()

		condConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.Consumer.GroupID,
			Topic:   cfg.Kafka.Topics.Conditions,
			MaxWait: cfg.Kafka.Consumer.MaxWait,
		})
		defer condConsumer.Close()
		go func() {
			err := condConsumer.Run(ctx, func(_ context.Context, msg kafkago.Message) error {
				var cond models.MarketConditions
				if err := json.Unmarshal(msg.Value, &cond); err != nil {
					return err
				}
				engine.SetMarketConditions(cond)
				return nil
			})
			if err != nil {
				log.Errorf("Conditions consumer stopped: %v", err)
			}
		}()
	}

	// Periodic full refresh with portfolio publication.
	go func() {
		ticker := time.NewTicker(cfg.Risk.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				failures := engine.RefreshAll(ctx)
				for owner, err := range failures {
					log.Warnf("Refresh failed for owner %s: %v", owner, err)
				}
				for _, owner := range engine.Owners() {
					if p, err := engine.Portfolio(owner); err == nil {
						riskPublisher.PublishPortfolio(ctx, p)
					}
				}
			}
		}
	}()

	server := api.NewServer(api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		RateLimit:    cfg.API.RateLimit,
		RateBurst:    cfg.API.RateBurst,
	}, engine, hub, recorder)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// Wait for termination.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received signal %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Errorf("API server shutdown failed: %v", err)
	}
	cancel()
	log.Sync()
}

// mustFixed parses a decimal string at the 18-decimal scale. Config
// defaults guarantee a parseable value; a broken override should stop the
// process at startup.
func mustFixed(s string) *big.Int {
	if s == "" || s == "0" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		logger.GetLogger("risk-engine.main").Fatalf("Invalid fixed-point value in configuration: %q", s)
	}
	return v
}

func defaultLimits(cfg config.LimitsConfig) models.RiskLimits {
	return models.RiskLimits{
		MaxPositionSize:    mustFixed(cfg.MaxPositionSize),
		MaxPortfolioSize:   mustFixed(cfg.MaxPortfolioSize),
		MaxDelta:           mustFixed(cfg.MaxDelta),
		MaxGamma:           mustFixed(cfg.MaxGamma),
		MaxVega:            mustFixed(cfg.MaxVega),
		MaxVaR:             mustFixed(cfg.MaxVaR),
		ConcentrationLimit: cfg.ConcentrationLimit,
		IsActive:           true,
	}
}
