package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Default topic names. Overridable through configuration.
const (
	TopicMarketData    = "market.ticks"
	TopicConditions    = "market.conditions"
	TopicPortfolioRisk = "risk.portfolio"
	TopicAlerts        = "risk.alerts"
	TopicLiquidations  = "risk.liquidations"
)

// ProducerConfig carries the writer settings shared by every topic.
type ProducerConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Producer is a thin synchronous JSON publisher over one shared writer.
// WriteMessages blocks until the brokers acknowledge, which is what the
// liquidation path relies on.
type Producer struct {
	writer *kafkago.Writer
	log    *logger.Logger
}

// NewProducer creates a producer for the given brokers.
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Producer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Balancer:     &kafkago.Hash{},
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafkago.RequireAll,
		},
		log: logger.GetLogger("kafka.producer"),
	}
}

// ProduceJSON marshals v and publishes it to topic, keyed so that records
// for the same entity land on the same partition in order.
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal message for topic "+topic)
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "write to topic "+topic)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
