package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Handler processes one fetched message. A non-nil return is logged and the
// message is committed anyway; a poison record must never wedge the group.
type Handler func(ctx context.Context, msg kafkago.Message) error

// ConsumerConfig carries the reader settings for one topic subscription.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// Consumer wraps a consumer-group reader with a fetch/handle/commit loop.
type Consumer struct {
	reader *kafkago.Reader
	log    *logger.Logger
}

// NewConsumer creates a consumer-group reader for one topic.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
			MaxWait:  cfg.MaxWait,
		}),
		log: logger.GetLogger("kafka.consumer." + cfg.Topic),
	}
}

// Run fetches messages until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := handler(ctx, msg); err != nil {
			c.log.Warnw("message handler failed, skipping record",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// Close closes the underlying reader and leaves the group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
