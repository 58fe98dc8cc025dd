package kafka

import (
	"context"

	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Dispatcher hands validated liquidation requests to the custody side over
// the liquidations topic. Execute returns only after the brokers have
// acknowledged the record, which is the durability guarantee the engine
// requires before it deletes the position.
type Dispatcher struct {
	producer *Producer
	topic    string
	log      *logger.Logger
}

// NewDispatcher creates a liquidation dispatcher on the given producer.
func NewDispatcher(producer *Producer, topic string) *Dispatcher {
	if topic == "" {
		topic = TopicLiquidations
	}
	return &Dispatcher{
		producer: producer,
		topic:    topic,
		log:      logger.GetLogger("kafka.liquidations"),
	}
}

// Execute publishes the request keyed by owner so one owner's liquidations
// stay ordered.
func (d *Dispatcher) Execute(ctx context.Context, req models.LiquidationRequest) error {
	if err := d.producer.ProduceJSON(ctx, d.topic, req.Owner, req); err != nil {
		d.log.Errorw("liquidation dispatch failed", "position", req.PositionID, "error", err)
		return err
	}
	d.log.Infow("liquidation dispatched", "position", req.PositionID, "owner", req.Owner, "reason", req.Reason)
	return nil
}
