package kafka

import (
	"context"
	"time"

	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/circuit"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// RiskPublisher pushes portfolio aggregates and risk alerts to downstream
// monitoring consumers. Publishing is best effort: a broker outage must not
// block a risk recompute, so writes run behind a circuit breaker and
// failures are logged and dropped.
type RiskPublisher struct {
	producer       *Producer
	portfolioTopic string
	alertTopic     string
	timeout        time.Duration
	breaker        *circuit.Breaker
	log            *logger.Logger
}

// NewRiskPublisher creates a publisher on the given producer.
func NewRiskPublisher(producer *Producer, portfolioTopic, alertTopic string) *RiskPublisher {
	if portfolioTopic == "" {
		portfolioTopic = TopicPortfolioRisk
	}
	if alertTopic == "" {
		alertTopic = TopicAlerts
	}
	return &RiskPublisher{
		producer:       producer,
		portfolioTopic: portfolioTopic,
		alertTopic:     alertTopic,
		timeout:        5 * time.Second,
		breaker:        circuit.NewBreaker("kafka-risk-publisher", circuit.Config{}),
		log:            logger.GetLogger("kafka.risk"),
	}
}

// PublishPortfolio sends the latest aggregate for one owner.
func (p *RiskPublisher) PublishPortfolio(ctx context.Context, portfolio *models.PortfolioRisk) {
	err := p.breaker.Do(func() error {
		return p.producer.ProduceJSON(ctx, p.portfolioTopic, portfolio.Owner, portfolio)
	})
	if err != nil {
		p.log.Warnw("portfolio publish failed", "owner", portfolio.Owner, "error", err)
	}
}

// Publish sends a risk alert. Satisfies the engine's alert sink.
func (p *RiskPublisher) Publish(alert models.RiskAlert) {
	err := p.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		return p.producer.ProduceJSON(ctx, p.alertTopic, alert.Owner, alert)
	})
	if err != nil {
		p.log.Warnw("alert publish failed", "type", string(alert.Type), "owner", alert.Owner, "error", err)
	}
}
