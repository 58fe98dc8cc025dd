package risk

import (
	"math/big"
	"time"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// AggregatorConfig carries the parametric VaR inputs.
type AggregatorConfig struct {
	// DailyVolatility is the assumed 1-day underlying move. Default 2%.
	DailyVolatility *big.Int
	// VolOfVol is the assumed 1-day volatility-of-volatility. Default 20%.
	VolOfVol *big.Int
}

// Aggregator recomputes an owner's portfolio risk from scratch on every
// call. Nothing is patched incrementally, so interleaved updates can never
// leave a drifted aggregate. The portfolio holds no position objects; the
// caller iterates the owner's indexed position set and passes the records in.
type Aggregator struct {
	cfg AggregatorConfig
	log *logger.Logger
}

// z-score for 95% one-sided confidence, in thousandths.
var (
	var95Numerator   = big.NewInt(1645)
	var95Denominator = big.NewInt(1000)
	drawdownSlope    = big.NewInt(4e16) // 4% of |delta|
)

// NewAggregator creates a portfolio risk aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.DailyVolatility == nil || cfg.DailyVolatility.Sign() <= 0 {
		cfg.DailyVolatility = big.NewInt(2e16) // 2%
	}
	if cfg.VolOfVol == nil || cfg.VolOfVol.Sign() <= 0 {
		cfg.VolOfVol = big.NewInt(2e17) // 20%
	}
	return &Aggregator{cfg: cfg, log: logger.GetLogger("risk.portfolio")}
}

// Aggregate builds the portfolio risk for one owner from its active
// positions. Non-active records are skipped, which keeps liquidated and
// closed positions out of every aggregate by construction.
//
// The portfolio Sharpe ratio is deliberately absent: the upstream system
// carried a hardcoded placeholder and this engine does not present fixed
// constants as analytics.
func (a *Aggregator) Aggregate(owner string, positions []*models.PositionRisk, now time.Time) *models.PortfolioRisk {
	p := &models.PortfolioRisk{
		Owner:              owner,
		TotalNotional:      new(big.Int),
		Greeks:             models.ZeroGreeks(),
		PortfolioVaR:       new(big.Int),
		MaxDrawdown:        new(big.Int),
		UnderlyingExposure: make(map[string]*big.Int),
		LastUpdate:         now,
	}

	var scoreSum int64
	for _, pos := range positions {
		if pos.Status != models.PositionStatusActive {
			continue
		}
		p.TotalNotional.Add(p.TotalNotional, pos.NotionalValue)
		p.Greeks.Delta.Add(p.Greeks.Delta, pos.Greeks.Delta)
		p.Greeks.Gamma.Add(p.Greeks.Gamma, pos.Greeks.Gamma)
		p.Greeks.Theta.Add(p.Greeks.Theta, pos.Greeks.Theta)
		p.Greeks.Vega.Add(p.Greeks.Vega, pos.Greeks.Vega)
		p.Greeks.Rho.Add(p.Greeks.Rho, pos.Greeks.Rho)

		exposure, ok := p.UnderlyingExposure[pos.Spec.Underlying]
		if !ok {
			exposure = new(big.Int)
			p.UnderlyingExposure[pos.Spec.Underlying] = exposure
		}
		exposure.Add(exposure, pos.NotionalValue)

		scoreSum += pos.RiskScore
		p.PositionCount++
	}

	if p.PositionCount > 0 {
		p.PortfolioRiskScore = scoreSum / int64(p.PositionCount)
	}
	p.PortfolioRiskLevel = models.RiskLevelFromScore(p.PortfolioRiskScore)

	p.PortfolioVaR = a.valueAtRisk(p.Greeks)
	p.MaxDrawdown = a.drawdownProxy(p.Greeks)

	return p
}

// valueAtRisk is the simplified 1-day 95% parametric estimate:
// 1.645 * sqrt(deltaVaR^2 + vegaVaR^2 + deltaVaR*vegaVaR), where
// deltaVaR = |sum delta| * dailyVol and vegaVaR = |sum vega| * volOfVol.
func (a *Aggregator) valueAtRisk(g models.Greeks) *big.Int {
	deltaVaR := fixedmath.Mul(new(big.Int).Abs(g.Delta), a.cfg.DailyVolatility)
	vegaVaR := fixedmath.Mul(new(big.Int).Abs(g.Vega), a.cfg.VolOfVol)

	// Raw products carry scale^2, so their square root lands back on the
	// fixed scale without rescaling.
	inner := new(big.Int).Mul(deltaVaR, deltaVaR)
	inner.Add(inner, new(big.Int).Mul(vegaVaR, vegaVaR))
	inner.Add(inner, new(big.Int).Mul(deltaVaR, vegaVaR))

	root, err := fixedmath.Sqrt(inner)
	if err != nil {
		// Unreachable: inner is a sum of non-negative products.
		a.log.Errorf("VaR square root failed: %v", err)
		return new(big.Int)
	}
	root.Mul(root, var95Numerator)
	return root.Quo(root, var95Denominator)
}

// drawdownProxy estimates worst-day decay as |theta| plus 4% of |delta|.
func (a *Aggregator) drawdownProxy(g models.Greeks) *big.Int {
	d := new(big.Int).Abs(g.Theta)
	return d.Add(d, fixedmath.Mul(new(big.Int).Abs(g.Delta), drawdownSlope))
}
