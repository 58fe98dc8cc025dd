package risk

import (
	"math/big"
	"time"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Scoring thresholds. Each bucket contributes independently and the total
// is capped at models.MaxRiskScore.
var (
	moneynessWide   = big.NewInt(110e16) // 110%
	moneynessNear   = big.NewInt(105e16) // 105%
	volExtreme      = fixedmath.FromInt(1)          // 100%
	volElevated     = big.NewInt(5e17)              // 50%
	deltaExposure   = big.NewInt(5e17)              // |delta| > 0.5
	gammaExposure   = fixedmath.FromInt(1)          // |gamma| > 1.0
	vegaExposure    = fixedmath.FromInt(10)         // |vega| > 10
	notionalLarge   = fixedmath.FromInt(1_000_000)  // $1M
	notionalMedium  = fixedmath.FromInt(100_000)    // $100K
)

const (
	expiryNear = 7 * 24 * 3600  // 7 days
	expirySoon = 30 * 24 * 3600 // 30 days
)

// EvaluatorConfig carries the engine-wide evaluation defaults. Per-asset
// overrides come from AssetRiskConfig.
type EvaluatorConfig struct {
	DefaultImpliedVol   *big.Int
	DefaultRiskFreeRate *big.Int
	// EmergencyMultiplier scales the summed score when the market-wide
	// emergency flag is raised. Defaults to 2.
	EmergencyMultiplier int64
}

// Evaluator turns an option position and its market context into a
// PositionRisk. It is stateless: market conditions arrive as an explicit
// argument on every call, never as hidden globals.
type Evaluator struct {
	cfg    EvaluatorConfig
	greeks *GreeksCalculator
	log    *logger.Logger
}

// NewEvaluator creates a position risk evaluator.
func NewEvaluator(cfg EvaluatorConfig, greeks *GreeksCalculator) *Evaluator {
	if cfg.DefaultImpliedVol == nil || cfg.DefaultImpliedVol.Sign() <= 0 {
		cfg.DefaultImpliedVol = big.NewInt(5e17) // 50%
	}
	if cfg.DefaultRiskFreeRate == nil {
		cfg.DefaultRiskFreeRate = big.NewInt(5e16) // 5%
	}
	if cfg.EmergencyMultiplier <= 0 {
		cfg.EmergencyMultiplier = 2
	}
	return &Evaluator{
		cfg:    cfg,
		greeks: greeks,
		log:    logger.GetLogger("risk.evaluator"),
	}
}

// Evaluate computes a fresh PositionRisk for one position. It never mutates
// stored state; the caller commits the result only when no error occurred.
func (e *Evaluator) Evaluate(
	id, owner string,
	spec models.OptionSpec,
	price, notional *big.Int,
	assetCfg *models.AssetRiskConfig,
	cond models.MarketConditions,
	now time.Time,
) (*models.PositionRisk, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, errors.InvalidInput("current price must be positive")
	}
	if notional == nil || notional.Sign() <= 0 {
		return nil, errors.InvalidInput("notional must be positive")
	}

	tte := spec.TimeToExpiry(now)

	impliedVol := e.cfg.DefaultImpliedVol
	rate := e.cfg.DefaultRiskFreeRate
	if assetCfg != nil {
		if assetCfg.BaseVolatility != nil && assetCfg.BaseVolatility.Sign() > 0 {
			impliedVol = assetCfg.BaseVolatility
		}
		if assetCfg.RiskFreeRate != nil {
			rate = assetCfg.RiskFreeRate
		}
	}

	greeks, err := e.greeks.Calculate(GreeksInput{
		OptionType:   spec.OptionType,
		Price:        price,
		Strike:       spec.StrikePrice,
		TimeToExpiry: tte,
		Volatility:   impliedVol,
		RiskFreeRate: rate,
		ContractSize: spec.ContractSize,
	})
	if err != nil {
		return nil, err
	}

	score := e.score(spec, price, notional, tte, impliedVol, greeks, cond)

	return &models.PositionRisk{
		ID:                id,
		Owner:             owner,
		Spec:              spec,
		NotionalValue:     new(big.Int).Set(notional),
		CurrentPrice:      new(big.Int).Set(price),
		TimeToExpiry:      tte,
		Greeks:            greeks,
		ImpliedVolatility: new(big.Int).Set(impliedVol),
		RiskScore:         score,
		RiskLevel:         models.RiskLevelFromScore(score),
		Status:            models.PositionStatusActive,
		LastUpdate:        now,
	}, nil
}

// score sums the independently capped risk components, applies the
// emergency multiplier, and caps the result at MaxRiskScore.
func (e *Evaluator) score(
	spec models.OptionSpec,
	price, notional *big.Int,
	tte int64,
	impliedVol *big.Int,
	greeks models.Greeks,
	cond models.MarketConditions,
) int64 {
	var score int64

	// Time to expiry: the shorter the runway, the higher the risk.
	switch {
	case tte < expiryNear:
		score += 2000
	case tte < expirySoon:
		score += 1000
	default:
		score += 500
	}

	// Moneyness: distance from the strike in either direction.
	ratio := moneynessRatio(price, spec.StrikePrice)
	switch {
	case ratio.Cmp(moneynessWide) > 0:
		score += 1500
	case ratio.Cmp(moneynessNear) > 0:
		score += 1000
	default:
		score += 500
	}

	// Volatility regime.
	switch {
	case impliedVol.Cmp(volExtreme) > 0:
		score += 2000
	case impliedVol.Cmp(volElevated) > 0:
		score += 1000
	default:
		score += 500
	}

	// Greeks exposure, 500 per breached sensitivity, at most 1500.
	if absCmp(greeks.Delta, deltaExposure) > 0 {
		score += 500
	}
	if absCmp(greeks.Gamma, gammaExposure) > 0 {
		score += 500
	}
	if absCmp(greeks.Vega, vegaExposure) > 0 {
		score += 500
	}

	// Market stress flags.
	if cond.IsHighVolatility() {
		score += 1000
	}
	if cond.IsMarketStress() {
		score += 1000
	}

	// Position size.
	switch {
	case notional.Cmp(notionalLarge) > 0:
		score += 1000
	case notional.Cmp(notionalMedium) > 0:
		score += 500
	}

	if cond.IsEmergency() {
		score *= e.cfg.EmergencyMultiplier
	}
	if score > models.MaxRiskScore {
		score = models.MaxRiskScore
	}
	return score
}

// moneynessRatio returns spot/strike or strike/spot, whichever is >= 1.
func moneynessRatio(price, strike *big.Int) *big.Int {
	hi, lo := price, strike
	if hi.Cmp(lo) < 0 {
		hi, lo = lo, hi
	}
	r, err := fixedmath.Div(hi, lo)
	if err != nil {
		// Strike positivity is validated upstream.
		return new(big.Int).Set(fixedmath.Scale)
	}
	return r
}

// absCmp compares |a| against b.
func absCmp(a, b *big.Int) int {
	return new(big.Int).Abs(a).Cmp(b)
}
