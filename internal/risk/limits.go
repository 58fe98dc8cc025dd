package risk

import (
	"math/big"
	"sync"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

var basisPoints = big.NewInt(10000)

// LimitEngine evaluates admission, margin-call and liquidation decisions
// against configured risk limits. Owners without an active limits record
// fall back to the default record.
type LimitEngine struct {
	mu            sync.RWMutex
	defaultLimits models.RiskLimits
	ownerLimits   map[string]models.RiskLimits
	assetConfigs  map[string]models.AssetRiskConfig
	log           *logger.Logger
}

// NewLimitEngine creates a limit engine seeded with the default limits.
func NewLimitEngine(defaults models.RiskLimits) *LimitEngine {
	return &LimitEngine{
		defaultLimits: defaults,
		ownerLimits:   make(map[string]models.RiskLimits),
		assetConfigs:  make(map[string]models.AssetRiskConfig),
		log:           logger.GetLogger("risk.limits"),
	}
}

// SetDefaultLimits replaces the fallback limits record.
func (le *LimitEngine) SetDefaultLimits(limits models.RiskLimits) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.defaultLimits = limits
}

// SetOwnerLimits installs a per-owner limits record.
func (le *LimitEngine) SetOwnerLimits(owner string, limits models.RiskLimits) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.ownerLimits[owner] = limits
}

// SetAssetConfig installs per-underlying risk parameters.
func (le *LimitEngine) SetAssetConfig(symbol string, cfg models.AssetRiskConfig) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.assetConfigs[symbol] = cfg
}

// LimitsFor returns the active limits record for an owner, falling back to
// the default record when the owner has none or theirs is inactive.
func (le *LimitEngine) LimitsFor(owner string) models.RiskLimits {
	le.mu.RLock()
	defer le.mu.RUnlock()
	if l, ok := le.ownerLimits[owner]; ok && l.IsActive {
		return l
	}
	return le.defaultLimits
}

// AssetConfig returns the per-underlying parameters, or nil when the symbol
// has no record.
func (le *LimitEngine) AssetConfig(symbol string) *models.AssetRiskConfig {
	le.mu.RLock()
	defer le.mu.RUnlock()
	if cfg, ok := le.assetConfigs[symbol]; ok {
		return &cfg
	}
	return nil
}

// CanOpenPosition decides admission for a new position. The returned error
// is a LimitExceeded carrying the breached limit and the excess; nil means
// the position may open. portfolio may be nil for an owner with no open
// positions.
func (le *LimitEngine) CanOpenPosition(
	owner string,
	spec models.OptionSpec,
	notional *big.Int,
	portfolio *models.PortfolioRisk,
	cond models.MarketConditions,
) error {
	if notional == nil || notional.Sign() <= 0 {
		return errors.InvalidInput("notional must be positive")
	}
	if cond.IsEmergency() {
		return errors.LimitExceeded("emergency_mode", new(big.Int), "admissions suspended while emergency risk mode is active")
	}

	limits := le.LimitsFor(owner)
	assetCfg := le.AssetConfig(spec.Underlying)

	// Margin-adjusted notional is what every size limit sees.
	adjusted := new(big.Int).Set(notional)
	if assetCfg != nil && assetCfg.RequiresMargin && assetCfg.MarginMultiplier != nil && assetCfg.MarginMultiplier.Sign() > 0 {
		adjusted = fixedmath.Mul(notional, assetCfg.MarginMultiplier)
	}

	// The per-asset leverage multiplier rescales the position cap for the
	// underlying: above 1 it extends the cap, below 1 it tightens it.
	positionCap := limits.MaxPositionSize
	capName := "max_position_size"
	if assetCfg != nil && assetCfg.MaxLeverage != nil && assetCfg.MaxLeverage.Sign() > 0 &&
		positionCap != nil && positionCap.Sign() > 0 {
		positionCap = fixedmath.Mul(positionCap, assetCfg.MaxLeverage)
		capName = "max_leverage"
	}
	if positionCap != nil && positionCap.Sign() > 0 && adjusted.Cmp(positionCap) > 0 {
		excess := new(big.Int).Sub(adjusted, positionCap)
		return errors.LimitExceeded(capName, excess, "position notional above per-position cap for %s", spec.Underlying)
	}

	currentNotional := new(big.Int)
	currentExposure := new(big.Int)
	if portfolio != nil {
		currentNotional.Set(portfolio.TotalNotional)
		if e, ok := portfolio.UnderlyingExposure[spec.Underlying]; ok {
			currentExposure.Set(e)
		}
	}

	postNotional := new(big.Int).Add(currentNotional, adjusted)
	if limits.MaxPortfolioSize != nil && limits.MaxPortfolioSize.Sign() > 0 && postNotional.Cmp(limits.MaxPortfolioSize) > 0 {
		excess := new(big.Int).Sub(postNotional, limits.MaxPortfolioSize)
		return errors.LimitExceeded("max_portfolio_size", excess, "portfolio notional above limit after trade")
	}

	// Post-trade concentration in one underlying, in basis points. An empty
	// book has nothing to diversify against; its first position is admitted.
	if limits.ConcentrationLimit > 0 && currentNotional.Sign() > 0 {
		postExposure := new(big.Int).Add(currentExposure, adjusted)
		bp := new(big.Int).Mul(postExposure, basisPoints)
		bp.Quo(bp, postNotional)
		if bp.Int64() > limits.ConcentrationLimit {
			excess := new(big.Int).Sub(bp, big.NewInt(limits.ConcentrationLimit))
			return errors.LimitExceeded("concentration", excess, "post-trade concentration in %s is %s bp", spec.Underlying, bp.String())
		}
	}

	return nil
}

// CheckLiquidation reports whether a position qualifies for liquidation:
// its own risk level is Critical, the owner's portfolio VaR breaches
// maxVaR, any aggregated Greek breaches its absolute limit, or the
// position's score reaches the per-asset liquidation threshold.
func (le *LimitEngine) CheckLiquidation(pos *models.PositionRisk, portfolio *models.PortfolioRisk) (bool, string) {
	if pos.RiskLevel == models.RiskLevelCritical {
		return true, "position risk level critical"
	}

	if assetCfg := le.AssetConfig(pos.Spec.Underlying); assetCfg != nil &&
		assetCfg.LiquidationThreshold > 0 && pos.RiskScore >= assetCfg.LiquidationThreshold {
		return true, "position score reached asset liquidation threshold"
	}

	if portfolio == nil {
		return false, ""
	}
	limits := le.LimitsFor(pos.Owner)

	if limits.MaxVaR != nil && limits.MaxVaR.Sign() > 0 && portfolio.PortfolioVaR.Cmp(limits.MaxVaR) > 0 {
		return true, "portfolio VaR above limit"
	}
	if breached, name := greekBreached(portfolio.Greeks, limits); breached {
		return true, "portfolio " + name + " above absolute limit"
	}
	return false, ""
}

// CheckMarginCall reports whether the owner should receive a margin call:
// portfolio VaR inside the 80-100% band of maxVaR, or the portfolio risk
// level at High or above without a liquidation trigger.
func (le *LimitEngine) CheckMarginCall(portfolio *models.PortfolioRisk) (bool, string) {
	if portfolio == nil {
		return false, ""
	}
	limits := le.LimitsFor(portfolio.Owner)

	if limits.MaxVaR != nil && limits.MaxVaR.Sign() > 0 {
		warn := new(big.Int).Mul(limits.MaxVaR, big.NewInt(80))
		warn.Quo(warn, big.NewInt(100))
		if portfolio.PortfolioVaR.Cmp(warn) >= 0 && portfolio.PortfolioVaR.Cmp(limits.MaxVaR) <= 0 {
			return true, "portfolio VaR within 80% of limit"
		}
	}
	if portfolio.PortfolioRiskLevel >= models.RiskLevelHigh {
		return true, "portfolio risk level " + portfolio.PortfolioRiskLevel.String()
	}
	return false, ""
}

func greekBreached(g models.Greeks, limits models.RiskLimits) (bool, string) {
	if limits.MaxDelta != nil && limits.MaxDelta.Sign() != 0 && absCmp(g.Delta, new(big.Int).Abs(limits.MaxDelta)) > 0 {
		return true, "delta"
	}
	if limits.MaxGamma != nil && limits.MaxGamma.Sign() != 0 && absCmp(g.Gamma, new(big.Int).Abs(limits.MaxGamma)) > 0 {
		return true, "gamma"
	}
	if limits.MaxVega != nil && limits.MaxVega.Sign() != 0 && absCmp(g.Vega, new(big.Int).Abs(limits.MaxVega)) > 0 {
		return true, "vega"
	}
	return false, ""
}
