package risk

import (
	stderrors "errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
)

func testLimits() models.RiskLimits {
	return models.RiskLimits{
		MaxPositionSize:    fixedmath.FromInt(500_000),
		MaxPortfolioSize:   fixedmath.FromInt(5_000_000),
		MaxVaR:             fixedmath.FromInt(250_000),
		ConcentrationLimit: 5000,
		IsActive:           true,
	}
}

func ethSpec() models.OptionSpec {
	return models.OptionSpec{
		Underlying:   "ETH",
		OptionType:   models.OptionTypeCall,
		StrikePrice:  fixedmath.FromInt(3000),
		ContractSize: fixedmath.FromInt(1),
	}
}

func breachedLimit(t *testing.T, err error) string {
	t.Helper()
	var engErr *errors.EngineError
	require.True(t, stderrors.As(err, &engErr))
	require.Equal(t, errors.KindLimitExceeded, engErr.Kind)
	return engErr.Limit
}

func TestCanOpenPositionWithinLimits(t *testing.T) {
	le := NewLimitEngine(testLimits())

	// First position into an empty book: fully concentrated by definition,
	// still admitted.
	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(100_000), nil, calmMarket())
	assert.NoError(t, err)
}

func TestCanOpenPositionLeverageCap(t *testing.T) {
	le := NewLimitEngine(testLimits())

	// 2x leverage on ETH extends the $500K cap to $1M.
	le.SetAssetConfig("ETH", models.AssetRiskConfig{MaxLeverage: fixedmath.FromInt(2)})
	assert.NoError(t, le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(600_000), nil, calmMarket()))

	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(1_100_000), nil, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "max_leverage", breachedLimit(t, err))

	// 0.5x tightens it to $250K.
	le.SetAssetConfig("ETH", models.AssetRiskConfig{MaxLeverage: big.NewInt(5e17)})
	assert.NoError(t, le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(200_000), nil, calmMarket()))

	err = le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(300_000), nil, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "max_leverage", breachedLimit(t, err))

	var engErr *errors.EngineError
	require.True(t, stderrors.As(err, &engErr))
	assert.Equal(t, fixedmath.FromInt(50_000), engErr.Excess)
}

func TestCanOpenPositionSizeLimit(t *testing.T) {
	le := NewLimitEngine(testLimits())

	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(600_000), nil, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "max_position_size", breachedLimit(t, err))

	var engErr *errors.EngineError
	require.True(t, stderrors.As(err, &engErr))
	assert.Equal(t, fixedmath.FromInt(100_000), engErr.Excess)
}

func TestCanOpenPositionPortfolioLimit(t *testing.T) {
	le := NewLimitEngine(testLimits())

	portfolio := &models.PortfolioRisk{
		Owner:              "alice",
		TotalNotional:      fixedmath.FromInt(4_900_000),
		UnderlyingExposure: map[string]*big.Int{},
	}
	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(200_000), portfolio, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "max_portfolio_size", breachedLimit(t, err))
}

func TestCanOpenPositionConcentration(t *testing.T) {
	le := NewLimitEngine(testLimits())

	// ETH is already half of a $2M book; another $200K ETH pushes the
	// post-trade share past 50%.
	portfolio := &models.PortfolioRisk{
		Owner:         "alice",
		TotalNotional: fixedmath.FromInt(2_000_000),
		UnderlyingExposure: map[string]*big.Int{
			"ETH": fixedmath.FromInt(1_000_000),
		},
	}
	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(200_000), portfolio, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "concentration", breachedLimit(t, err))

	// The same notional in BTC is fine.
	btc := ethSpec()
	btc.Underlying = "BTC"
	assert.NoError(t, le.CanOpenPosition("alice", btc, fixedmath.FromInt(200_000), portfolio, calmMarket()))
}

func TestCanOpenPositionEmergencyMode(t *testing.T) {
	le := NewLimitEngine(testLimits())

	emergency := models.MarketConditions{
		VIX:            big.NewInt(6e17),
		LiquidityScore: big.NewInt(8e17),
	}
	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(1_000), nil, emergency)
	require.Error(t, err)
	assert.Equal(t, "emergency_mode", breachedLimit(t, err))
}

func TestCanOpenPositionMarginAdjusted(t *testing.T) {
	le := NewLimitEngine(testLimits())
	le.SetAssetConfig("ETH", models.AssetRiskConfig{
		RequiresMargin:   true,
		MarginMultiplier: fixedmath.FromInt(2),
	})

	// $300K at 2x margin counts as $600K against the $500K cap.
	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(300_000), nil, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "max_position_size", breachedLimit(t, err))

	assert.NoError(t, le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(200_000), nil, calmMarket()))
}

func TestOwnerLimitsFallBackWhenInactive(t *testing.T) {
	le := NewLimitEngine(testLimits())
	le.SetOwnerLimits("alice", models.RiskLimits{
		MaxPositionSize: fixedmath.FromInt(10),
		IsActive:        false,
	})

	// Inactive owner record: the default $500K cap applies.
	assert.NoError(t, le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(100_000), nil, calmMarket()))

	le.SetOwnerLimits("alice", models.RiskLimits{
		MaxPositionSize: fixedmath.FromInt(10),
		IsActive:        true,
	})
	err := le.CanOpenPosition("alice", ethSpec(), fixedmath.FromInt(100_000), nil, calmMarket())
	require.Error(t, err)
	assert.Equal(t, "max_position_size", breachedLimit(t, err))
}

func TestCheckLiquidation(t *testing.T) {
	le := NewLimitEngine(testLimits())

	pos := &models.PositionRisk{
		ID:        "p",
		Owner:     "alice",
		Spec:      ethSpec(),
		RiskScore: 8500,
		RiskLevel: models.RiskLevelCritical,
	}
	eligible, reason := le.CheckLiquidation(pos, nil)
	assert.True(t, eligible)
	assert.Contains(t, reason, "critical")

	pos.RiskScore = 5000
	pos.RiskLevel = models.RiskLevelMedium
	eligible, _ = le.CheckLiquidation(pos, nil)
	assert.False(t, eligible)
}

func TestCheckLiquidationAssetThreshold(t *testing.T) {
	le := NewLimitEngine(testLimits())
	le.SetAssetConfig("ETH", models.AssetRiskConfig{LiquidationThreshold: 7000})

	pos := &models.PositionRisk{
		ID:        "p",
		Owner:     "alice",
		Spec:      ethSpec(),
		RiskScore: 7200,
		RiskLevel: models.RiskLevelHigh,
	}
	eligible, reason := le.CheckLiquidation(pos, nil)
	assert.True(t, eligible)
	assert.Contains(t, reason, "threshold")
}

func TestCheckLiquidationPortfolioVaR(t *testing.T) {
	le := NewLimitEngine(testLimits())

	pos := &models.PositionRisk{
		ID:        "p",
		Owner:     "alice",
		Spec:      ethSpec(),
		RiskScore: 1000,
		RiskLevel: models.RiskLevelLow,
	}
	portfolio := &models.PortfolioRisk{
		Owner:        "alice",
		PortfolioVaR: fixedmath.FromInt(300_000),
		Greeks:       models.ZeroGreeks(),
	}
	eligible, reason := le.CheckLiquidation(pos, portfolio)
	assert.True(t, eligible)
	assert.Contains(t, reason, "VaR")
}

func TestCheckLiquidationGreekLimits(t *testing.T) {
	limits := testLimits()
	limits.MaxDelta = fixedmath.FromInt(100)
	le := NewLimitEngine(limits)

	pos := &models.PositionRisk{
		ID:        "p",
		Owner:     "alice",
		Spec:      ethSpec(),
		RiskScore: 1000,
		RiskLevel: models.RiskLevelLow,
	}
	g := models.ZeroGreeks()
	g.Delta = fixedmath.FromInt(-150) // compared by absolute value
	portfolio := &models.PortfolioRisk{
		Owner:        "alice",
		PortfolioVaR: new(big.Int),
		Greeks:       g,
	}
	eligible, reason := le.CheckLiquidation(pos, portfolio)
	assert.True(t, eligible)
	assert.Contains(t, reason, "delta")
}

func TestCheckMarginCall(t *testing.T) {
	le := NewLimitEngine(testLimits())

	// VaR at 85% of the limit: margin call band.
	portfolio := &models.PortfolioRisk{
		Owner:              "alice",
		PortfolioVaR:       fixedmath.FromInt(212_500),
		Greeks:             models.ZeroGreeks(),
		PortfolioRiskLevel: models.RiskLevelLow,
	}
	called, reason := le.CheckMarginCall(portfolio)
	assert.True(t, called)
	assert.Contains(t, reason, "VaR")

	// Comfortably below the band.
	portfolio.PortfolioVaR = fixedmath.FromInt(100_000)
	called, _ = le.CheckMarginCall(portfolio)
	assert.False(t, called)

	// High portfolio risk level raises a margin call on its own.
	portfolio.PortfolioRiskLevel = models.RiskLevelHigh
	called, reason = le.CheckMarginCall(portfolio)
	assert.True(t, called)
	assert.Contains(t, reason, "high")
}
