package risk

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
)

func activePosition(id, underlying string, score int64, delta, vega, notional *big.Int) *models.PositionRisk {
	g := models.ZeroGreeks()
	g.Delta = delta
	g.Vega = vega
	return &models.PositionRisk{
		ID:            id,
		Owner:         "alice",
		Spec:          models.OptionSpec{Underlying: underlying},
		NotionalValue: notional,
		Greeks:        g,
		RiskScore:     score,
		RiskLevel:     models.RiskLevelFromScore(score),
		Status:        models.PositionStatusActive,
	}
}

func TestAggregateEmpty(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	p := agg.Aggregate("alice", nil, time.Now())
	assert.Equal(t, 0, p.PositionCount)
	assert.Equal(t, int64(0), p.PortfolioRiskScore)
	assert.Equal(t, models.RiskLevelLow, p.PortfolioRiskLevel)
	assert.Equal(t, int64(0), p.PortfolioVaR.Int64())
	assert.Equal(t, int64(0), p.MaxDrawdown.Int64())
}

func TestAggregateSumsAndAverages(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	positions := []*models.PositionRisk{
		activePosition("a", "ETH", 4000, fixedmath.FromInt(50), new(big.Int), fixedmath.FromInt(100_000)),
		activePosition("b", "ETH", 2000, fixedmath.FromInt(-20), new(big.Int), fixedmath.FromInt(50_000)),
		activePosition("c", "BTC", 6000, fixedmath.FromInt(10), new(big.Int), fixedmath.FromInt(30_000)),
	}

	p := agg.Aggregate("alice", positions, time.Now())
	assert.Equal(t, 3, p.PositionCount)
	assert.Equal(t, fixedmath.FromInt(180_000), p.TotalNotional)
	assert.Equal(t, fixedmath.FromInt(40), p.Greeks.Delta)
	assert.Equal(t, int64(4000), p.PortfolioRiskScore)
	assert.Equal(t, models.RiskLevelMedium, p.PortfolioRiskLevel)

	assert.Equal(t, fixedmath.FromInt(150_000), p.UnderlyingExposure["ETH"])
	assert.Equal(t, fixedmath.FromInt(30_000), p.UnderlyingExposure["BTC"])
}

func TestAggregateSkipsNonActive(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	closed := activePosition("a", "ETH", 9000, fixedmath.FromInt(100), new(big.Int), fixedmath.FromInt(1_000_000))
	closed.Status = models.PositionStatusClosed
	liquidated := activePosition("b", "ETH", 9000, fixedmath.FromInt(100), new(big.Int), fixedmath.FromInt(1_000_000))
	liquidated.Status = models.PositionStatusLiquidated
	live := activePosition("c", "ETH", 1000, fixedmath.FromInt(1), new(big.Int), fixedmath.FromInt(1_000))

	p := agg.Aggregate("alice", []*models.PositionRisk{closed, liquidated, live}, time.Now())
	assert.Equal(t, 1, p.PositionCount)
	assert.Equal(t, fixedmath.FromInt(1), p.Greeks.Delta)
	assert.Equal(t, int64(1000), p.PortfolioRiskScore)
}

func TestValueAtRiskDeltaOnly(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	// |delta| 100, vega 0: deltaVaR = 100 * 2% = 2, VaR = 1.645 * 2 = 3.29.
	positions := []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(100), new(big.Int), fixedmath.FromInt(1_000)),
	}
	p := agg.Aggregate("alice", positions, time.Now())
	assert.Equal(t, "3290000000000000000", p.PortfolioVaR.String())
}

func TestValueAtRiskSignInsensitive(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	long := agg.Aggregate("alice", []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(100), fixedmath.FromInt(5), fixedmath.FromInt(1_000)),
	}, time.Now())
	short := agg.Aggregate("alice", []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(-100), fixedmath.FromInt(-5), fixedmath.FromInt(1_000)),
	}, time.Now())

	assert.Equal(t, long.PortfolioVaR, short.PortfolioVaR)
}

func TestValueAtRiskMonotoneInDelta(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	small := agg.Aggregate("alice", []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(10), fixedmath.FromInt(5), fixedmath.FromInt(1_000)),
	}, time.Now())
	large := agg.Aggregate("alice", []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(1000), fixedmath.FromInt(5), fixedmath.FromInt(1_000)),
	}, time.Now())

	assert.True(t, large.PortfolioVaR.Cmp(small.PortfolioVaR) > 0)
}

func TestOffsettingDeltasReduceVaR(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	// A long and a short of equal size net to zero delta: the book carries
	// less VaR than either leg alone.
	hedged := agg.Aggregate("alice", []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(100), new(big.Int), fixedmath.FromInt(1_000)),
		activePosition("b", "ETH", 1000, fixedmath.FromInt(-100), new(big.Int), fixedmath.FromInt(1_000)),
	}, time.Now())
	naked := agg.Aggregate("alice", []*models.PositionRisk{
		activePosition("a", "ETH", 1000, fixedmath.FromInt(100), new(big.Int), fixedmath.FromInt(1_000)),
	}, time.Now())

	assert.Equal(t, int64(0), hedged.PortfolioVaR.Int64())
	assert.True(t, naked.PortfolioVaR.Sign() > 0)
}

func TestDrawdownProxy(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})

	pos := activePosition("a", "ETH", 1000, fixedmath.FromInt(100), new(big.Int), fixedmath.FromInt(1_000))
	pos.Greeks.Theta = fixedmath.FromInt(-3)

	p := agg.Aggregate("alice", []*models.PositionRisk{pos}, time.Now())

	// |theta| + 4% of |delta| = 3 + 4 = 7.
	assert.Equal(t, fixedmath.FromInt(7), p.MaxDrawdown)
}
