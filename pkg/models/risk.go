package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// RiskLevel is the discrete bucket of a risk score.
type RiskLevel int

const (
	RiskLevelLow RiskLevel = iota
	RiskLevelMedium
	RiskLevelHigh
	RiskLevelCritical
)

// Risk score bucket boundaries, in score points out of 10000.
const (
	MaxRiskScore       int64 = 10000
	CriticalScoreFloor int64 = 8000
	HighScoreFloor     int64 = 6000
	MediumScoreFloor   int64 = 3000
)

// RiskLevelFromScore maps a score to its bucket. The level is never stored
// independently of the score.
func RiskLevelFromScore(score int64) RiskLevel {
	switch {
	case score >= CriticalScoreFloor:
		return RiskLevelCritical
	case score >= HighScoreFloor:
		return RiskLevelHigh
	case score >= MediumScoreFloor:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

func (l RiskLevel) String() string {
	switch l {
	case RiskLevelCritical:
		return "critical"
	case RiskLevelHigh:
		return "high"
	case RiskLevelMedium:
		return "medium"
	}
	return "low"
}

func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseRiskLevel parses the string form of a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "low":
		return RiskLevelLow, nil
	case "medium":
		return RiskLevelMedium, nil
	case "high":
		return RiskLevelHigh, nil
	case "critical":
		return RiskLevelCritical, nil
	}
	return 0, fmt.Errorf("unknown risk level: %q", s)
}

func (l *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// PositionStatus tracks the lifecycle of a registered position.
type PositionStatus int

const (
	PositionStatusActive PositionStatus = iota
	PositionStatusLiquidated
	PositionStatusClosed
)

func (s PositionStatus) String() string {
	switch s {
	case PositionStatusLiquidated:
		return "liquidated"
	case PositionStatusClosed:
		return "closed"
	}
	return "active"
}

func (s PositionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParsePositionStatus parses the string form of a position status.
func ParsePositionStatus(v string) (PositionStatus, error) {
	switch v {
	case "active":
		return PositionStatusActive, nil
	case "liquidated":
		return PositionStatusLiquidated, nil
	case "closed":
		return PositionStatusClosed, nil
	}
	return 0, fmt.Errorf("unknown position status: %q", v)
}

func (s *PositionStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParsePositionStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PositionRisk is the risk state of a single open position. It is created
// when the order-matching collaborator registers the position and mutated
// only by explicit risk recomputes.
type PositionRisk struct {
	ID                string         `json:"id"`
	Owner             string         `json:"owner"`
	Spec              OptionSpec     `json:"spec"`
	NotionalValue     *big.Int       `json:"notionalValue"`
	CurrentPrice      *big.Int       `json:"currentPrice"`
	TimeToExpiry      int64          `json:"timeToExpiry"` // seconds, clamped at 0
	Greeks            Greeks         `json:"greeks"`
	ImpliedVolatility *big.Int       `json:"impliedVolatility"`
	RiskScore         int64          `json:"riskScore"`
	RiskLevel         RiskLevel      `json:"riskLevel"`
	Status            PositionStatus `json:"status"`
	LastUpdate        time.Time      `json:"lastUpdate"`
}

// PortfolioRisk is the aggregate risk of one owner's active positions.
// It is always recomputed from scratch, never incrementally patched.
type PortfolioRisk struct {
	Owner              string    `json:"owner"`
	TotalNotional      *big.Int  `json:"totalNotional"`
	Greeks             Greeks    `json:"greeks"`
	PortfolioVaR       *big.Int  `json:"portfolioVaR"`
	MaxDrawdown        *big.Int  `json:"maxDrawdown"`
	PortfolioRiskScore int64     `json:"portfolioRiskScore"`
	PortfolioRiskLevel RiskLevel `json:"portfolioRiskLevel"`
	PositionCount      int       `json:"positionCount"`
	// UnderlyingExposure maps underlying symbol to summed notional; it
	// feeds the concentration check.
	UnderlyingExposure map[string]*big.Int `json:"underlyingExposure"`
	LastUpdate         time.Time           `json:"lastUpdate"`
}

// RiskLimits bounds what an owner may hold. Greek limits are signed and
// compared by absolute value. A zero-value (inactive) record falls back to
// the configured defaults.
type RiskLimits struct {
	MaxPositionSize    *big.Int `json:"maxPositionSize"`
	MaxPortfolioSize   *big.Int `json:"maxPortfolioSize"`
	MaxDelta           *big.Int `json:"maxDelta"`
	MaxGamma           *big.Int `json:"maxGamma"`
	MaxVega            *big.Int `json:"maxVega"`
	MaxVaR             *big.Int `json:"maxVaR"`
	ConcentrationLimit int64    `json:"concentrationLimit"` // basis points
	IsActive           bool     `json:"isActive"`
}

// AssetRiskConfig carries per-underlying risk parameters.
type AssetRiskConfig struct {
	BaseVolatility       *big.Int `json:"baseVolatility"`
	RiskFreeRate         *big.Int `json:"riskFreeRate"`
	MaxLeverage          *big.Int `json:"maxLeverage"`
	LiquidationThreshold int64    `json:"liquidationThreshold"` // score points, 0 disables
	CorrelationFactor    *big.Int `json:"correlationFactor"`
	RequiresMargin       bool     `json:"requiresMargin"`
	MarginMultiplier     *big.Int `json:"marginMultiplier"`
}

// MarketConditions is the market-wide stress snapshot supplied by the
// market-data collaborator. Derived flags are functions of vix and
// liquidity, not stored state.
type MarketConditions struct {
	VIX            *big.Int  `json:"vix"`
	MarketTrend    *big.Int  `json:"marketTrend"`
	LiquidityScore *big.Int  `json:"liquidityScore"`
	LastUpdate     time.Time `json:"lastUpdate"`
}

// Threshold constants for derived market-condition flags, 18-decimal scale.
var (
	highVolVIX         = big.NewInt(3e17)  // 30%
	emergencyVIX       = big.NewInt(5e17)  // 50%
	stressLiquidity    = big.NewInt(5e17)  // 50%
	emergencyLiquidity = big.NewInt(25e16) // 25%
)

// IsHighVolatility reports vix above 30%.
func (m MarketConditions) IsHighVolatility() bool {
	return m.VIX != nil && m.VIX.Cmp(highVolVIX) > 0
}

// IsMarketStress reports liquidity below 50%.
func (m MarketConditions) IsMarketStress() bool {
	return m.LiquidityScore != nil && m.LiquidityScore.Cmp(stressLiquidity) < 0
}

// IsEmergency reports an extreme reading (vix above 50% or liquidity below
// 25%) which multiplies every computed risk score.
func (m MarketConditions) IsEmergency() bool {
	if m.VIX != nil && m.VIX.Cmp(emergencyVIX) > 0 {
		return true
	}
	return m.LiquidityScore != nil && m.LiquidityScore.Cmp(emergencyLiquidity) < 0
}

// LiquidationRequest is dispatched to the custody collaborator once a
// liquidation has been validated. The collaborator must acknowledge before
// the position record is deleted.
type LiquidationRequest struct {
	PositionID string    `json:"positionId"`
	Owner      string    `json:"owner"`
	Reason     string    `json:"reason"`
	RiskScore  int64     `json:"riskScore"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlertType classifies a risk alert.
type AlertType string

const (
	AlertTypeLevelChange AlertType = "risk_level_change"
	AlertTypeMarginCall  AlertType = "margin_call"
	AlertTypeLiquidation AlertType = "liquidation"
	AlertTypeEmergency   AlertType = "emergency_mode"
)

// RiskAlert is broadcast to monitoring collaborators on notable transitions.
type RiskAlert struct {
	Type       AlertType `json:"type"`
	PositionID string    `json:"positionId,omitempty"`
	Owner      string    `json:"owner"`
	Level      RiskLevel `json:"level"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
