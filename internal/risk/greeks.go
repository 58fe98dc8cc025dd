package risk

import (
	"math/big"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

const secondsPerYear = 365 * 24 * 3600

var (
	daysPerYear = big.NewInt(365)
	perPercent  = big.NewInt(100)
)

// GreeksInput carries everything the Black-Scholes sensitivities need.
// All monetary and rate fields are 18-decimal fixed point.
type GreeksInput struct {
	OptionType   models.OptionType
	Price        *big.Int
	Strike       *big.Int
	TimeToExpiry int64 // seconds, already clamped at 0
	Volatility   *big.Int
	RiskFreeRate *big.Int
	ContractSize *big.Int
}

// GreeksCalculator computes Black-Scholes option sensitivities on the
// fixed-point kernel.
type GreeksCalculator struct {
	log *logger.Logger
}

// NewGreeksCalculator creates a new Greeks calculator.
func NewGreeksCalculator() *GreeksCalculator {
	return &GreeksCalculator{log: logger.GetLogger("risk.greeks")}
}

// Calculate returns the five Greeks for the given option state, each scaled
// by the contract size. At expiry (TimeToExpiry == 0) only delta survives:
// +1 per contract for an in- or at-the-money call, -1 per contract for an
// in- or at-the-money put, which is the instantaneous payoff derivative.
// Fails with DivisionByZero when volatility is zero while time remains;
// callers must guard degenerate volatility themselves.
func (gc *GreeksCalculator) Calculate(in GreeksInput) (models.Greeks, error) {
	if in.Price == nil || in.Price.Sign() <= 0 {
		return models.Greeks{}, errors.InvalidInput("price must be positive")
	}
	if in.Strike == nil || in.Strike.Sign() <= 0 {
		return models.Greeks{}, errors.InvalidInput("strike must be positive")
	}
	if in.ContractSize == nil || in.ContractSize.Sign() <= 0 {
		return models.Greeks{}, errors.InvalidInput("contract size must be positive")
	}

	if in.RiskFreeRate == nil {
		in.RiskFreeRate = new(big.Int)
	}

	if in.TimeToExpiry == 0 {
		return gc.expiryGreeks(in), nil
	}

	if in.Volatility == nil || in.Volatility.Sign() <= 0 {
		return models.Greeks{}, errors.DivisionByZero("zero volatility with %d seconds to expiry", in.TimeToExpiry)
	}

	// t in years at the fixed scale.
	tYears := new(big.Int).Mul(big.NewInt(in.TimeToExpiry), fixedmath.Scale)
	tYears.Quo(tYears, big.NewInt(secondsPerYear))
	if tYears.Sign() == 0 {
		// Sub-second residual lifetimes truncate to zero years; treat
		// them like expiry rather than dividing by a zero sqrt(t).
		return gc.expiryGreeks(in), nil
	}

	sqrtT, err := fixedmath.SqrtFixed(tYears)
	if err != nil {
		return models.Greeks{}, err
	}
	sigmaSqrtT := fixedmath.Mul(in.Volatility, sqrtT)
	if sigmaSqrtT.Sign() == 0 {
		return models.Greeks{}, errors.DivisionByZero("sigma*sqrt(t) truncated to zero")
	}

	// d1 = (ln(S/K) + (r + sigma^2/2)*t) / (sigma*sqrt(t))
	moneyness, err := fixedmath.Div(in.Price, in.Strike)
	if err != nil {
		return models.Greeks{}, err
	}
	lnMoneyness, err := fixedmath.Ln(moneyness)
	if err != nil {
		return models.Greeks{}, err
	}
	halfVar := fixedmath.Mul(in.Volatility, in.Volatility)
	halfVar.Quo(halfVar, big.NewInt(2))
	drift := fixedmath.Mul(new(big.Int).Add(in.RiskFreeRate, halfVar), tYears)

	d1, err := fixedmath.Div(new(big.Int).Add(lnMoneyness, drift), sigmaSqrtT)
	if err != nil {
		return models.Greeks{}, err
	}
	d2 := new(big.Int).Sub(d1, sigmaSqrtT)

	nd1, err := fixedmath.NormCDF(d1)
	if err != nil {
		return models.Greeks{}, err
	}
	nd2, err := fixedmath.NormCDF(d2)
	if err != nil {
		return models.Greeks{}, err
	}
	nNegD2, err := fixedmath.NormCDF(new(big.Int).Neg(d2))
	if err != nil {
		return models.Greeks{}, err
	}
	pdfD1, err := fixedmath.NormPDF(d1)
	if err != nil {
		return models.Greeks{}, err
	}

	// Delta: N(d1) for calls, N(d1)-1 for puts.
	delta := new(big.Int).Set(nd1)
	if in.OptionType == models.OptionTypePut {
		delta.Sub(delta, fixedmath.Scale)
	}

	// Gamma: phi(d1) / (S * sigma * sqrt(t)), identical for both types.
	gamma, err := fixedmath.Div(pdfD1, fixedmath.Mul(in.Price, sigmaSqrtT))
	if err != nil {
		return models.Greeks{}, err
	}

	// Discount factor e^{-r t}.
	rt := fixedmath.Mul(in.RiskFreeRate, tYears)
	discount, err := fixedmath.Exp(rt.Neg(rt))
	if err != nil {
		return models.Greeks{}, err
	}

	// Theta: -S*phi(d1)*sigma/(2*sqrt(t)) -/+ r*K*e^{-rt}*N(+/-d2),
	// annualized, then per calendar day.
	decay := fixedmath.Mul(fixedmath.Mul(in.Price, pdfD1), in.Volatility)
	theta, err := fixedmath.Div(decay, new(big.Int).Mul(big.NewInt(2), sqrtT))
	if err != nil {
		return models.Greeks{}, err
	}
	theta.Neg(theta)
	carry := fixedmath.Mul(fixedmath.Mul(in.RiskFreeRate, in.Strike), discount)
	if in.OptionType == models.OptionTypeCall {
		theta.Sub(theta, fixedmath.Mul(carry, nd2))
	} else {
		theta.Add(theta, fixedmath.Mul(carry, nNegD2))
	}
	theta.Quo(theta, daysPerYear)

	// Vega per 1% volatility move.
	vega := fixedmath.Mul(fixedmath.Mul(in.Price, pdfD1), sqrtT)
	vega.Quo(vega, perPercent)

	// Rho per 1% rate move.
	rho := fixedmath.Mul(fixedmath.Mul(in.Strike, tYears), discount)
	if in.OptionType == models.OptionTypeCall {
		rho = fixedmath.Mul(rho, nd2)
	} else {
		rho = fixedmath.Mul(rho, nNegD2)
		rho.Neg(rho)
	}
	rho.Quo(rho, perPercent)

	return scaleByContract(models.Greeks{
		Delta: delta,
		Gamma: gamma,
		Theta: theta,
		Vega:  vega,
		Rho:   rho,
	}, in.ContractSize), nil
}

// expiryGreeks is the TimeToExpiry == 0 path: delta snaps to the payoff
// derivative and every other sensitivity is zero.
func (gc *GreeksCalculator) expiryGreeks(in GreeksInput) models.Greeks {
	g := models.ZeroGreeks()
	switch in.OptionType {
	case models.OptionTypeCall:
		if in.Price.Cmp(in.Strike) >= 0 {
			g.Delta = new(big.Int).Set(in.ContractSize)
		}
	case models.OptionTypePut:
		if in.Price.Cmp(in.Strike) <= 0 {
			g.Delta = new(big.Int).Neg(in.ContractSize)
		}
	}
	return g
}

func scaleByContract(g models.Greeks, contractSize *big.Int) models.Greeks {
	return models.Greeks{
		Delta: fixedmath.Mul(g.Delta, contractSize),
		Gamma: fixedmath.Mul(g.Gamma, contractSize),
		Theta: fixedmath.Mul(g.Theta, contractSize),
		Vega:  fixedmath.Mul(g.Vega, contractSize),
		Rho:   fixedmath.Mul(g.Rho, contractSize),
	}
}
