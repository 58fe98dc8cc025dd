package api

import (
	stderrors "errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dominichackett/alphaoptions-sub000/internal/risk"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Handlers contains the API request handlers.
type Handlers struct {
	engine *risk.Engine
	greeks *risk.GreeksCalculator
	log    *logger.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(engine *risk.Engine) *Handlers {
	return &Handlers{
		engine: engine,
		greeks: risk.NewGreeksCalculator(),
		log:    logger.GetLogger("api.handlers"),
	}
}

// HealthCheckHandler handles health check requests.
func (h *Handlers) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// PositionRequest is the wire form of a position registration. Monetary
// fields use the 18-decimal fixed-point scale.
type PositionRequest struct {
	ID       string            `json:"id" binding:"required"`
	Owner    string            `json:"owner" binding:"required"`
	Spec     models.OptionSpec `json:"spec" binding:"required"`
	Notional *big.Int          `json:"notional" binding:"required"`
}

// AddPositionHandler registers a new position and returns its initial risk.
func (h *Handlers) AddPositionHandler(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pos, err := h.engine.AddPosition(c.Request.Context(), req.ID, req.Owner, req.Spec, req.Notional)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pos)
}

// GetPositionHandler returns the stored risk record for one position.
func (h *Handlers) GetPositionHandler(c *gin.Context) {
	pos, err := h.engine.Position(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// RemovePositionHandler deletes a closed position.
func (h *Handlers) RemovePositionHandler(c *gin.Context) {
	if err := h.engine.RemovePosition(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshPositionHandler re-prices one position and returns the new record.
func (h *Handlers) RefreshPositionHandler(c *gin.Context) {
	pos, err := h.engine.RefreshPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// CheckLiquidationHandler reports whether the position qualifies for
// liquidation without triggering anything.
func (h *Handlers) CheckLiquidationHandler(c *gin.Context) {
	eligible, reason, err := h.engine.CheckLiquidation(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eligible": eligible, "reason": reason})
}

// TriggerLiquidationHandler validates and dispatches a liquidation.
func (h *Handlers) TriggerLiquidationHandler(c *gin.Context) {
	if err := h.engine.TriggerLiquidation(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liquidated": true})
}

// GetPortfolioHandler returns the stored aggregate for an owner.
func (h *Handlers) GetPortfolioHandler(c *gin.Context) {
	p, err := h.engine.Portfolio(c.Param("owner"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RefreshOwnerHandler re-prices an owner's whole book.
func (h *Handlers) RefreshOwnerHandler(c *gin.Context) {
	owner := c.Param("owner")
	if err := h.engine.RefreshOwner(c.Request.Context(), owner); err != nil {
		h.respondError(c, err)
		return
	}
	p, err := h.engine.Portfolio(owner)
	if err != nil {
		// Owner had no active positions; an empty refresh is not an error.
		c.JSON(http.StatusOK, gin.H{"owner": owner, "positions": 0})
		return
	}
	c.JSON(http.StatusOK, p)
}

// RefreshAllHandler re-prices every owner's book and reports per-owner
// failures.
func (h *Handlers) RefreshAllHandler(c *gin.Context) {
	failures := h.engine.RefreshAll(c.Request.Context())
	out := make(map[string]string, len(failures))
	for owner, err := range failures {
		out[owner] = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"failures": out})
}

// AdmissionRequest is the wire form of an admission check.
type AdmissionRequest struct {
	Owner    string            `json:"owner" binding:"required"`
	Spec     models.OptionSpec `json:"spec" binding:"required"`
	Notional *big.Int          `json:"notional" binding:"required"`
}

// AdmissionHandler runs the admission check for a prospective position.
func (h *Handlers) AdmissionHandler(c *gin.Context) {
	var req AdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.engine.CanOpenPosition(req.Owner, req.Spec, req.Notional)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"admitted": true})
		return
	}
	if errors.IsKind(err, errors.KindLimitExceeded) {
		resp := gin.H{"admitted": false, "reason": err.Error()}
		var engErr *errors.EngineError
		if stderrors.As(err, &engErr) {
			resp["limit"] = engErr.Limit
			if engErr.Excess != nil {
				resp["excess"] = engErr.Excess.String()
			}
		}
		c.JSON(http.StatusOK, resp)
		return
	}
	h.respondError(c, err)
}

// GreeksRequest is the wire form of a standalone Greeks calculation.
type GreeksRequest struct {
	OptionType   models.OptionType `json:"optionType"`
	Price        *big.Int          `json:"price" binding:"required"`
	Strike       *big.Int          `json:"strike" binding:"required"`
	TimeToExpiry int64             `json:"timeToExpiry"`
	Volatility   *big.Int          `json:"volatility" binding:"required"`
	RiskFreeRate *big.Int          `json:"riskFreeRate"`
	ContractSize *big.Int          `json:"contractSize" binding:"required"`
}

// GreeksHandler computes Greeks for arbitrary inputs without touching any
// stored position.
func (h *Handlers) GreeksHandler(c *gin.Context) {
	var req GreeksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	greeks, err := h.greeks.Calculate(risk.GreeksInput{
		OptionType:   req.OptionType,
		Price:        req.Price,
		Strike:       req.Strike,
		TimeToExpiry: req.TimeToExpiry,
		Volatility:   req.Volatility,
		RiskFreeRate: req.RiskFreeRate,
		ContractSize: req.ContractSize,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, greeks)
}

// SetDefaultLimitsHandler replaces the fallback risk limits.
func (h *Handlers) SetDefaultLimitsHandler(c *gin.Context) {
	var limits models.RiskLimits
	if err := c.ShouldBindJSON(&limits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.engine.SetDefaultRiskLimits(limits)
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// SetOwnerLimitsHandler installs per-owner risk limits.
func (h *Handlers) SetOwnerLimitsHandler(c *gin.Context) {
	var limits models.RiskLimits
	if err := c.ShouldBindJSON(&limits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.engine.SetRiskLimits(c.Param("owner"), limits)
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// SetAssetConfigHandler installs per-underlying risk parameters.
func (h *Handlers) SetAssetConfigHandler(c *gin.Context) {
	var cfg models.AssetRiskConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.engine.SetAssetRiskConfig(c.Param("symbol"), cfg)
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// GetMarketConditionsHandler returns the current stress snapshot.
func (h *Handlers) GetMarketConditionsHandler(c *gin.Context) {
	cond := h.engine.MarketConditions()
	c.JSON(http.StatusOK, gin.H{
		"conditions":       cond,
		"isHighVolatility": cond.IsHighVolatility(),
		"isMarketStress":   cond.IsMarketStress(),
		"isEmergency":      cond.IsEmergency(),
	})
}

// SetMarketConditionsHandler replaces the stress snapshot.
func (h *Handlers) SetMarketConditionsHandler(c *gin.Context) {
	var cond models.MarketConditions
	if err := c.ShouldBindJSON(&cond); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.engine.SetMarketConditions(cond)
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// respondError maps engine error kinds to HTTP statuses.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.KindOf(err) {
	case errors.KindInvalidInput, errors.KindDivisionByZero:
		status = http.StatusBadRequest
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindDuplicateID, errors.KindLimitExceeded, errors.KindLiquidationNotJustified:
		status = http.StatusConflict
	case errors.KindPriceUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": errors.KindOf(err).String()})
}
