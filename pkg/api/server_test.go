package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/internal/risk"
	"github.com/dominichackett/alphaoptions-sub000/pkg/metrics"
	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
)

type fixedFeed map[string]*big.Int

func (f fixedFeed) GetPrice(_ context.Context, symbol string) (*big.Int, time.Time, error) {
	p, ok := f[symbol]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("no quote for %s", symbol)
	}
	return new(big.Int).Set(p), time.Now(), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	recorder := metrics.NewRecorderWith(prometheus.NewRegistry())
	engine := risk.NewEngine(risk.EngineConfig{
		DefaultLimits: models.RiskLimits{
			MaxPositionSize:    fixedmath.FromInt(500_000),
			MaxPortfolioSize:   fixedmath.FromInt(5_000_000),
			MaxVaR:             fixedmath.FromInt(250_000),
			ConcentrationLimit: 5000,
			IsActive:           true,
		},
	}, fixedFeed{"ETH": fixedmath.FromInt(3200)}, nil, recorder)
	return NewServer(Config{}, engine, nil, recorder)
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func positionBody(id string) string {
	expiry := time.Now().Add(29 * 24 * time.Hour).Unix()
	return fmt.Sprintf(`{
		"id": %q,
		"owner": "alice",
		"spec": {
			"assetClass": "crypto",
			"underlying": "ETH",
			"optionType": "call",
			"style": "european",
			"strikePrice": 3000000000000000000000,
			"expiryTime": %d,
			"contractSize": 1000000000000000000
		},
		"notional": 150000000000000000000000
	}`, id, expiry)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s.Router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestPositionLifecycle(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/positions", positionBody("pos-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.PositionRisk
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.Owner)
	assert.True(t, created.RiskScore > 0)

	// Duplicate registration conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/v1/positions", positionBody("pos-1"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/positions/pos-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/positions/pos-1/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/portfolios/alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var p models.PortfolioRisk
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 1, p.PositionCount)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/positions/pos-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/positions/pos-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddPositionValidation(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s.Router(), http.MethodPost, "/api/v1/positions", `{"owner":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddPositionUnknownUnderlying(t *testing.T) {
	s := newTestServer(t)

	body := strings.Replace(positionBody("pos-1"), `"ETH"`, `"DOGE"`, 1)
	w := doJSON(t, s.Router(), http.MethodPost, "/api/v1/positions", body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdmissionEndpoint(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	expiry := time.Now().Add(29 * 24 * time.Hour).Unix()
	admitted := fmt.Sprintf(`{
		"owner": "alice",
		"spec": {"underlying": "ETH", "optionType": "call", "strikePrice": 3000000000000000000000, "expiryTime": %d, "contractSize": 1000000000000000000},
		"notional": 100000000000000000000000
	}`, expiry)
	w := doJSON(t, router, http.MethodPost, "/api/v1/admission", admitted)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"admitted":true`)

	// $600K against the $500K cap: rejected with the breached limit named,
	// still a 200.
	rejected := strings.Replace(admitted, "100000000000000000000000", "600000000000000000000000", 1)
	w = doJSON(t, router, http.MethodPost, "/api/v1/admission", rejected)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admitted":false`)
	assert.Contains(t, w.Body.String(), `"limit":"max_position_size"`)
	assert.Contains(t, w.Body.String(), `"excess":"100000000000000000000000"`)
}

func TestGreeksEndpoint(t *testing.T) {
	s := newTestServer(t)

	body := `{
		"optionType": "call",
		"price": 3200000000000000000000,
		"strike": 3000000000000000000000,
		"timeToExpiry": 2505600,
		"volatility": 600000000000000000,
		"riskFreeRate": 50000000000000000,
		"contractSize": 1000000000000000000
	}`
	w := doJSON(t, s.Router(), http.MethodPost, "/api/v1/greeks", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var g models.Greeks
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.True(t, g.Delta.Sign() > 0)
	assert.True(t, g.Theta.Sign() < 0)

	// Zero volatility with time on the clock is a 400.
	bad := strings.Replace(body, `"volatility": 600000000000000000`, `"volatility": 0`, 1)
	w = doJSON(t, s.Router(), http.MethodPost, "/api/v1/greeks", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiquidationEndpoints(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/positions", positionBody("pos-1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/positions/pos-1/liquidation", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"eligible":false`)

	// A healthy position cannot be liquidated.
	w = doJSON(t, router, http.MethodPost, "/api/v1/positions/pos-1/liquidate", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMarketConditionsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodPut, "/api/v1/market-conditions",
		`{"vix": 600000000000000000, "liquidityScore": 800000000000000000}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/market-conditions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isEmergency":true`)
	assert.Contains(t, w.Body.String(), `"isHighVolatility":true`)
}

func TestSetLimitsEndpoints(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodPut, "/api/v1/limits/bob",
		`{"maxPositionSize": 1000000000000000000000, "isActive": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Bob's $1 cap rejects everything.
	expiry := time.Now().Add(29 * 24 * time.Hour).Unix()
	body := fmt.Sprintf(`{
		"owner": "bob",
		"spec": {"underlying": "ETH", "optionType": "call", "strikePrice": 3000000000000000000000, "expiryTime": %d, "contractSize": 1000000000000000000},
		"notional": 100000000000000000000000
	}`, expiry)
	w = doJSON(t, router, http.MethodPost, "/api/v1/admission", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admitted":false`)
}

func TestRateLimitMiddleware(t *testing.T) {
	recorder := metrics.NewRecorderWith(prometheus.NewRegistry())
	engine := risk.NewEngine(risk.EngineConfig{}, fixedFeed{}, nil, recorder)
	s := NewServer(Config{RateLimit: 1, RateBurst: 2}, engine, nil, recorder)

	var saw429 bool
	for i := 0; i < 5; i++ {
		w := doJSON(t, s.Router(), http.MethodGet, "/health", "")
		if w.Code == http.StatusTooManyRequests {
			saw429 = true
		}
	}
	assert.True(t, saw429, "burst of requests should trip the rate limit")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s.Router(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
