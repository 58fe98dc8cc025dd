package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dominichackett/alphaoptions-sub000/internal/risk"
	"github.com/dominichackett/alphaoptions-sub000/internal/websocket"
	"github.com/dominichackett/alphaoptions-sub000/pkg/metrics"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Config holds the configuration for the API server
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is the per-client request rate per second. Zero disables
	// rate limiting.
	RateLimit float64
	RateBurst int
}

// Server exposes the risk engine over HTTP.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	hub        *websocket.Hub
	recorder   *metrics.Recorder
	log        *logger.Logger
}

// NewServer creates the API server. hub may be nil when the deployment has
// no websocket consumers.
func NewServer(config Config, engine *risk.Engine, hub *websocket.Hub, recorder *metrics.Recorder) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(engine),
		hub:      hub,
		recorder: recorder,
		log:      logger.GetLogger("api.server"),
	}
	server.setupRoutes()
	return server
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Infof("Starting API server on %s", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the API server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Info("Stopping API server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(MetricsMiddleware(s.recorder))
	s.router.Use(CORSMiddleware())
	if s.config.RateLimit > 0 {
		burst := s.config.RateBurst
		if burst <= 0 {
			burst = int(s.config.RateLimit)
		}
		s.router.Use(RateLimitMiddleware(s.config.RateLimit, burst))
	}

	s.router.GET("/health", s.handlers.HealthCheckHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.hub != nil {
		s.router.GET("/ws", func(c *gin.Context) {
			s.hub.HandleWebSocket(c.Writer, c.Request)
		})
	}

	v1 := s.router.Group("/api/v1")

	positions := v1.Group("/positions")
	positions.POST("", s.handlers.AddPositionHandler)
	positions.GET("/:id", s.handlers.GetPositionHandler)
	positions.DELETE("/:id", s.handlers.RemovePositionHandler)
	positions.POST("/:id/refresh", s.handlers.RefreshPositionHandler)
	positions.GET("/:id/liquidation", s.handlers.CheckLiquidationHandler)
	positions.POST("/:id/liquidate", s.handlers.TriggerLiquidationHandler)

	portfolios := v1.Group("/portfolios")
	portfolios.GET("/:owner", s.handlers.GetPortfolioHandler)
	portfolios.POST("/:owner/refresh", s.handlers.RefreshOwnerHandler)

	v1.POST("/refresh", s.handlers.RefreshAllHandler)
	v1.POST("/admission", s.handlers.AdmissionHandler)
	v1.POST("/greeks", s.handlers.GreeksHandler)

	limits := v1.Group("/limits")
	limits.PUT("/default", s.handlers.SetDefaultLimitsHandler)
	limits.PUT("/:owner", s.handlers.SetOwnerLimitsHandler)

	v1.PUT("/assets/:symbol", s.handlers.SetAssetConfigHandler)
	v1.GET("/market-conditions", s.handlers.GetMarketConditionsHandler)
	v1.PUT("/market-conditions", s.handlers.SetMarketConditionsHandler)
}
