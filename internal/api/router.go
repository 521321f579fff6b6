package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

// RouterConfig tunes the HTTP surface. The rate limit is wall-clock and
// applies to inbound requests; it is unrelated to the simulated admission
// window.
type RouterConfig struct {
	RateLimitRPS   float64 // Requests per second, zero disables limiting
	RateLimitBurst int     // Token bucket burst size
}

// NewRouter builds the gin engine with all routes mounted. The treasury and
// the hub may be nil; a nil hub disables the stream endpoint.
func NewRouter(eng *engine.Engine, treasurySvc treasury.Service, hub *Hub, logger *logrus.Logger, cfg RouterConfig) *gin.Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	handler := NewHandler(eng, treasurySvc)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if hub != nil {
		router.GET("/v1/stream", hub.HandleStream)
	}

	v1 := router.Group("/v1")
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
		v1.Use(rateLimitMiddleware(limiter))
	}

	v1.POST("/indices", handler.CreateIndex)
	v1.GET("/indices/:id", handler.GetIndex)
	v1.PUT("/indices/:id/prices", handler.UpdatePrices)
	v1.PUT("/indices/:id/liquidity", handler.SetLiquidity)
	v1.POST("/indices/:id/rebalance", handler.Rebalance)
	v1.GET("/indices/:id/rebalance-report", handler.RebalanceReport)

	v1.POST("/orders", handler.SubmitOrder)
	v1.GET("/orders/:position_id", handler.QueryOrder)
	v1.DELETE("/orders/:position_id", handler.CancelOrder)
	v1.GET("/orders/:position_id/fill-report", handler.FillReport)

	v1.POST("/ticks", handler.Tick)
	v1.GET("/queue", handler.Queue)
	v1.GET("/treasury/:id", handler.TreasuryReport)

	return router
}

// rateLimitMiddleware rejects requests once the token bucket is exhausted.
func rateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    string(ErrorCodeRateLimited),
				Message: "request rate exceeded",
			})
			return
		}
		c.Next()
	}
}

// requestLogger logs one line per completed request.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("http request")
	}
}
