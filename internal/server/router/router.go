package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/observability/metrics"
	"github.com/mamadbah2/coffee-counter/internal/server/handlers"
)

const passwordHeader = "X-Password"

// PasswordVerifier checks the password guarding mutating routes.
type PasswordVerifier interface {
	Verify(candidate string) bool
}

// New wires the Gin engine with required routes and middlewares.
func New(coffee *handlers.CoffeeHandler, summary *handlers.SummaryHandler, verifier PasswordVerifier, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metricsMiddleware(m))
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Coffee Counter API"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.GET("/bags", coffee.ListBags)
	r.GET("/bags/active", coffee.ActiveBags)
	r.GET("/bags/:id", coffee.GetBag)
	r.GET("/uses", coffee.QueryUses)
	r.GET("/uses/:id", coffee.GetUse)
	r.GET("/counts", coffee.Counts)
	r.GET("/summary", summary.Weekly)

	authed := r.Group("/", requirePassword(verifier, logger))
	authed.POST("/bags", coffee.CreateBag)
	authed.PATCH("/bags/:id", coffee.UpdateBag)
	authed.POST("/bags/:id/deactivate", coffee.DeactivateBag)
	authed.POST("/bags/:id/activate", coffee.ActivateBag)
	authed.DELETE("/bags/:id", coffee.DeleteBag)
	authed.DELETE("/bags", coffee.DeleteAllBags)
	authed.POST("/uses", coffee.LogUse)
	authed.DELETE("/uses/:id", coffee.DeleteUse)
	authed.DELETE("/uses", coffee.DeleteAllUses)
	authed.POST("/admin/recount", coffee.Recount)
	authed.POST("/admin/migrate", coffee.MigrateActive)

	logger.Info("router initialized")

	return r
}

// requirePassword rejects requests whose X-Password header (or password query
// parameter) does not match.
func requirePassword(verifier PasswordVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		candidate := c.GetHeader(passwordHeader)
		if candidate == "" {
			candidate = c.Query("password")
		}
		if verifier == nil || !verifier.Verify(candidate) {
			logger.Warn("rejected unauthenticated request",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
			return
		}
		c.Next()
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
