// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/config"
	"github.com/dkhv/tg-monitor/internal/domain"
	"github.com/dkhv/tg-monitor/internal/http/handlers"
	"github.com/dkhv/tg-monitor/internal/http/middleware"
	"github.com/dkhv/tg-monitor/internal/repo"
	"github.com/dkhv/tg-monitor/internal/services"
)

// controlRepoShim adapts the repository free functions to the
// services.ControlRepo interface expected by the ControlService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type controlRepoShim struct{}

// BotStateGet proxies repo.BotStateGet.
func (controlRepoShim) BotStateGet(ctx context.Context, db *gorm.DB) (*domain.BotState, error) {
	return repo.BotStateGet(ctx, db)
}

// BotStateSetEnabled proxies repo.BotStateSetEnabled.
func (controlRepoShim) BotStateSetEnabled(ctx context.Context, db *gorm.DB, enabled bool) error {
	return repo.BotStateSetEnabled(ctx, db, enabled)
}

// BotStateRequestRestart proxies repo.BotStateRequestRestart.
func (controlRepoShim) BotStateRequestRestart(ctx context.Context, db *gorm.DB) error {
	return repo.BotStateRequestRestart(ctx, db)
}

// AppStatusGet proxies repo.AppStatusGet.
func (controlRepoShim) AppStatusGet(ctx context.Context, db *gorm.DB) (*domain.AppStatus, error) {
	return repo.AppStatusGet(ctx, db)
}

// ErrorEventList proxies repo.ErrorEventList.
func (controlRepoShim) ErrorEventList(ctx context.Context, db *gorm.DB, limit int) ([]domain.ErrorEvent, error) {
	return repo.ErrorEventList(ctx, db, limit)
}

// keywordRepoShim adapts the repository free functions to the
// services.KeywordRepo interface.
type keywordRepoShim struct{}

// KeywordAdd proxies repo.KeywordAdd.
func (keywordRepoShim) KeywordAdd(ctx context.Context, db *gorm.DB, keyword string) (*domain.Keyword, error) {
	return repo.KeywordAdd(ctx, db, keyword)
}

// KeywordDelete proxies repo.KeywordDelete.
func (keywordRepoShim) KeywordDelete(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.KeywordDelete(ctx, db, id)
}

// KeywordList proxies repo.KeywordList.
func (keywordRepoShim) KeywordList(ctx context.Context, db *gorm.DB, q string, limit, offset int) ([]domain.Keyword, int64, error) {
	return repo.KeywordList(ctx, db, q, limit, offset)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned admin API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Rate limiter (per client IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, sup handlers.SupervisorInfo, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Authorization",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses (log pages can get large)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health. Reads the control row so a wedged database surfaces
	// here instead of only in the supervisor loop.
	r.GET("/health", func(c *gin.Context) {
		if _, err := repo.BotStateGet(c.Request.Context(), db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Dependency injection: services ← repo/db
	ctlSvc := services.NewControlService(db, controlRepoShim{})
	kwSvc := services.NewKeywordService(db, keywordRepoShim{})
	h := handlers.New(ctlSvc, kwSvc, sup)

	// Admin API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Status
		api.GET("/status", h.Status)

		// Controls
		api.POST("/controls/enable", h.Enable)
		api.POST("/controls/disable", h.Disable)
		api.POST("/controls/restart", h.Restart)

		// Keywords
		api.POST("/keywords", h.CreateKeyword)
		api.GET("/keywords", h.ListKeywords)
		api.DELETE("/keywords/:id", h.DeleteKeyword)

		// Logs
		api.GET("/logs", h.ListLogs)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
