// Package httpapi mounts the triage API on a Gin engine together with its
// middleware chain, health, metrics and docs endpoints.
//
// Every API route is scoped to the mailbox named by X-User-Email.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-mail-triage/docs" // swagger spec registration
	"github.com/tbourn/go-mail-triage/internal/cache"
	"github.com/tbourn/go-mail-triage/internal/config"
	"github.com/tbourn/go-mail-triage/internal/http/handlers"
	"github.com/tbourn/go-mail-triage/internal/http/middleware"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/services"
)

// maxBodyBytes caps request bodies, raw RFC 5322 uploads included.
const maxBodyBytes = 1 << 20

const corsMaxAge = 12 * time.Hour

var (
	corsMethods = []string{"GET", "POST", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		middleware.HeaderUserEmail, middleware.HeaderIdempotencyKey,
	}
	corsExpose = []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderIdempotencyReplayed}
)

// RegisterRoutes installs the middleware chain and every endpoint on r.
// A nil rc disables the rule snapshot cache.
//
// Global order: tracing, request id, access log and scoped logger, panic
// recovery, body limit and gzip, metrics, CORS, security headers. The API
// group adds identity and private caching, then the Idempotency-Key check
// and finally the per-mailbox rate limiter, which lets replays through.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, rc cache.RuleSetCache, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	if rc == nil {
		rc = cache.Noop{}
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.Use(corsChain(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(
		services.NewRuleService(db, rc),
		&services.PendingService{DB: db},
		&services.EvaluationService{DB: db, Cache: rc, Concurrency: cfg.EvalConcurrency},
		&services.AuditService{DB: db},
		db, cfg.IdempotencyTTL,
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Identity(),
		middleware.MailboxCache(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, replayLookup(db)),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByMailboxOrIP()).Handler(),
	)
	mountAPI(api, h)
}

func mountAPI(api *gin.RouterGroup, h *handlers.Handlers) {
	api.POST("/criteria/modify", h.ModifyCriteria)
	api.POST("/rules", h.ModifyRule)
	api.GET("/rules/:dimension", h.GetRule)
	api.GET("/rules/:dimension/:key", h.GetRule)

	api.POST("/emails", h.IngestEmails)
	api.POST("/emails/raw", h.IngestRawEmail)
	api.GET("/emails", h.ListEmails)
	api.POST("/emails/evaluate", h.EvaluateEmails)

	api.GET("/audit", h.ListAudit)
}

// replayLookup reports whether a live stored response exists for the
// caller's Idempotency-Key.
func replayLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, user, route, key string, now time.Time) (bool, error) {
		_, err := repo.FindReplay(ctx, db, repo.ReplayKey{User: user, Route: route, Key: key}, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// corsChain allows any origin when none are configured. With a list, allowed
// origins are echoed even on same-host requests, which gin-contrib/cors
// skips.
func corsChain(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: corsExpose,
		MaxAge:        corsMaxAge,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); o != "" {
				if _, ok := allowed[o]; ok {
					c.Writer.Header().Set("Access-Control-Allow-Origin", o)
					c.Writer.Header().Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody wraps the body in http.MaxBytesReader; reads past maxBytes fail.
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
