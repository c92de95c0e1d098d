// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-content-review/internal/config"
	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/fallback"
	"github.com/tbourn/go-content-review/internal/http/handlers"
	"github.com/tbourn/go-content-review/internal/http/middleware"
	"github.com/tbourn/go-content-review/internal/quota"
	"github.com/tbourn/go-content-review/internal/repo"
	"github.com/tbourn/go-content-review/internal/retry"
	"github.com/tbourn/go-content-review/internal/services"
	"github.com/tbourn/go-content-review/internal/transport"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

const moderatePath = "/moderate"

// App is the service graph behind the routes.
type App struct {
	Sessions *services.Sessions
	Accounts *services.AccountService
	Guest    *services.AnalysisService
}

// NewApp builds the service graph. Each session gets its own pipeline
// (history, interval limiter, in-progress flag); the transport, retry
// policy and fallback classifier are shared since they hold no per-user
// state.
func NewApp(db *gorm.DB, cfg config.Config) *App {
	a := cfg.Analysis
	client := transport.New(a.Endpoint, a.Timeout)
	rc := retry.New(a.MaxRetries, a.BackoffBase)
	fb := fallback.New(a.FallbackKeywords)
	logger := log.Logger

	newAnalysis := func() *services.AnalysisService {
		return services.NewAnalysisService(client, rc, fb, quota.NewIntervalLimiter(a.MinInterval), logger)
	}
	store := repo.UserStore{DB: db}
	sessions := services.NewSessions(store, newAnalysis)
	limits := domain.Limits{Free: cfg.Plans.FreeLimit, Pro: cfg.Plans.ProLimit}

	return &App{
		Sessions: sessions,
		Accounts: services.NewAccountService(db, store, limits, sessions),
		Guest:    newAnalysis(),
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. analyzer backs POST /moderate and may be nil.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, Identity: correlation id and caller id for the logger
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (verified user, else IP; bypass on replay; /moderate exempt)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, app *App, analyzer handlers.Analyzer, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	idem := repo.IdempotencyStore{DB: db}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Exists))

	// /moderate is the pipeline's own upstream by default; its callers are
	// the per-session orchestrators, already bounded by MIN_INTERVAL.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByVerifiedUserOrIP(knownUser(db, app.Sessions))).
		Exempt(moderatePath)
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": app.Sessions.Len()})
	})

	opts := []handlers.Option{handlers.WithIdempotency(idem, cfg.IdempotencyTTL)}
	if analyzer != nil {
		opts = append(opts, handlers.WithAnalyzer(analyzer))
	}
	h := handlers.New(app.Accounts, app.Guest, opts...)

	// Upstream analysis endpoint, outside the versioned API so the default
	// ANALYSIS_ENDPOINT can point at this process.
	r.POST(moderatePath, h.Moderate)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/users", h.Register)
		api.GET("/me", h.Me)
		api.PUT("/me/plan", h.ChangePlan)
		api.DELETE("/session", h.Logout)

		api.POST("/analyze", h.Analyze)
		api.GET("/analyses", h.ListAnalyses)
		api.GET("/analyses/selected", h.GetSelected)
		api.PUT("/analyses/selected", h.PutSelected)
		api.GET("/analyses/:id/report", h.Report)
	}
}

// knownUser accepts ids with an open session or a users row.
func knownUser(db *gorm.DB, sessions *services.Sessions) middleware.UserVerifier {
	return func(ctx context.Context, id string) bool {
		if _, ok := sessions.Lookup(id); ok {
			return true
		}
		_, err := repo.GetUser(ctx, db, id)
		return err == nil
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// only the listed ones.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "If-None-Match",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{
			"X-Request-ID", "Content-Length", "Content-Disposition", "ETag",
			"Retry-After", middleware.HeaderIdempotencyReplayed,
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// limitBody caps the request body size using http.MaxBytesReader.
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
