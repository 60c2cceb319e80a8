// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/config"
	"github.com/tbourn/go-wingman-backend/internal/http/handlers"
	"github.com/tbourn/go-wingman-backend/internal/http/middleware"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/policy"
	"github.com/tbourn/go-wingman-backend/internal/provider"
	"github.com/tbourn/go-wingman-backend/internal/repo"
	"github.com/tbourn/go-wingman-backend/internal/services"
	"github.com/tbourn/go-wingman-backend/internal/vault"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, pol *policy.Resolver, clients provider.Registry, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
			"X-Device-ID", // raw fingerprints never reach logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (4 MiB: screenshots ride in as base64)
	r.Use(limitBody(4 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, deviceID, clientIP, key string, now time.Time) (bool, error) {
			id, found := identity.Resolve(identity.Hint{UserID: userID, Fingerprint: deviceID, ClientIP: clientIP})
			if !found {
				return false, nil
			}
			return repo.HasIdempotency(ctx, db, id.OwnerKey(), key, now)
		},
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Device-ID", middleware.HeaderIdempotencyKey},
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Device-ID", middleware.HeaderIdempotencyKey},
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

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/policy/providers
	classifier := identity.NewClassifier(db, cfg.Quota.GuestInitialCredits, cfg.Quota.RegisteredInitialCredits)
	led := &ledger.Ledger{
		DB:                 db,
		FreeDailyCap:       cfg.Quota.FreeDailyCap,
		RegisteredDailyCap: cfg.Quota.RegisteredDailyCap,
		DailyPeriod:        cfg.Quota.DailyPeriod,
		WeeklyPeriod:       cfg.Quota.WeeklyPeriod,
	}
	vlt := vault.New(db, cfg.PreviewWords)
	exec := &provider.Executor{
		Clients:        clients,
		AttemptTimeout: cfg.Providers.AttemptTimeout,
		OverallTimeout: cfg.Providers.OverallTimeout,
	}
	events := services.NewEventService(db)

	sugSvc := &services.SuggestionService{
		DB:              db,
		Classifier:      classifier,
		Policy:          pol,
		Ledger:          led,
		Vault:           vlt,
		Executor:        exec,
		Events:          events,
		SuggestionCount: cfg.SuggestionCount,
		MaxContextRunes: 4000,
		LockThreshold:   cfg.LockThreshold,
		ChargeOnUnlock:  cfg.ChargeOnUnlock,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}
	unlockSvc := &services.UnlockService{
		DB:             db,
		Classifier:     classifier,
		Vault:          vlt,
		Ledger:         led,
		ChargeOnUnlock: cfg.ChargeOnUnlock,
	}
	acctSvc := &services.AccountService{DB: db, Classifier: classifier, Ledger: led}
	h := handlers.New(sugSvc, unlockSvc, acctSvc, events)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Generation
		api.POST("/suggestions", h.PostSuggestions)

		// Locked replies
		api.POST("/locks/:id/unlock", h.Unlock)
		api.GET("/locks/latest", h.LatestLock)

		// Account
		api.GET("/account", h.GetAccount)

		// Analytics
		api.POST("/events/copy", h.PostCopyEvent)
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
