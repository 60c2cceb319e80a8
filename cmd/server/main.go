// Command server runs the usage-tiered generation gateway.
//
// Boot order:
//  1. Load .env (best effort) and environment configuration.
//  2. Configure zerolog (level, pretty console in dev).
//  3. Open SQLite, run migrations.
//  4. Load the degradation policy rule file.
//  5. Construct provider clients for every configured API key.
//  6. Set up OpenTelemetry (optional) and the Gin engine.
//  7. Serve until SIGINT/SIGTERM, then drain gracefully.
//
// @title        Wingman Generation Gateway API
// @version      1.0
// @description  Usage-tiered AI suggestion backend with quota enforcement and provider fallback.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/tbourn/go-wingman-backend/docs" // swagger spec, generated
	"github.com/tbourn/go-wingman-backend/internal/config"
	httpapi "github.com/tbourn/go-wingman-backend/internal/http"
	"github.com/tbourn/go-wingman-backend/internal/observability"
	"github.com/tbourn/go-wingman-backend/internal/policy"
	"github.com/tbourn/go-wingman-backend/internal/provider"
	"github.com/tbourn/go-wingman-backend/internal/repo"
	"github.com/tbourn/go-wingman-backend/internal/sysutil"
	"github.com/tbourn/go-wingman-backend/internal/utils"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; absent .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("version", version).
		Str("gin_mode", cfg.GinMode).
		Str("db", cfg.DBPath).
		Msg("starting generation gateway")

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	pol := policy.Load(cfg.PolicyPath,
		policy.Entry{Provider: cfg.GuestAssignment.Provider, Model: cfg.GuestAssignment.Model, Effort: cfg.GuestAssignment.Effort},
		policy.Entry{Provider: cfg.RegisteredAssignment.Provider, Model: cfg.RegisteredAssignment.Model, Effort: cfg.RegisteredAssignment.Effort},
		policy.Entry{Provider: cfg.FallbackProvider, Model: cfg.FallbackModel, Effort: cfg.FallbackEffort},
	)

	clients := buildClients(cfg.Providers)
	if len(clients) == 0 {
		log.Warn().Msg("no provider API keys configured; every generation will fall through to the placeholder")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup opentelemetry")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, pol, clients, cfg)

	if cfg.SwaggerEnabled {
		engine.GET("/swagger/*any",
			gzip.Gzip(gzip.DefaultCompression),
			ginSwagger.WrapHandler(swaggerFiles.Handler),
		)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	drain, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drain); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(drain); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}

// buildClients constructs one provider client per configured API key. Keys
// are logged masked only.
func buildClients(pc config.ProviderConfig) provider.Registry {
	clients := provider.Registry{}
	if pc.OpenAIAPIKey != "" {
		clients["openai"] = provider.NewOpenAIClient(pc.OpenAIAPIKey, pc.OpenAIBaseURL, pc.AttemptTimeout)
		log.Info().Str("key", utils.Mask(pc.OpenAIAPIKey)).Msg("openai client configured")
	}
	if pc.AnthropicAPIKey != "" {
		clients["anthropic"] = provider.NewAnthropicClient(pc.AnthropicAPIKey, pc.AnthropicURL, pc.AttemptTimeout)
		log.Info().Str("key", utils.Mask(pc.AnthropicAPIKey)).Msg("anthropic client configured")
	}
	if pc.GoogleAIAPIKey != "" {
		clients["googleai"] = provider.NewGoogleAIClient(pc.GoogleAIAPIKey, pc.GoogleAIURL, pc.AttemptTimeout)
		log.Info().Str("key", utils.Mask(pc.GoogleAIAPIKey)).Msg("googleai client configured")
	}
	return clients
}
