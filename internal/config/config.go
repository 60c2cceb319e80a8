// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, quota caps,
// provider credentials, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-wingman-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ProviderConfig holds credentials and endpoints for the external model
// providers the cascade executor can call. Empty keys disable a provider.
type ProviderConfig struct {
	OpenAIAPIKey    string // OPENAI_API_KEY
	OpenAIBaseURL   string // OPENAI_BASE_URL (OpenAI-compatible endpoint)
	AnthropicAPIKey string // ANTHROPIC_API_KEY
	AnthropicURL    string // ANTHROPIC_BASE_URL
	GoogleAIAPIKey  string // GOOGLEAI_API_KEY
	GoogleAIURL     string // GOOGLEAI_BASE_URL

	AttemptTimeout time.Duration // per-attempt cap inside the cascade
	OverallTimeout time.Duration // hard deadline for the whole cascade
}

// TierAssignment is a static (provider, model, effort) tuple used for caller
// tiers that do not follow the subscriber degradation staircase.
type TierAssignment struct {
	Provider string
	Model    string
	Effort   string
}

// QuotaConfig holds the caps and grants enforced by the ledger.
type QuotaConfig struct {
	GuestInitialCredits      int           // lifetime grant per guest trial row
	RegisteredInitialCredits int           // lifetime grant per free account
	FreeDailyCap             int           // shared daily pool for free accounts
	RegisteredDailyCap       int           // daily pool for registered non-subscribers
	DailyPeriod              time.Duration // rolling subscriber fair-use window
	WeeklyPeriod             time.Duration // legacy subscriber fair-use window
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath     string // SQLite path
	PolicyPath string // degradation rule file (operator-edited JSON)

	// Model selection
	GuestAssignment      TierAssignment // opener/reply model for guests + free accounts
	RegisteredAssignment TierAssignment // registered-but-unpaid fixed experience
	FallbackModel        string         // last-resort cascade tail
	FallbackProvider     string
	FallbackEffort       string

	// Quotas / gating
	Quota           QuotaConfig
	PreviewWords    int  // words kept per suggestion in locked previews
	ChargeOnUnlock  bool // charge at unlock time instead of generation time
	LockThreshold   int  // subscriber daily count at which replies soft-lock (0 disables)
	SuggestionCount int  // suggestions requested per generation

	// Providers
	Providers ProviderConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:     getenv("DB_PATH", "app.db"),
		PolicyPath: getenv("POLICY_PATH", "data/policy.json"),

		// Model selection
		GuestAssignment: TierAssignment{
			Provider: getenv("GUEST_PROVIDER", "googleai"),
			Model:    getenv("GUEST_MODEL", "gemini-2.0-flash"),
			Effort:   getenv("GUEST_EFFORT", "low"),
		},
		RegisteredAssignment: TierAssignment{
			Provider: getenv("REGISTERED_PROVIDER", "openai"),
			Model:    getenv("REGISTERED_MODEL", "gpt-4o-mini"),
			Effort:   getenv("REGISTERED_EFFORT", "low"),
		},
		FallbackModel:    getenv("FALLBACK_MODEL", "gemini-2.0-flash"),
		FallbackProvider: getenv("FALLBACK_PROVIDER", "googleai"),
		FallbackEffort:   getenv("FALLBACK_EFFORT", "low"),

		// Quotas / gating
		Quota: QuotaConfig{
			GuestInitialCredits:      getint("GUEST_INITIAL_CREDITS", 3),
			RegisteredInitialCredits: getint("REGISTERED_INITIAL_CREDITS", 10),
			FreeDailyCap:             getint("FREE_DAILY_CAP", 5),
			RegisteredDailyCap:       getint("REGISTERED_DAILY_CAP", 10),
			DailyPeriod:              getdur("DAILY_PERIOD", 24*time.Hour),
			WeeklyPeriod:             getdur("WEEKLY_PERIOD", 7*24*time.Hour),
		},
		PreviewWords:    getint("PREVIEW_WORDS", 4),
		ChargeOnUnlock:  getbool("CHARGE_ON_UNLOCK", false),
		LockThreshold:   getint("LOCK_THRESHOLD", 0),
		SuggestionCount: getint("SUGGESTION_COUNT", 3),

		// Providers
		Providers: ProviderConfig{
			OpenAIAPIKey:    getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getenv("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions"),
			AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
			AnthropicURL:    getenv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1/messages"),
			GoogleAIAPIKey:  getenv("GOOGLEAI_API_KEY", ""),
			GoogleAIURL:     getenv("GOOGLEAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
			AttemptTimeout:  getdur("PROVIDER_ATTEMPT_TIMEOUT", 25*time.Second),
			OverallTimeout:  getdur("PROVIDER_OVERALL_TIMEOUT", 70*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-wingman-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.PolicyPath) == "" {
		return cfg, errors.New("POLICY_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.FallbackModel) == "" {
		return cfg, errors.New("FALLBACK_MODEL must not be empty")
	}
	if cfg.Quota.GuestInitialCredits < 0 || cfg.Quota.RegisteredInitialCredits < 0 {
		return cfg, errors.New("initial credit grants must be >= 0")
	}
	if cfg.Quota.FreeDailyCap < 1 || cfg.Quota.RegisteredDailyCap < 1 {
		return cfg, errors.New("daily caps must be >= 1")
	}
	if cfg.Quota.DailyPeriod <= 0 || cfg.Quota.WeeklyPeriod <= 0 {
		return cfg, errors.New("quota periods must be positive durations")
	}
	if cfg.PreviewWords < 1 {
		return cfg, errors.New("PREVIEW_WORDS must be >= 1")
	}
	if cfg.LockThreshold < 0 {
		return cfg, errors.New("LOCK_THRESHOLD must be >= 0")
	}
	if cfg.SuggestionCount < 1 {
		return cfg, errors.New("SUGGESTION_COUNT must be >= 1")
	}
	if cfg.Providers.AttemptTimeout <= 0 || cfg.Providers.OverallTimeout <= 0 {
		return cfg, errors.New("provider timeouts must be positive durations")
	}
	if cfg.Providers.AttemptTimeout > cfg.Providers.OverallTimeout {
		return cfg, errors.New("PROVIDER_ATTEMPT_TIMEOUT must not exceed PROVIDER_OVERALL_TIMEOUT")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
