// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, the analysis pipeline (endpoint, deadline, retries,
// fallback keywords), plan quotas, the upstream OpenAI analyzer, edge rate
// limiting and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the browser origins allowed to call the API; empty allows all.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls the HSTS header.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-content-review")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AnalysisConfig configures the analysis pipeline.
type AnalysisConfig struct {
	Endpoint         string        // ANALYSIS_ENDPOINT
	Timeout          time.Duration // ANALYSIS_TIMEOUT, per attempt
	MaxRetries       int           // ANALYSIS_MAX_RETRIES, additional attempts
	BackoffBase      time.Duration // ANALYSIS_BACKOFF_BASE, delay = 2^attempt * base
	MinInterval      time.Duration // ANALYSIS_MIN_INTERVAL between dispatched analyses
	FallbackKeywords []string      // FALLBACK_KEYWORDS
}

// PlansConfig holds the usage limit of each plan.
type PlansConfig struct {
	FreeLimit int // FREE_USAGE_LIMIT
	ProLimit  int // PRO_USAGE_LIMIT
	SeedDemo  bool
}

// OpenAIConfig configures the built-in /moderate endpoint.
type OpenAIConfig struct {
	APIKey          string // OPENAI_API_KEY; empty disables /moderate
	ModerationModel string // OPENAI_MODERATION_MODEL
	ChatModel       string // OPENAI_CHAT_MODEL
}

// Config is the full runtime configuration of the server.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed the worst-case analysis time
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Storage
	DBPath string // SQLite path

	Analysis AnalysisConfig
	Plans    PlansConfig
	OpenAI   OpenAIConfig

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

// MustLoad is Load for process startup: it panics on an invalid environment.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load builds a Config from the environment. Unset variables take their
// defaults; the result is normalized and then validated.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "app.db"),

		Analysis: AnalysisConfig{
			Endpoint:         getenv("ANALYSIS_ENDPOINT", "http://localhost:8080/moderate"),
			Timeout:          getdur("ANALYSIS_TIMEOUT", 8*time.Second),
			MaxRetries:       getint("ANALYSIS_MAX_RETRIES", 2),
			BackoffBase:      getdur("ANALYSIS_BACKOFF_BASE", time.Second),
			MinInterval:      getdur("ANALYSIS_MIN_INTERVAL", time.Second),
			FallbackKeywords: splitCSV(getenv("FALLBACK_KEYWORDS", "horrível,péssimo,ruim")),
		},
		Plans: PlansConfig{
			FreeLimit: getint("FREE_USAGE_LIMIT", 100),
			ProLimit:  getint("PRO_USAGE_LIMIT", 1000),
			SeedDemo:  getbool("SEED_DEMO_USERS", true),
		},
		OpenAI: OpenAIConfig{
			APIKey:          getenv("OPENAI_API_KEY", ""),
			ModerationModel: getenv("OPENAI_MODERATION_MODEL", "omni-moderation-latest"),
			ChatModel:       getenv("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-content-review"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// normalize
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// validate
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
	if err := validateEndpoint(cfg.Analysis.Endpoint); err != nil {
		return cfg, err
	}
	if cfg.Analysis.Timeout <= 0 {
		return cfg, errors.New("ANALYSIS_TIMEOUT must be > 0")
	}
	if cfg.Analysis.MaxRetries < 0 {
		return cfg, errors.New("ANALYSIS_MAX_RETRIES must be >= 0")
	}
	if cfg.Analysis.BackoffBase <= 0 {
		return cfg, errors.New("ANALYSIS_BACKOFF_BASE must be > 0")
	}
	if cfg.Analysis.MinInterval < 0 {
		return cfg, errors.New("ANALYSIS_MIN_INTERVAL must be >= 0")
	}
	if len(cfg.Analysis.FallbackKeywords) == 0 {
		return cfg, errors.New("FALLBACK_KEYWORDS must list at least one keyword")
	}
	if cfg.Plans.FreeLimit < 1 || cfg.Plans.ProLimit < 1 {
		return cfg, errors.New("FREE_USAGE_LIMIT and PRO_USAGE_LIMIT must be >= 1")
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

// WorstCaseAnalysis is the longest an analysis can take: every attempt hits
// the deadline and every backoff delay is slept.
func (a AnalysisConfig) WorstCaseAnalysis() time.Duration {
	total := time.Duration(a.MaxRetries+1) * a.Timeout
	for i := 0; i < a.MaxRetries; i++ {
		total += a.BackoffBase << i
	}
	return total
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("ANALYSIS_ENDPOINT must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// env helpers: unset or unparsable values yield def.

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

// normalizeBasePath turns "api/v1/" into "/api/v1"; "" and "/" stay root.
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
