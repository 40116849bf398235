// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the table store, the realtime broker,
// authentication, the AI functions, email, attachment storage, rate limiting,
// and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parentrak/parentrak-backend/internal/sysutil"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "parentrak-api")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the table store.
type DBConfig struct {
	Driver string // sqlite|postgres
	DSN    string // file path for sqlite, URL/DSN for postgres
}

// RedisConfig addresses the Redis instance used for realtime fan-out.
// An empty Addr keeps fan-out in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AIConfig addresses the serverless AI functions.
type AIConfig struct {
	BaseURL string        // AI_BASE_URL; empty disables AI calls
	APIKey  string        // AI_API_KEY, sent as a bearer token
	Timeout time.Duration // AI_TIMEOUT per request
}

// EmailConfig configures outgoing email through Amazon SES.
type EmailConfig struct {
	Region     string // SES_REGION
	FromEmail  string // SES_FROM_EMAIL; empty disables sending
	FromName   string // SES_FROM_NAME
	AppBaseURL string // APP_BASE_URL used in links
}

// StorageConfig configures attachment storage.
type StorageConfig struct {
	Dir            string // STORAGE_DIR
	PublicURL      string // STORAGE_PUBLIC_URL prefix for returned links
	MaxUploadBytes int64  // MAX_UPLOAD_BYTES
}

// RealtimeConfig tunes websocket push channels.
type RealtimeConfig struct {
	WriteTimeout time.Duration // WS_WRITE_TIMEOUT
	PingInterval time.Duration // WS_PING_INTERVAL
	Buffer       int           // WS_BUFFER events per subscriber
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

	// Stores
	DB    DBConfig
	Redis RedisConfig

	// Auth
	JWTSecret      string        // AUTH_JWT_SECRET; empty trusts X-User-* headers (dev only)
	PermissionTTL  time.Duration // PERMISSION_CACHE_TTL
	SearchMinScore float64       // minimum Jaccard score for log search hits [0,1]

	// Integrations
	AI       AIConfig
	Email    EmailConfig
	Storage  StorageConfig
	Realtime RealtimeConfig

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

		// Stores
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:    getenv("DB_DSN", "parentrak.db"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Auth
		JWTSecret:      getenv("AUTH_JWT_SECRET", ""),
		PermissionTTL:  getdur("PERMISSION_CACHE_TTL", 5*time.Minute),
		SearchMinScore: getfloat("SEARCH_MIN_SCORE", 0.05),

		// Integrations
		AI: AIConfig{
			BaseURL: strings.TrimRight(getenv("AI_BASE_URL", ""), "/"),
			APIKey:  getenv("AI_API_KEY", ""),
			Timeout: getdur("AI_TIMEOUT", 30*time.Second),
		},
		Email: EmailConfig{
			Region:     getenv("SES_REGION", "us-east-1"),
			FromEmail:  getenv("SES_FROM_EMAIL", ""),
			FromName:   getenv("SES_FROM_NAME", "Parentrak"),
			AppBaseURL: strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:8080"), "/"),
		},
		Storage: StorageConfig{
			Dir:            getenv("STORAGE_DIR", "uploads"),
			PublicURL:      strings.TrimRight(getenv("STORAGE_PUBLIC_URL", "/files"), "/"),
			MaxUploadBytes: int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Realtime: RealtimeConfig{
			WriteTimeout: getdur("WS_WRITE_TIMEOUT", 10*time.Second),
			PingInterval: getdur("WS_PING_INTERVAL", 30*time.Second),
			Buffer:       getint("WS_BUFFER", 64),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "parentrak-api"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
}

// validate reports every invalid setting at once so a bad deploy can be
// fixed in one pass.
func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	check(oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
		"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	check(oneOf(c.DB.Driver, "sqlite", "postgres"), "DB_DRIVER must be one of: sqlite, postgres")
	check(strings.TrimSpace(c.DB.DSN) != "", "DB_DSN must not be empty")
	check(c.Redis.DB >= 0, "REDIS_DB must be >= 0")

	check(c.PermissionTTL > 0, "PERMISSION_CACHE_TTL must be > 0")
	check(c.SearchMinScore >= 0 && c.SearchMinScore <= 1, "SEARCH_MIN_SCORE must be between 0 and 1")
	check(c.AI.Timeout > 0, "AI_TIMEOUT must be > 0")
	check(c.Storage.MaxUploadBytes > 0, "MAX_UPLOAD_BYTES must be > 0")
	check(c.Realtime.WriteTimeout > 0 && c.Realtime.PingInterval > 0,
		"WS_WRITE_TIMEOUT and WS_PING_INTERVAL must be > 0")
	check(c.Realtime.Buffer >= 1, "WS_BUFFER must be >= 1")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ---- helpers ----

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
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
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
