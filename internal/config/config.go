// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, monitor timing, rate
// limiting, and observability.
//
// Telegram credentials are a deliberate exception: they are carried but NOT
// validated here. The supervisor validates them on every connect attempt so
// a missing credential is a recoverable status error instead of a startup
// crash.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "tg-monitor")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TelegramConfig defines the monitored account's session settings. Checked
// at connect time, not at load time.
type TelegramConfig struct {
	APIID         int    // TELEGRAM_API_ID
	APIHash       string // TELEGRAM_API_HASH
	SessionFile   string // SESSION_FILE
	TargetChannel string // TARGET_CHANNEL (human-readable title)
}

// MonitorConfig defines supervisor and cleaner timing.
type MonitorConfig struct {
	PollInterval      time.Duration // control-state poll cadence
	ConnectBackoff    time.Duration // sleep after a failed connect
	DisconnectTimeout time.Duration // bound on cooperative disconnects
	ForwardRetryAfter time.Duration // claim exclusivity window
	BackfillLimit     int           // max messages per chat per backfill pass

	CleanupHourUTC      int // daily cleanup hour (0..23, UTC)
	ErrorRetentionDays  int // error event retention window
	LedgerRetentionDays int // forward claim retention window
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

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Monitored account
	Telegram TelegramConfig

	// Monitor timing
	Monitor MonitorConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "monitor.db"),

		// Monitored account (validated at connect time)
		Telegram: TelegramConfig{
			APIID:         getint("TELEGRAM_API_ID", 0),
			APIHash:       getenv("TELEGRAM_API_HASH", ""),
			SessionFile:   getenv("SESSION_FILE", "telegram.session"),
			TargetChannel: getenv("TARGET_CHANNEL", ""),
		},

		// Monitor timing
		Monitor: MonitorConfig{
			PollInterval:        getdur("POLL_INTERVAL", time.Second),
			ConnectBackoff:      getdur("CONNECT_BACKOFF", 3*time.Second),
			DisconnectTimeout:   getdur("DISCONNECT_TIMEOUT", 10*time.Second),
			ForwardRetryAfter:   getdur("FORWARD_RETRY_AFTER", 60*time.Second),
			BackfillLimit:       getint("BACKFILL_LIMIT", 100),
			CleanupHourUTC:      getint("CLEANUP_HOUR_UTC", 3),
			ErrorRetentionDays:  getint("ERROR_RETENTION_DAYS", 7),
			LedgerRetentionDays: getint("LEDGER_RETENTION_DAYS", 30),
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

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "tg-monitor"),
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
	if cfg.Monitor.PollInterval <= 0 || cfg.Monitor.ConnectBackoff <= 0 ||
		cfg.Monitor.DisconnectTimeout <= 0 || cfg.Monitor.ForwardRetryAfter <= 0 {
		return cfg, errors.New("monitor intervals must be positive durations")
	}
	if cfg.Monitor.BackfillLimit < 1 {
		return cfg, errors.New("BACKFILL_LIMIT must be >= 1")
	}
	if cfg.Monitor.CleanupHourUTC < 0 || cfg.Monitor.CleanupHourUTC > 23 {
		return cfg, errors.New("CLEANUP_HOUR_UTC must be in [0,23]")
	}
	if cfg.Monitor.ErrorRetentionDays < 1 || cfg.Monitor.LedgerRetentionDays < 1 {
		return cfg, errors.New("retention windows must be >= 1 day")
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
