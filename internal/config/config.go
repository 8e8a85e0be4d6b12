// Package config loads the server settings from the environment. A value
// that is set but malformed fails Load instead of silently falling back to
// its default, and every problem is reported in one error.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig lists the browser origins allowed to call the API. Empty
// allows any origin.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma separated
}

// SecurityConfig controls transport hardening headers.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig controls trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	Secret              string        // AUTH_SECRET, HMAC key for access tokens
	AccessTokenTTL      time.Duration // ACCESS_TOKEN_TTL
	RefreshTokenTTL     time.Duration // REFRESH_TOKEN_TTL
	RefreshCookieSecure bool          // REFRESH_COOKIE_SECURE
}

// RealtimeConfig bounds each WebSocket connection.
type RealtimeConfig struct {
	WriteTimeout    time.Duration // WS_WRITE_TIMEOUT
	PongTimeout     time.Duration // WS_PONG_TIMEOUT
	MaxMessageBytes int64         // WS_MAX_MESSAGE_BYTES
}

// PingInterval is the keepalive period, kept below the pong timeout.
func (r RealtimeConfig) PingInterval() time.Duration {
	return r.PongTimeout * 9 / 10
}

// Config is the full server configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBDriver    string // sqlite|postgres
	DBPath      string
	DatabaseURL string

	// SameFlightTolerance is the largest departure delta still treated as
	// the same flight.
	SameFlightTolerance time.Duration
	MessageMaxRunes     int

	Auth     AuthConfig
	Realtime RealtimeConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Load reads the environment, applies defaults and validates the result.
func Load() (Config, error) {
	e := &env{}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    basePath(e.str("API_BASE_PATH", "/api/v1")),

		DBDriver:    strings.ToLower(e.str("DB_DRIVER", "sqlite")),
		DBPath:      e.str("DB_PATH", "app.db"),
		DatabaseURL: e.str("DATABASE_URL", ""),

		SameFlightTolerance: e.dur("SAME_FLIGHT_TOLERANCE", 0),
		MessageMaxRunes:     e.int("MESSAGE_MAX_RUNES", 2000),

		Auth: AuthConfig{
			Secret:              e.str("AUTH_SECRET", ""),
			AccessTokenTTL:      e.dur("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:     e.dur("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			RefreshCookieSecure: e.bool("REFRESH_COOKIE_SECURE", true),
		},
		Realtime: RealtimeConfig{
			WriteTimeout:    e.dur("WS_WRITE_TIMEOUT", 10*time.Second),
			PongTimeout:     e.dur("WS_PONG_TIMEOUT", 60*time.Second),
			MaxMessageBytes: int64(e.int("WS_MAX_MESSAGE_BYTES", 8192)),
		},

		RateRPS:   e.float("RATE_RPS", 5),
		RateBurst: e.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: csv(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "layover-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DBDriver {
	case "sqlite":
		check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DatabaseURL) != "", "DATABASE_URL must be set when DB_DRIVER=postgres")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}

	check(c.SameFlightTolerance >= 0, "SAME_FLIGHT_TOLERANCE must be >= 0")
	check(c.MessageMaxRunes > 0, "MESSAGE_MAX_RUNES must be > 0")
	check(len(c.Auth.Secret) >= 32, "AUTH_SECRET must be at least 32 bytes")
	check(c.Auth.AccessTokenTTL > 0 && c.Auth.RefreshTokenTTL > c.Auth.AccessTokenTTL,
		"REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL, which must be positive")
	check(c.Realtime.WriteTimeout > 0 && c.Realtime.PongTimeout > 0, "WS timeouts must be positive")
	check(c.Realtime.MaxMessageBytes >= 512, "WS_MAX_MESSAGE_BYTES must be >= 512")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// LoadEnvFile merges KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing optional file is not an error.
func LoadEnvFile(path string, optional bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// env reads typed variables. Unset or blank keys yield the default; keys
// that fail to parse yield the default and record an error.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(key, raw, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", key, raw, kind))
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	raw, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, raw, "integer")
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	raw, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail(key, raw, "number")
		return def
	}
	return f
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	raw, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, raw, "duration")
		return def
	}
	return d
}

func (e *env) bool(key string, def bool) bool {
	raw, ok := e.lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(key, raw, "boolean")
	return def
}

func csv(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// basePath returns p with one leading slash and no trailing slash; blank
// is the root.
func basePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
