package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	DatabaseURL string
	// RunMigrations applies pending schema migrations at startup.
	RunMigrations bool

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Detection classifier. When DetectBaseURL is empty and GeminiAPIKey is
	// set, the Gemini classifier is used instead.
	DetectBaseURL string
	DetectAPIKey  string
	GeminiAPIKey  string
	GeminiModel   string

	ComplexCacheTTL time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("ATTUNE_ADDR", ":8080"),
		AuthMode:                   AuthMode(envOr("ATTUNE_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                    make(map[string]struct{}),
		DatabaseURL:                strings.TrimSpace(os.Getenv("ATTUNE_DATABASE_URL")),
		RunMigrations:              envBoolOr("ATTUNE_RUN_MIGRATIONS", true),
		MaxBodyBytes:               envInt64Or("ATTUNE_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CORSAllowedOrigins:         make(map[string]struct{}),
		LimitRPS:                   envFloat64Or("ATTUNE_RATE_LIMIT_RPS", 5.0),
		LimitBurst:                 envIntOr("ATTUNE_RATE_LIMIT_BURST", 10),
		LimitMaxConcurrentRequests: envIntOr("ATTUNE_MAX_CONCURRENT_REQUESTS", 32),
		DetectBaseURL:              envOr("ATTUNE_DETECT_BASE_URL", ""),
		DetectAPIKey:               envOr("ATTUNE_DETECT_API_KEY", ""),
		GeminiAPIKey:               envOr("GEMINI_API_KEY", ""),
		GeminiModel:                envOr("ATTUNE_GEMINI_MODEL", ""),
		ComplexCacheTTL:            envDurationOr("ATTUNE_COMPLEX_CACHE_TTL", 5*time.Minute),
		ReadHeaderTimeout:          envDurationOr("ATTUNE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("ATTUNE_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:             envDurationOr("ATTUNE_TOTAL_REQUEST_TIMEOUT", time.Minute),
		ShutdownGracePeriod:        envDurationOr("ATTUNE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("ATTUNE_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("ATTUNE_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("ATTUNE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("ATTUNE_DATABASE_URL must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("ATTUNE_MAX_BODY_BYTES must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("ATTUNE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("ATTUNE_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("ATTUNE_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.ComplexCacheTTL <= 0 {
		return Config{}, fmt.Errorf("ATTUNE_COMPLEX_CACHE_TTL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ATTUNE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("ATTUNE_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("ATTUNE_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("ATTUNE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("ATTUNE_API_KEYS must be set when ATTUNE_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
