// Package server provides configuration helpers that define runtime
// defaults, validation, and tunables for the Parlor service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// AuthConfig holds credential issuance settings.
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// UploadConfig holds blob-store settings, including the bounded retry
// policy applied to the external store call.
type UploadConfig struct {
	Endpoint      string
	PublicKey     string
	MaxAttempts   int
	RetryInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	Auth           AuthConfig
	Upload         UploadConfig

	// RejoinNotify controls whether joining an already-joined room
	// re-emits the welcome and presence events. Membership itself is
	// unaffected either way.
	RejoinNotify bool
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 1 << 20,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		Auth: AuthConfig{
			Secret:   "parlor-dev-secret-change-in-production",
			TokenTTL: 24 * time.Hour,
		},
		Upload: UploadConfig{
			Endpoint:      "https://upload.uploadcare.com/base/",
			MaxAttempts:   5,
			RetryInterval: time.Second,
		},
		RejoinNotify: true,
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = def.Auth.Secret
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = def.Auth.TokenTTL
	}
	if cfg.Upload.Endpoint == "" {
		cfg.Upload.Endpoint = def.Upload.Endpoint
	}
	if cfg.Upload.MaxAttempts <= 0 {
		cfg.Upload.MaxAttempts = def.Upload.MaxAttempts
	}
	if cfg.Upload.RetryInterval <= 0 {
		cfg.Upload.RetryInterval = def.Upload.RetryInterval
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}
	if ttl := os.Getenv("TOKEN_TTL_HOURS"); ttl != "" {
		if hours, err := strconv.Atoi(ttl); err == nil && hours > 0 {
			cfg.Auth.TokenTTL = time.Duration(hours) * time.Hour
		}
	}
	if endpoint := os.Getenv("UPLOAD_ENDPOINT"); endpoint != "" {
		cfg.Upload.Endpoint = endpoint
	}
	if key := os.Getenv("UPLOADCARE_PUBLIC_KEY"); key != "" {
		cfg.Upload.PublicKey = key
	}
	if attempts := os.Getenv("UPLOAD_MAX_ATTEMPTS"); attempts != "" {
		cfg.Upload.MaxAttempts = parseIntValue(attempts, cfg.Upload.MaxAttempts)
	}
	if interval := os.Getenv("UPLOAD_RETRY_INTERVAL"); interval != "" {
		cfg.Upload.RetryInterval = parseSeconds(interval, cfg.Upload.RetryInterval)
	}
	if rejoin := os.Getenv("REJOIN_NOTIFY"); rejoin != "" {
		if parsed, err := strconv.ParseBool(rejoin); err == nil {
			cfg.RejoinNotify = parsed
		}
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
