package server

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/roomrelay/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	defaultPort            = ":3001"
	defaultMaxMessageSize  = 64 * 1024
	defaultSendBuffer      = 256
	defaultShutdownTimeout = 10 * time.Second
	defaultMode            = "development"
)

// Config holds the server configuration settings.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBuffer      int
	ShutdownTimeout time.Duration
	Mode            string
	Log             logger.LogConfig
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
		Port:            defaultPort,
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBuffer:      defaultSendBuffer,
		ShutdownTimeout: defaultShutdownTimeout,
		Mode:            defaultMode,
		Log: logger.LogConfig{
			Level:      "info",
			Filename:   "./logs/relay.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	cfg.Port = normalizePort(cfg.Port)

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = defaultMode
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins
	if allowAll {
		cfg.AllowedOrigins = append([]string{"*"}, normalizedOrigins...)
	}

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

// SetConfig applies the provided configuration and returns the sanitized
// result. Passing nil resets to defaults.
func SetConfig(cfg *Config) Config {
	if cfg == nil {
		return sanitizeConfig(defaultConfig())
	}

	applied := *cfg
	applied.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return sanitizeConfig(applied)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadEnvFile loads variables from the given .env files into the process
// environment without overriding values that are already set. A missing
// default ".env" is not an error.
func LoadEnvFile(filenames ...string) error {
	if len(filenames) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	return godotenv.Load(filenames...)
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset or unparsable values fall back to defaults.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = parseInt64Value(v, cfg.MaxMessageSize)
	}
	if v := os.Getenv("SEND_BUFFER"); v != "" {
		cfg.SendBuffer = parseIntValue(v, cfg.SendBuffer)
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = parseSeconds(v, cfg.ShutdownTimeout)
	}
	if mode := os.Getenv("MODE"); mode != "" {
		cfg.Mode = mode
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if filename, ok := os.LookupEnv("LOG_FILENAME"); ok {
		cfg.Log.Filename = filename
	}
	if v := os.Getenv("LOG_MAX_SIZE"); v != "" {
		cfg.Log.MaxSize = parseIntValue(v, cfg.Log.MaxSize)
	}
	if v := os.Getenv("LOG_MAX_AGE"); v != "" {
		cfg.Log.MaxAge = parseIntValue(v, cfg.Log.MaxAge)
	}
	if v := os.Getenv("LOG_MAX_BACKUPS"); v != "" {
		cfg.Log.MaxBackups = parseIntValue(v, cfg.Log.MaxBackups)
	}

	return &cfg
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := cast.ToInt64E(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := cast.ToIntE(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := cast.ToIntE(strings.TrimSpace(value)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
