package observability

import (
	"os"
	"strconv"
	"strings"
)

// Config controls logging and tracing behavior.
type Config struct {
	ServiceName  string
	Environment  string
	Version      string
	LogLevel     string
	LogFormat    string
	OtelEnabled  bool
	OtelEndpoint string
}

func LoadConfig() Config {
	return Config{
		ServiceName:  env("APP_SERVICE", "billfold"),
		Environment:  env("ENVIRONMENT", "development"),
		Version:      env("APP_VERSION", "0.1.0"),
		LogLevel:     env("LOG_LEVEL", "info"),
		LogFormat:    env("LOG_FORMAT", "json"),
		OtelEnabled:  envBool("OTEL_ENABLED", false),
		OtelEndpoint: env("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}
}

func (c Config) Debug() bool {
	return strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return parsed
}
