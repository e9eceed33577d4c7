// Package config provides environment configuration for the chat client and gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Chat backend
	APIBaseURL     string
	APIToken       string
	RefreshToken   string
	RefreshURL     string
	RequestTimeout time.Duration

	// Gateway server
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	JWTSecret          string
	AllowedOrigins     []string

	// NATS change fan-out (disabled when URL is empty)
	NATSURL      string
	NATSToken    string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string

	// Local state
	StateDBPath string

	// Usage gate
	UsageWarnPercent float64

	// Rate limiting of gateway sends
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, falling back to the
// YAML file named by CHAT_CONFIG_FILE and then to defaults.
func Load() (*Config, error) {
	file, err := readFile(os.Getenv("CHAT_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	return load(source{file: file}), nil
}

func load(s source) *Config {
	return &Config{
		// Backend
		APIBaseURL:     strings.TrimRight(s.getEnv("CHAT_API_URL", "http://localhost:3000/api"), "/"),
		APIToken:       s.getEnv("CHAT_API_TOKEN", ""),
		RefreshToken:   s.getEnv("CHAT_REFRESH_TOKEN", ""),
		RefreshURL:     s.getEnv("CHAT_REFRESH_URL", ""),
		RequestTimeout: s.getDurationEnv("CHAT_REQUEST_TIMEOUT", 10*time.Minute),

		// Gateway
		ServerPort:         s.getEnv("PORT", "8090"),
		ServerReadTimeout:  s.getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: s.getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		JWTSecret:          s.getEnv("GATEWAY_JWT_SECRET", ""),
		AllowedOrigins:     s.getListEnv("CORS_ALLOWED_ORIGINS", nil),

		// NATS
		NATSURL:      s.getEnv("NATS_URL", ""),
		NATSToken:    s.getEnv("NATS_TOKEN", ""),
		NATSCAFile:   s.getEnv("NATS_CA_FILE", ""),
		NATSCertFile: s.getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  s.getEnv("NATS_KEY_FILE", ""),

		// State
		StateDBPath: s.getEnv("CHAT_STATE_DB", "chat-state.sqlite"),

		// Usage
		UsageWarnPercent: s.getFloatEnv("USAGE_WARN_PERCENT", 90),

		// Rate limiting
		RateLimitRequests: s.getIntEnv("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   s.getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: s.getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: s.getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  s.getBoolEnv("TRACING_ENABLED", false),
	}
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getEnv(key, defaultValue string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (s source) getIntEnv(key string, defaultValue int) int {
	if value := s.lookup(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (s source) getFloatEnv(key string, defaultValue float64) float64 {
	if value := s.lookup(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func (s source) getBoolEnv(key string, defaultValue bool) bool {
	if value := s.lookup(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (s source) getListEnv(key string, defaultValue []string) []string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s source) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := s.lookup(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
