package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	APIBaseURL string
	AuthToken  string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	OpsPort         string
	DevelopmentMode bool
	AllowedOrigins  string

	// Live-call protocol constants. The remote agent assumes 16kHz capture
	// and 24kHz playback; kept configurable because no negotiation exists
	// in the wire protocol.
	CaptureSampleRate  int
	PlaybackSampleRate int
	CameraFacing       string

	// Tracing (disabled when the collector address is empty)
	OtelCollectorAddr      string
	OtelInsecureSkipVerify bool
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: API_BASE_URL (http or https URL, e.g. https://gm-uni.onrender.com/api/v1)
	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		errors = append(errors, "API_BASE_URL is required")
	} else if err := validateHTTPURL(cfg.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("API_BASE_URL is invalid: %v", err))
	}

	// Required: AUTH_TOKEN (bearer token for REST and WebSocket auth)
	cfg.AuthToken = os.Getenv("AUTH_TOKEN")
	if cfg.AuthToken == "" {
		errors = append(errors, "AUTH_TOKEN is required")
	}

	// Optional: OPS_PORT (defaults to 9091)
	cfg.OpsPort = getEnvOrDefault("OPS_PORT", "9091")
	if port, err := strconv.Atoi(cfg.OpsPort); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("OPS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.OpsPort))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Sample rates (protocol defaults: 16kHz capture, 24kHz playback)
	var err error
	cfg.CaptureSampleRate, err = parseSampleRate("CAPTURE_SAMPLE_RATE", 16000)
	if err != nil {
		errors = append(errors, err.Error())
	}
	cfg.PlaybackSampleRate, err = parseSampleRate("PLAYBACK_SAMPLE_RATE", 24000)
	if err != nil {
		errors = append(errors, err.Error())
	}

	// Optional: CAMERA_FACING (defaults to "user", i.e. front camera)
	cfg.CameraFacing = getEnvOrDefault("CAMERA_FACING", "user")
	if cfg.CameraFacing != "user" && cfg.CameraFacing != "environment" {
		errors = append(errors, fmt.Sprintf("CAMERA_FACING must be 'user' or 'environment' (got '%s')", cfg.CameraFacing))
	}

	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	cfg.OtelInsecureSkipVerify = os.Getenv("OTEL_INSECURE_SKIP_VERIFY") == "true"

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// validateHTTPURL checks the value parses as an absolute http(s) URL with a host.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https (got '%s')", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is empty")
	}
	return nil
}

// parseSampleRate reads an optional sample-rate variable with a default.
func parseSampleRate(key string, def int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return def, nil
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate < 8000 || rate > 96000 {
		return 0, fmt.Errorf("%s must be a sample rate between 8000 and 96000 (got '%s')", key, raw)
	}
	return rate, nil
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"api_base_url", cfg.APIBaseURL,
		"auth_token", redactSecret(cfg.AuthToken),
		"ops_port", cfg.OpsPort,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"capture_sample_rate", cfg.CaptureSampleRate,
		"playback_sample_rate", cfg.PlaybackSampleRate,
		"camera_facing", cfg.CameraFacing,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
