package config

import (
	"os"
	"strings"
	"testing"
)

// setupTestEnv sets up environment variables for testing
func setupTestEnv(t *testing.T) func() {
	// Save original env vars
	origVars := map[string]string{
		"API_BASE_URL":         os.Getenv("API_BASE_URL"),
		"AUTH_TOKEN":           os.Getenv("AUTH_TOKEN"),
		"OPS_PORT":             os.Getenv("OPS_PORT"),
		"GO_ENV":               os.Getenv("GO_ENV"),
		"LOG_LEVEL":            os.Getenv("LOG_LEVEL"),
		"CAPTURE_SAMPLE_RATE":  os.Getenv("CAPTURE_SAMPLE_RATE"),
		"PLAYBACK_SAMPLE_RATE": os.Getenv("PLAYBACK_SAMPLE_RATE"),
		"CAMERA_FACING":        os.Getenv("CAMERA_FACING"),
		"OTEL_COLLECTOR_ADDR":  os.Getenv("OTEL_COLLECTOR_ADDR"),
		"OTEL_INSECURE_SKIP_VERIFY": os.Getenv("OTEL_INSECURE_SKIP_VERIFY"),
	}

	// Clear all env vars
	for key := range origVars {
		os.Unsetenv(key)
	}

	// Return cleanup function
	return func() {
		for key, val := range origVars {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "https://gm-uni.onrender.com/api/v1")
	os.Setenv("AUTH_TOKEN", "test-bearer-token")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.APIBaseURL != "https://gm-uni.onrender.com/api/v1" {
		t.Errorf("Expected API_BASE_URL to be set correctly")
	}
	if cfg.OpsPort != "9091" {
		t.Errorf("Expected OPS_PORT to default to '9091', got '%s'", cfg.OpsPort)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.CaptureSampleRate != 16000 {
		t.Errorf("Expected CAPTURE_SAMPLE_RATE to default to 16000, got %d", cfg.CaptureSampleRate)
	}
	if cfg.PlaybackSampleRate != 24000 {
		t.Errorf("Expected PLAYBACK_SAMPLE_RATE to default to 24000, got %d", cfg.PlaybackSampleRate)
	}
	if cfg.CameraFacing != "user" {
		t.Errorf("Expected CAMERA_FACING to default to 'user', got '%s'", cfg.CameraFacing)
	}
}

func TestValidateEnv_MissingAPIBaseURL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("AUTH_TOKEN", "test-bearer-token")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing API_BASE_URL")
	}
	if !strings.Contains(err.Error(), "API_BASE_URL is required") {
		t.Errorf("Expected error to mention API_BASE_URL, got: %v", err)
	}
}

func TestValidateEnv_MissingAuthToken(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "http://localhost:8000/api/v1")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing AUTH_TOKEN")
	}
	if !strings.Contains(err.Error(), "AUTH_TOKEN is required") {
		t.Errorf("Expected error to mention AUTH_TOKEN, got: %v", err)
	}
}

func TestValidateEnv_InvalidBaseURL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	tests := []struct {
		name string
		url  string
	}{
		{"wrong scheme", "ftp://example.com"},
		{"no host", "http://"},
		{"garbage", "://not-a-url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("API_BASE_URL", tt.url)
			os.Setenv("AUTH_TOKEN", "tok")

			_, err := ValidateEnv()
			if err == nil {
				t.Fatalf("Expected error for URL '%s'", tt.url)
			}
		})
	}
}

func TestValidateEnv_InvalidOpsPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "http://localhost:8000/api/v1")
	os.Setenv("AUTH_TOKEN", "tok")
	os.Setenv("OPS_PORT", "99999")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid OPS_PORT")
	}
	if !strings.Contains(err.Error(), "OPS_PORT") {
		t.Errorf("Expected error to mention OPS_PORT, got: %v", err)
	}
}

func TestValidateEnv_SampleRateOverrides(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "http://localhost:8000/api/v1")
	os.Setenv("AUTH_TOKEN", "tok")
	os.Setenv("CAPTURE_SAMPLE_RATE", "48000")
	os.Setenv("PLAYBACK_SAMPLE_RATE", "22050")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.CaptureSampleRate != 48000 {
		t.Errorf("Expected capture rate 48000, got %d", cfg.CaptureSampleRate)
	}
	if cfg.PlaybackSampleRate != 22050 {
		t.Errorf("Expected playback rate 22050, got %d", cfg.PlaybackSampleRate)
	}
}

func TestValidateEnv_InvalidSampleRate(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "http://localhost:8000/api/v1")
	os.Setenv("AUTH_TOKEN", "tok")
	os.Setenv("CAPTURE_SAMPLE_RATE", "123")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for out-of-range sample rate")
	}
	if !strings.Contains(err.Error(), "CAPTURE_SAMPLE_RATE") {
		t.Errorf("Expected error to mention CAPTURE_SAMPLE_RATE, got: %v", err)
	}
}

func TestValidateEnv_InvalidCameraFacing(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "http://localhost:8000/api/v1")
	os.Setenv("AUTH_TOKEN", "tok")
	os.Setenv("CAMERA_FACING", "sideways")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid CAMERA_FACING")
	}
	if !strings.Contains(err.Error(), "CAMERA_FACING") {
		t.Errorf("Expected error to mention CAMERA_FACING, got: %v", err)
	}
}

func TestValidateEnv_AggregatesErrors(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error with no env set")
	}
	if !strings.Contains(err.Error(), "API_BASE_URL") || !strings.Contains(err.Error(), "AUTH_TOKEN") {
		t.Errorf("Expected aggregated errors for both required vars, got: %v", err)
	}
}

func TestValidateEnv_TracingSettings(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("API_BASE_URL", "http://localhost:8000/api/v1")
	os.Setenv("AUTH_TOKEN", "tok")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.OtelCollectorAddr != "" || cfg.OtelInsecureSkipVerify {
		t.Error("Expected tracing to be disabled and strict by default")
	}

	os.Setenv("OTEL_COLLECTOR_ADDR", "collector:4317")
	os.Setenv("OTEL_INSECURE_SKIP_VERIFY", "true")

	cfg, err = ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.OtelCollectorAddr != "collector:4317" {
		t.Errorf("Expected collector address to be read, got '%s'", cfg.OtelCollectorAddr)
	}
	if !cfg.OtelInsecureSkipVerify {
		t.Error("Expected OTEL_INSECURE_SKIP_VERIFY=true to be honored")
	}
}

func TestRedactSecret(t *testing.T) {
	if got := redactSecret("short"); got != "***" {
		t.Errorf("Expected '***', got '%s'", got)
	}
	if got := redactSecret("a-much-longer-secret-value"); got != "a-much-l***" {
		t.Errorf("Expected 'a-much-l***', got '%s'", got)
	}
}
