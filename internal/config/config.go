package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported speech-to-text providers
const (
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
	ProviderMock     = "mock"
)

// Supported records backends
const (
	RecordsStatic   = "static"
	RecordsSQLite   = "sqlite"
	RecordsPostgres = "postgres"
	RecordsSupabase = "supabase"
)

// Config holds all configuration for the session gateway and the session runner
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service

	// Transcription backend the session runner streams audio to
	TranscriptionURL   string `envconfig:"TRANSCRIPTION_URL" default:"ws://localhost:8080/ws/transcribe"`
	RecorderIntervalMs int    `envconfig:"RECORDER_INTERVAL_MS" default:"1000"` // Audio chunk cadence

	// Audio configuration
	AudioBufferSize int    `envconfig:"AUDIO_BUFFER_SIZE" default:"65536"` // Ring buffer size in bytes
	AudioEncoding   string `envconfig:"AUDIO_ENCODING" default:"linear16"` // linear16, mulaw
	AudioSampleRate int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`

	// Upstream speech-to-text
	STTProvider      string `envconfig:"STT_PROVIDER" default:"deepgram"` // deepgram, google, mock
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	GoogleLanguage   string `envconfig:"GOOGLE_LANGUAGE_CODE" default:"en-US"`

	// Gateway behaviour
	ForwardInterim bool `envconfig:"GATEWAY_FORWARD_INTERIM" default:"true"` // Forward interim upstream results
	AuthRequired   bool `envconfig:"AUTH_REQUIRED" default:"false"`          // Require a bearer token on /ws/transcribe

	// Local speech capture
	CaptureLocale         string `envconfig:"CAPTURE_LOCALE" default:"en-US"`
	CaptureRestartDelayMs int    `envconfig:"CAPTURE_RESTART_DELAY_MS" default:"1000"`

	// Annotation
	TermCooldownSeconds int `envconfig:"TERM_COOLDOWN_SECONDS" default:"120"`

	// Export
	ExportDir string `envconfig:"EXPORT_DIR" default:"."`

	// Records and auth collaborators
	RecordsBackend string `envconfig:"RECORDS_BACKEND" default:"static"` // static, sqlite, postgres, supabase
	RecordsDSN     string `envconfig:"RECORDS_DSN" default:"sessions.db"`
	SupabaseURL    string `envconfig:"SUPABASE_URL"`
	SupabaseKey    string `envconfig:"SUPABASE_KEY"`

	// Event publishing
	KafkaEnabled      bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic        string   `envconfig:"KAFKA_TOPIC" default:"session.events"`
	KafkaBatchTimeout int      `envconfig:"KAFKA_BATCH_TIMEOUT_MS" default:"10"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Upstream STT reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express
func (c *Config) Validate() error {
	c.STTProvider = strings.ToLower(c.STTProvider)
	switch c.STTProvider {
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=%s", ProviderDeepgram)
		}
	case ProviderGoogle, ProviderMock:
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q", c.STTProvider)
	}

	switch c.AudioEncoding {
	case "linear16", "mulaw":
	default:
		return fmt.Errorf("unsupported AUDIO_ENCODING %q", c.AudioEncoding)
	}

	switch c.RecordsBackend {
	case RecordsStatic, RecordsSQLite, RecordsPostgres:
	case RecordsSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required when RECORDS_BACKEND=%s", RecordsSupabase)
		}
	default:
		return fmt.Errorf("unsupported RECORDS_BACKEND %q", c.RecordsBackend)
	}

	if c.AuthRequired && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required when AUTH_REQUIRED=true")
	}
	if c.RecorderIntervalMs <= 0 {
		return fmt.Errorf("RECORDER_INTERVAL_MS must be positive, got %d", c.RecorderIntervalMs)
	}
	if c.TermCooldownSeconds < 0 {
		return fmt.Errorf("TERM_COOLDOWN_SECONDS must not be negative, got %d", c.TermCooldownSeconds)
	}
	return nil
}

// RecorderInterval returns the audio chunk cadence
func (c *Config) RecorderInterval() time.Duration {
	return time.Duration(c.RecorderIntervalMs) * time.Millisecond
}

// CaptureRestartDelay returns the delay before the capture adapter restarts an ended engine
func (c *Config) CaptureRestartDelay() time.Duration {
	return time.Duration(c.CaptureRestartDelayMs) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
