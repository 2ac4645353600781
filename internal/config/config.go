package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the interview voice gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// ElevenLabs API configuration (shared by recognition and synthesis)
	ElevenLabsAPIKey string `envconfig:"ELEVENLABS_API_KEY" required:"true"`

	// Speech recognition (scribe realtime) configuration
	RecognizerURL     string `envconfig:"RECOGNIZER_URL" default:"wss://api.elevenlabs.io/v1/speech-to-text/realtime"`
	RecognizerModelID string `envconfig:"RECOGNIZER_MODEL_ID" default:"scribe_v2_realtime"`
	CommitStrategy    string `envconfig:"COMMIT_STRATEGY" default:"manual"` // manual (mic-mute commit) or vad
	KeepaliveSeconds  int    `envconfig:"RECOGNIZER_KEEPALIVE_SECONDS" default:"2"`

	// Text-to-speech configuration
	TTSVoiceID      string `envconfig:"TTS_VOICE_ID" default:"UgBBYS2sOqTuMpoF3BR0"`
	TTSModelID      string `envconfig:"TTS_MODEL_ID" default:"eleven_multilingual_v2"`
	TTSOutputFormat string `envconfig:"TTS_OUTPUT_FORMAT" default:"mp3_44100_128"`

	// Response backend (agent mesh gateway) configuration
	BackendURL       string `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	BackendAgentName string `envconfig:"BACKEND_AGENT_NAME" default:"OrchestratorAgent"`
	BackendTimeout   int    `envconfig:"BACKEND_TIMEOUT" default:"60"` // seconds

	// Session configuration
	SessionMaxTurns   int `envconfig:"SESSION_MAX_TURNS" default:"15"`
	SessionMaxIdleSec int `envconfig:"SESSION_MAX_IDLE_SECONDS" default:"3600"`

	// Turn-record event publishing (optional)
	KafkaEnabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"interview.turns"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

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

	if cfg.ElevenLabsAPIKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if cfg.CommitStrategy != "manual" && cfg.CommitStrategy != "vad" {
		return nil, fmt.Errorf("COMMIT_STRATEGY must be \"manual\" or \"vad\", got %q", cfg.CommitStrategy)
	}
	if cfg.SessionMaxTurns <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_TURNS must be positive")
	}

	return &cfg, nil
}
