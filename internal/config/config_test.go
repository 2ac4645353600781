package config

import (
	"os"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("ELEVENLABS_API_KEY", "test-elevenlabs-key")
	defer os.Unsetenv("ELEVENLABS_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.ElevenLabsAPIKey != "test-elevenlabs-key" {
		t.Errorf("Expected ElevenLabsAPIKey 'test-elevenlabs-key', got '%s'", cfg.ElevenLabsAPIKey)
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	os.Unsetenv("ELEVENLABS_API_KEY")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when ELEVENLABS_API_KEY is missing")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Setenv("ELEVENLABS_API_KEY", "test-elevenlabs-key")
	defer os.Unsetenv("ELEVENLABS_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.RecognizerModelID != "scribe_v2_realtime" {
		t.Errorf("Expected default RecognizerModelID 'scribe_v2_realtime', got '%s'", cfg.RecognizerModelID)
	}

	if cfg.CommitStrategy != "manual" {
		t.Errorf("Expected default CommitStrategy 'manual', got '%s'", cfg.CommitStrategy)
	}

	if cfg.KeepaliveSeconds != 2 {
		t.Errorf("Expected default KeepaliveSeconds 2, got %d", cfg.KeepaliveSeconds)
	}

	if cfg.TTSModelID != "eleven_multilingual_v2" {
		t.Errorf("Expected default TTSModelID 'eleven_multilingual_v2', got '%s'", cfg.TTSModelID)
	}

	if cfg.BackendURL != "http://localhost:8000" {
		t.Errorf("Expected default BackendURL 'http://localhost:8000', got '%s'", cfg.BackendURL)
	}

	if cfg.SessionMaxTurns != 15 {
		t.Errorf("Expected default SessionMaxTurns 15, got %d", cfg.SessionMaxTurns)
	}

	if cfg.KafkaEnabled {
		t.Error("Expected Kafka disabled by default")
	}

	if cfg.KafkaTopic != "interview.turns" {
		t.Errorf("Expected default KafkaTopic 'interview.turns', got '%s'", cfg.KafkaTopic)
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled true by default")
	}
}

func TestLoadFromEnv_InvalidCommitStrategy(t *testing.T) {
	os.Setenv("ELEVENLABS_API_KEY", "test-elevenlabs-key")
	os.Setenv("COMMIT_STRATEGY", "hybrid")
	defer os.Unsetenv("ELEVENLABS_API_KEY")
	defer os.Unsetenv("COMMIT_STRATEGY")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error for invalid COMMIT_STRATEGY")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	os.Setenv("ELEVENLABS_API_KEY", "test-elevenlabs-key")
	os.Setenv("COMMIT_STRATEGY", "vad")
	os.Setenv("SESSION_MAX_TURNS", "3")
	os.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")
	defer func() {
		os.Unsetenv("ELEVENLABS_API_KEY")
		os.Unsetenv("COMMIT_STRATEGY")
		os.Unsetenv("SESSION_MAX_TURNS")
		os.Unsetenv("KAFKA_BROKERS")
	}()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.CommitStrategy != "vad" {
		t.Errorf("Expected CommitStrategy 'vad', got '%s'", cfg.CommitStrategy)
	}

	if cfg.SessionMaxTurns != 3 {
		t.Errorf("Expected SessionMaxTurns 3, got %d", cfg.SessionMaxTurns)
	}

	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("Expected 2 Kafka brokers, got %d", len(cfg.KafkaBrokers))
	}
}
