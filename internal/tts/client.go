// Package tts synthesizes interviewer replies into audio for playback on the
// client.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/config"
	"github.com/prepview/voice-gateway/internal/resilience"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Synthesizer turns reply text into encoded audio
type Synthesizer interface {
	// Synthesize returns the full audio payload for text. The bytes are in
	// the configured output format, ready to hand to the client as-is.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ElevenLabsClient implements Synthesizer against the ElevenLabs HTTP API.
// Calls go through a circuit breaker so a failing synthesis service degrades
// the gateway to text-only replies instead of stalling every turn.
type ElevenLabsClient struct {
	baseURL      string
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
	httpClient   *http.Client
	breaker      *resilience.CircuitBreaker
	logger       zerolog.Logger
}

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id,omitempty"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewElevenLabsClient creates a client from the service configuration
func NewElevenLabsClient(cfg *config.Config, logger zerolog.Logger) *ElevenLabsClient {
	return &ElevenLabsClient{
		baseURL:      defaultBaseURL,
		apiKey:       cfg.ElevenLabsAPIKey,
		voiceID:      cfg.TTSVoiceID,
		modelID:      cfg.TTSModelID,
		outputFormat: cfg.TTSOutputFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: resilience.NewCircuitBreaker("synthesis",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second),
		logger: logger,
	}
}

// WithBaseURL overrides the API endpoint, used by tests
func (c *ElevenLabsClient) WithBaseURL(url string) *ElevenLabsClient {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// Synthesize requests the full audio for text in one call
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	var audio []byte
	err := c.breaker.Call(func() error {
		var callErr error
		audio, callErr = c.synthesize(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (c *ElevenLabsClient) synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.baseURL, c.voiceID, c.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis service returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis service returned empty audio")
	}

	c.logger.Debug().Int("bytes", len(audio)).Msg("Synthesized reply audio")
	return audio, nil
}
