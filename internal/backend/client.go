// Package backend talks to the conversational-response service: an agent
// mesh gateway that accepts a JSON-RPC message submit and streams the reply
// over server-sent events.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/config"
	"github.com/prepview/voice-gateway/internal/resilience"
)

// Responder is the response backend boundary: one async call per turn
type Responder interface {
	// Respond sends the turn prompt and returns the reply text plus the new
	// continuation token. The token argument may be empty on the first turn.
	Respond(ctx context.Context, prompt, continuationToken string) (text, newToken string, err error)
}

// MeshClient implements Responder against the agent mesh gateway
type MeshClient struct {
	baseURL    string
	agentName  string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewMeshClient creates a client from the service configuration
func NewMeshClient(cfg *config.Config, logger zerolog.Logger) *MeshClient {
	return &MeshClient{
		baseURL:   strings.TrimRight(cfg.BackendURL, "/"),
		agentName: cfg.BackendAgentName,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.BackendTimeout) * time.Second,
		},
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		logger: logger,
	}
}

// JSON-RPC submit payload shapes

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Message   rpcMessage `json:"message"`
	ContextID string     `json:"contextId,omitempty"`
}

type rpcMessage struct {
	MessageID string            `json:"messageId"`
	Kind      string            `json:"kind"`
	Role      string            `json:"role"`
	Metadata  map[string]string `json:"metadata"`
	Parts     []messagePart     `json:"parts"`
}

type messagePart struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type submitResponse struct {
	Result struct {
		ID        string `json:"id"`
		ContextID string `json:"contextId"`
	} `json:"result"`
}

// SSE event shapes

type sseEnvelope struct {
	Result *sseResult `json:"result"`
}

type sseResult struct {
	Status  *sseStatus  `json:"status"`
	Message *rpcMessage `json:"message"`
}

type sseStatus struct {
	State   string          `json:"state"`
	Error   json.RawMessage `json:"error"`
	Message *rpcMessage     `json:"message"`
}

// Respond submits the prompt, then follows the task's SSE stream until the
// backend reports completion
func (c *MeshClient) Respond(ctx context.Context, prompt, continuationToken string) (string, string, error) {
	requestID := time.Now().UnixMilli()
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  "message/stream",
		Params: rpcParams{
			Message: rpcMessage{
				MessageID: fmt.Sprintf("msg_%d", requestID),
				Kind:      "message",
				Role:      "user",
				Metadata:  map[string]string{"agent_name": c.agentName},
				Parts:     []messagePart{{Kind: "text", Text: prompt}},
			},
			ContextID: continuationToken,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", continuationToken, fmt.Errorf("failed to marshal request: %w", err)
	}

	var submit submitResponse
	err = resilience.Retry(func() error {
		return c.submit(ctx, body, &submit)
	}, c.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return "", continuationToken, err
	}

	newToken := submit.Result.ContextID
	if newToken == "" {
		newToken = continuationToken
	}
	if submit.Result.ID == "" {
		return "", newToken, fmt.Errorf("backend returned no task id")
	}

	text, err := c.followTask(ctx, submit.Result.ID)
	if err != nil {
		return "", newToken, err
	}
	return text, newToken, nil
}

func (c *MeshClient) submit(ctx context.Context, body []byte, out *submitResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/message:stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend submit returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode submit response: %w", err)
	}
	return nil
}

// followTask reads the task's SSE stream and accumulates the reply text. The
// backend resends the growing message on every event, so the longest text
// part seen wins.
func (c *MeshClient) followTask(ctx context.Context, taskID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/sse/subscribe/"+taskID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create subscribe request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to subscribe to task events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend subscribe returned status %d", resp.StatusCode)
	}

	var fullText string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var event sseEnvelope
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[5:])), &event); err != nil {
			continue
		}
		if event.Result == nil || event.Result.Status == nil {
			continue
		}
		status := event.Result.Status

		if text := longestTextPart(status.Message); len(text) > len(fullText) {
			fullText = text
		}

		switch status.State {
		case "completed":
			if fullText == "" {
				fullText = longestTextPart(event.Result.Message)
			}
			return fullText, nil
		case "failed":
			return "", fmt.Errorf("backend task failed: %s", status.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read task events: %w", err)
	}

	if fullText == "" {
		c.logger.Debug().Str("task_id", taskID).Msg("Backend stream ended without text")
	}
	return fullText, nil
}

func longestTextPart(msg *rpcMessage) string {
	if msg == nil {
		return ""
	}
	var best string
	for _, part := range msg.Parts {
		if part.Kind == "text" && len(part.Text) > len(best) {
			best = part.Text
		}
	}
	return best
}
