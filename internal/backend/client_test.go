package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/config"
	"github.com/prepview/voice-gateway/internal/resilience"
)

// fakeMesh serves the gateway's submit + SSE contract for tests
type fakeMesh struct {
	server *httptest.Server

	taskID    string
	contextID string
	events    []string // raw SSE data payloads
	submits   chan rpcRequest
}

func newFakeMesh(t *testing.T) *fakeMesh {
	t.Helper()
	m := &fakeMesh{
		taskID:    "task-1",
		contextID: "ctx-42",
		submits:   make(chan rpcRequest, 8),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/message:stream", func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.submits <- req
		fmt.Fprintf(w, `{"result":{"id":%q,"contextId":%q}}`, m.taskID, m.contextID)
	})
	mux.HandleFunc("/api/v1/sse/subscribe/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range m.events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func newTestClient(url string) *MeshClient {
	return NewMeshClient(&config.Config{
		BackendURL:          url,
		BackendAgentName:    "OrchestratorAgent",
		BackendTimeout:      5,
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1,
	}, zerolog.Nop())
}

func statusEvent(state, text string) string {
	return fmt.Sprintf(`{"result":{"status":{"state":%q,"message":{"parts":[{"kind":"text","text":%q}]}}}}`, state, text)
}

func TestRespond_AccumulatesStreamedText(t *testing.T) {
	mesh := newFakeMesh(t)
	mesh.events = []string{
		statusEvent("working", "Hello"),
		statusEvent("working", "Hello, tell me about"),
		statusEvent("completed", "Hello, tell me about yourself."),
	}

	client := newTestClient(mesh.server.URL)
	text, token, err := client.Respond(context.Background(), "prompt text", "")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if text != "Hello, tell me about yourself." {
		t.Errorf("Expected full accumulated text, got %q", text)
	}
	if token != "ctx-42" {
		t.Errorf("Expected new continuation token 'ctx-42', got %q", token)
	}
}

func TestRespond_SubmitPayload(t *testing.T) {
	mesh := newFakeMesh(t)
	mesh.events = []string{statusEvent("completed", "ok")}

	client := newTestClient(mesh.server.URL)
	if _, _, err := client.Respond(context.Background(), "the prompt", "prev-ctx"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	select {
	case req := <-mesh.submits:
		if req.Method != "message/stream" {
			t.Errorf("Expected method message/stream, got %q", req.Method)
		}
		if req.Params.ContextID != "prev-ctx" {
			t.Errorf("Expected contextId carried through, got %q", req.Params.ContextID)
		}
		if len(req.Params.Message.Parts) != 1 || req.Params.Message.Parts[0].Text != "the prompt" {
			t.Errorf("Unexpected message parts: %+v", req.Params.Message.Parts)
		}
		if req.Params.Message.Metadata["agent_name"] != "OrchestratorAgent" {
			t.Errorf("Expected agent_name metadata, got %v", req.Params.Message.Metadata)
		}
	case <-time.After(time.Second):
		t.Fatal("No submit received")
	}
}

func TestRespond_TaskFailed(t *testing.T) {
	mesh := newFakeMesh(t)
	mesh.events = []string{`{"result":{"status":{"state":"failed","error":"\"model overloaded\""}}}`}

	client := newTestClient(mesh.server.URL)
	_, token, err := client.Respond(context.Background(), "prompt", "prev-ctx")
	if err == nil {
		t.Fatal("Expected error for failed task")
	}
	if token != "ctx-42" {
		t.Errorf("Expected new token preserved on failure, got %q", token)
	}
}

func TestRespond_MissingTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.Respond(context.Background(), "prompt", "")
	if err == nil || !strings.Contains(err.Error(), "task id") {
		t.Fatalf("Expected missing-task-id error, got %v", err)
	}
}

func TestRespond_CompletedFallbackMessage(t *testing.T) {
	mesh := newFakeMesh(t)
	mesh.events = []string{
		`{"result":{"status":{"state":"completed"},"message":{"parts":[{"kind":"text","text":"fallback text"}]}}}`,
	}

	client := newTestClient(mesh.server.URL)
	text, _, err := client.Respond(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if text != "fallback text" {
		t.Errorf("Expected fallback text from result message, got %q", text)
	}
}

func TestRespond_ContextCancelled(t *testing.T) {
	mesh := newFakeMesh(t)
	mesh.events = []string{statusEvent("completed", "ok")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(mesh.server.URL)
	_, _, err := client.Respond(ctx, "prompt", "")
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestRetryableNetworkError_Classification(t *testing.T) {
	if !resilience.IsRetryableNetworkError(fmt.Errorf("dial tcp: connection refused")) {
		t.Error("connection refused should be retryable")
	}
	if resilience.IsRetryableNetworkError(fmt.Errorf("backend submit returned status 400")) {
		t.Error("a 400 response should not be retryable")
	}
}
