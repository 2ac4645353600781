// Package recognition owns the duplex connection to the streaming speech
// recognizer: a queue-fed send pump with silence priming and keepalive, and a
// receive side that parses provider messages into tagged events.
package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/audio"
	"github.com/prepview/voice-gateway/internal/observability"
)

var (
	// ErrClosed signals ordinary channel closure to the receive loop
	ErrClosed = errors.New("recognition channel closed")

	// ErrAuthRejected signals the provider refused the session credentials
	ErrAuthRejected = errors.New("recognizer rejected credentials")
)

const (
	// primingMs is the length of the silence frame sent before any real
	// audio so the provider has an active session context immediately
	primingMs = 1000

	// keepaliveFrameMs is the length of the short silence frame sent when no
	// audio arrives within the keepalive window
	keepaliveFrameMs = 100

	// handshakeWait bounds the wait for the provider's first message, which
	// distinguishes a live session from an auth rejection
	handshakeWait = 5 * time.Second
)

// Config holds connection parameters for the recognizer
type Config struct {
	URL            string
	APIKey         string
	ModelID        string
	CommitStrategy string
	Keepalive      time.Duration
}

// queueItem is either an audio frame or the commit sentinel
type queueItem struct {
	samples []float32
	commit  bool
}

// wireFrame is the outbound provider message shape
type wireFrame struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
	SampleRate  int    `json:"sample_rate"`
	Commit      bool   `json:"commit"`
}

// Channel is the duplex pipe to the recognizer. Exactly one instance exists
// per client connection.
type Channel struct {
	conn      *websocket.Conn
	keepalive time.Duration
	logger    zerolog.Logger

	// frame queue: pushed by the ingress reader, drained by the send pump
	mu     sync.Mutex
	queue  []queueItem
	closed bool
	wake   chan struct{}

	// events read during the handshake, replayed by the first Recv calls
	pending []Event

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens the recognizer connection and waits for its first message. An
// auth_error as the first message fails the dial synchronously; any other
// first message is buffered and replayed by Recv.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*Channel, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid recognizer URL: %w", err)
	}
	q := u.Query()
	q.Set("model_id", cfg.ModelID)
	q.Set("audio_format", fmt.Sprintf("pcm_%d", audio.TargetSampleRate))
	if cfg.CommitStrategy != "" {
		q.Set("commit_strategy", cfg.CommitStrategy)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("xi-api-key", cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial recognizer: %w", err)
	}

	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = 2 * time.Second
	}

	c := &Channel{
		conn:      conn,
		keepalive: keepalive,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}

	// The provider announces the session (or rejects the credentials)
	// immediately after the handshake. Silence here means a broken session,
	// so the bounded wait doubles as a connection check.
	conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, data, err := conn.ReadMessage()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("recognizer sent no session message: %w", err)
	}

	ev := parseEvent(data)
	if authErr, ok := ev.(AuthError); ok {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, authErr.Reason)
	}
	c.pending = append(c.pending, ev)

	return c, nil
}

// SendAudio enqueues normalized samples for the send pump. No-op on a closed
// channel or an empty frame.
func (c *Channel) SendAudio(samples []float32) {
	if len(samples) == 0 {
		return
	}
	c.enqueue(queueItem{samples: samples})
}

// SendCommit enqueues the explicit finalize-now sentinel
func (c *Channel) SendCommit() {
	c.enqueue(queueItem{commit: true})
}

func (c *Channel) enqueue(item queueItem) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, item)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// QueueLen returns the number of queued frames; safe during concurrent pushes
func (c *Channel) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// drain removes and returns everything currently queued
func (c *Channel) drain() []queueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.queue
	c.queue = nil
	return items
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RunPump drains the frame queue for the connection's lifetime. When no audio
// arrives within the keepalive window it sends a short silence frame so the
// provider does not treat the session as idle. Returns nil on ordinary
// closure or context cancellation.
func (c *Channel) RunPump(ctx context.Context) error {
	// Silence priming so the provider has session context before the first
	// real utterance
	if err := c.writeAudioFrame(audio.Silence(primingMs), false); err != nil {
		return err
	}

	timer := time.NewTimer(c.keepalive)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.keepalive)

		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		case <-timer.C:
			if c.isClosed() {
				return nil
			}
			if err := c.writeAudioFrame(audio.Silence(keepaliveFrameMs), false); err != nil {
				return err
			}
			observability.RecordKeepalive()
			continue
		}

		if c.isClosed() {
			return nil
		}

		if err := c.flush(c.drain()); err != nil {
			return err
		}
	}
}

// flush sends drained items: contiguous audio frames are concatenated into
// one chunk, and each commit sentinel becomes a short silence frame followed
// by a frame carrying commit=true.
func (c *Channel) flush(items []queueItem) error {
	var batch []float32
	for _, item := range items {
		if !item.commit {
			batch = append(batch, item.samples...)
			continue
		}

		if len(batch) > 0 {
			if err := c.writeAudioFrame(batch, false); err != nil {
				return err
			}
			batch = nil
		}
		// The provider requires non-empty audio alongside a commit signal
		if err := c.writeAudioFrame(audio.Silence(keepaliveFrameMs), false); err != nil {
			return err
		}
		if err := c.writeAudioFrame(audio.Silence(keepaliveFrameMs), true); err != nil {
			return err
		}
	}

	if len(batch) > 0 {
		return c.writeAudioFrame(batch, false)
	}
	return nil
}

func (c *Channel) writeAudioFrame(samples []float32, commit bool) error {
	frame := wireFrame{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(audio.EncodePCM16(samples)),
		SampleRate:  audio.TargetSampleRate,
		Commit:      commit,
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal audio frame: %w", err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		if c.isClosed() {
			return nil
		}
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

// Recv returns the next provider event. Ordinary closure (Close called or the
// provider finishing the session) is reported as ErrClosed, never as a
// transport failure.
func (c *Channel) Recv() (Event, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return ev, nil
	}
	c.mu.Unlock()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if c.isClosed() ||
			websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("recognizer read failed: %w", err)
	}

	return parseEvent(data), nil
}

// Close tears the channel down. Idempotent and safe to call from any
// goroutine, including mid-pump.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()

		// Wake the pump so it observes the closed flag
		select {
		case c.wake <- struct{}{}:
		default:
		}

		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("recognizer connection close")
		}
	})
}
