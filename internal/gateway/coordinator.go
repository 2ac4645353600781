package gateway

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/backend"
	"github.com/prepview/voice-gateway/internal/events"
	"github.com/prepview/voice-gateway/internal/observability"
	"github.com/prepview/voice-gateway/internal/session"
	"github.com/prepview/voice-gateway/internal/tts"
)

const (
	apologyText      = "I'm sorry, I'm having trouble connecting to my brain right now."
	completionNotice = "The interview is now complete. Thank you for your time."
	fallbackReply    = "I see. Tell me more."

	// cancelAwait bounds how long a superseding utterance waits for the
	// previous task to stop
	cancelAwait = 5 * time.Second
)

// TurnPublisher emits completed-turn records downstream
type TurnPublisher interface {
	PublishTurn(ctx context.Context, record events.TurnRecord) error
}

// turnTask is one in-flight response cycle
type turnTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator owns the turn state machine for one connection: at most one
// task runs at a time, a new finalized utterance supersedes the previous
// task, and the interrupt flag lets in-flight work bail out cheaply between
// network calls.
type Coordinator struct {
	sessionID string
	store     session.Store
	responder backend.Responder
	synth     tts.Synthesizer
	publisher TurnPublisher
	sender    Sender
	metrics   *observability.Metrics
	logger    zerolog.Logger

	// interrupt is the only state written by both the ingress reader and
	// the coordinator
	interrupt atomic.Bool

	mu            sync.Mutex
	task          *turnTask
	lastUtterance string
	completed     bool
}

// NewCoordinator wires a coordinator for one connection. publisher may be nil.
func NewCoordinator(sessionID string, store session.Store, responder backend.Responder,
	synth tts.Synthesizer, publisher TurnPublisher, sender Sender,
	metrics *observability.Metrics, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		sessionID: sessionID,
		store:     store,
		responder: responder,
		synth:     synth,
		publisher: publisher,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
	}
}

// Running reports whether a turn task is currently in flight
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task != nil
}

// CancelCurrent interrupts the in-flight task without waiting for it. Called
// by the ingress reader when new speech arrives during a machine turn; the
// reader must never block on task teardown.
func (c *Coordinator) CancelCurrent() {
	c.mu.Lock()
	task := c.task
	c.mu.Unlock()
	if task == nil {
		return
	}

	c.interrupt.Store(true)
	if err := c.sender.Send(interruptMessage()); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send interrupt message")
	}
	task.cancel()
	c.metrics.RecordInterrupt()
	c.logger.Info().Msg("Interrupted in-flight turn")
}

// HandleFinalized runs one utterance through the turn state machine. Called
// from the event-consumer goroutine only.
func (c *Coordinator) HandleFinalized(ctx context.Context, utterance string) {
	c.cancelAndAwait()

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return
	}

	c.mu.Lock()
	duplicate := utterance == c.lastUtterance
	c.mu.Unlock()
	if duplicate {
		c.logger.Debug().Str("utterance", utterance).Msg("Suppressing duplicate utterance")
		return
	}

	sess, err := c.store.Get(c.sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("Dropping utterance, session unknown")
		c.metrics.RecordError("session_missing", "gateway")
		return
	}

	// echo what was heard only once the utterance is accepted
	if err := c.sender.Send(transcriptMessage(utterance)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send transcript")
	}

	if sess.TurnCount >= sess.MaxTurns {
		c.mu.Lock()
		alreadyNotified := c.completed
		c.completed = true
		c.mu.Unlock()
		if alreadyNotified {
			return
		}
		c.interrupt.Store(false)
		c.logger.Info().Int("turns", sess.TurnCount).Msg("Interview complete, delivering closing notice")
		c.deliver(ctx, completionNotice)
		return
	}

	turn, err := c.store.IncrementTurn(c.sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Dropping utterance, failed to advance turn")
		return
	}

	c.mu.Lock()
	c.lastUtterance = utterance
	c.mu.Unlock()
	c.interrupt.Store(false)

	taskCtx, cancel := context.WithCancel(ctx)
	task := &turnTask{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.task = task
	c.mu.Unlock()

	go c.runTurn(taskCtx, task, sess, turn, utterance)
}

// cancelAndAwait stops any running task and waits for it to fully terminate,
// so the replacement never overlaps with it.
func (c *Coordinator) cancelAndAwait() {
	c.mu.Lock()
	task := c.task
	c.mu.Unlock()
	if task == nil {
		return
	}

	c.interrupt.Store(true)
	if err := c.sender.Send(interruptMessage()); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send interrupt message")
	}
	task.cancel()
	c.metrics.RecordInterrupt()

	select {
	case <-task.done:
	case <-time.After(cancelAwait):
		c.logger.Warn().Msg("Timed out waiting for superseded turn to stop")
	}
}

// runTurn is one response cycle. The interrupt flag is re-checked after each
// network call so superseded work stops before any client-visible delivery.
func (c *Coordinator) runTurn(ctx context.Context, task *turnTask, sess session.Session, turn int, utterance string) {
	defer func() {
		close(task.done)
		c.mu.Lock()
		if c.task == task {
			c.task = nil
		}
		c.mu.Unlock()
	}()

	prompt := backend.BuildTurnPrompt(string(sess.CompanyContext), sess.Transcript, turn, utterance)

	c.metrics.RecordBackendStart()
	text, newToken, err := c.responder.Respond(ctx, prompt, sess.ContinuationToken)
	c.metrics.RecordBackendEnd(err == nil && ctx.Err() == nil)

	if ctx.Err() != nil || c.interrupt.Load() {
		c.metrics.RecordTurn("cancelled")
		return
	}
	if err != nil {
		c.logger.Error().Err(err).Int("turn", turn).Msg("Response backend failed, substituting apology")
		c.metrics.RecordError("backend_error", "gateway")
		text = apologyText
		newToken = sess.ContinuationToken
	}

	reply := backend.CleanResponse(text)
	if reply == "" {
		reply = fallbackReply
	}

	if err := c.store.Update(c.sessionID, newToken, utterance, reply); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist turn, session may have expired")
	}

	// the turn is recorded, so the user may legitimately repeat themselves
	// next turn
	c.mu.Lock()
	c.lastUtterance = ""
	c.mu.Unlock()

	if !c.deliver(ctx, reply) {
		c.metrics.RecordTurn("cancelled")
		return
	}
	c.metrics.RecordTurn("completed")
	c.publishTurn(turn, utterance, reply)
}

// deliver synthesizes reply and sends it to the client, falling back to a
// text-only message when synthesis fails. Returns false when the delivery
// was suppressed by cancellation.
func (c *Coordinator) deliver(ctx context.Context, reply string) bool {
	c.metrics.RecordSynthesisStart()
	audio, err := c.synth.Synthesize(ctx, reply)
	c.metrics.RecordSynthesisEnd(err == nil)

	if ctx.Err() != nil || c.interrupt.Load() {
		return false
	}

	var msg ServerMessage
	if err != nil {
		c.logger.Warn().Err(err).Msg("Synthesis failed, sending text-only reply")
		c.metrics.RecordError("synthesis_error", "gateway")
		msg = textMessage(reply)
	} else {
		msg = audioMessage(audio, reply)
		c.metrics.RecordAudioBytes("out", int64(len(audio)))
	}

	if err := c.sender.Send(msg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to deliver reply to client")
		return false
	}
	return true
}

// publishTurn is best-effort; a broken event pipeline never fails a turn
func (c *Coordinator) publishTurn(turn int, utterance, reply string) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.publisher.PublishTurn(ctx, events.TurnRecord{
		SessionID: c.sessionID,
		Turn:      turn,
		Utterance: utterance,
		Response:  reply,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish turn record")
	}
}
