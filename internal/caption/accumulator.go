// Package caption merges partial and committed recognition events into the
// live caption shown to the client and decides when an utterance is final.
package caption

import (
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/recognition"
)

// Strategy selects how utterance boundaries are detected
type Strategy int

const (
	// ManualCommit finalizes the whole pending buffer only after the client
	// explicitly requested a commit (mic muted) and the provider acknowledged
	// it with a committed fragment
	ManualCommit Strategy = iota

	// VADCommit treats every committed fragment from the provider as a
	// candidate utterance boundary
	VADCommit
)

// ParseStrategy maps the config value onto a Strategy
func ParseStrategy(s string) Strategy {
	if s == "vad" {
		return VADCommit
	}
	return ManualCommit
}

// Accumulator tracks caption state for one connection. The supervisor drives
// HandleEvent from the single event-consumer goroutine; only RequestCommit
// may be called from another goroutine.
type Accumulator struct {
	strategy Strategy
	logger   zerolog.Logger

	committedText string
	partialText   string

	// pendingCommit is set by RequestCommit (ingress goroutine) and cleared
	// once a committed fragment satisfies it (manual strategy)
	pendingCommit atomic.Bool

	// lastFinalized suppresses byte-identical repeats (vad strategy)
	lastFinalized string

	onCaption   func(text string)
	onFinalized func(utterance string)
}

// New creates an accumulator. Both callbacks may be nil.
func New(strategy Strategy, logger zerolog.Logger) *Accumulator {
	return &Accumulator{
		strategy: strategy,
		logger:   logger,
	}
}

// OnCaption registers the combined-caption sink
func (a *Accumulator) OnCaption(fn func(text string)) {
	a.onCaption = fn
}

// OnFinalized registers the utterance sink. It fires at most once per true
// utterance boundary and never with empty text.
func (a *Accumulator) OnFinalized(fn func(utterance string)) {
	a.onFinalized = fn
}

// RequestCommit marks that the client explicitly finalized the utterance
// (mic muted). The next committed fragment completes the commit.
func (a *Accumulator) RequestCommit() {
	a.pendingCommit.Store(true)
}

// Caption returns the combined caption: committed fragments plus the
// in-flight partial.
func (a *Accumulator) Caption() string {
	return strings.TrimSpace(a.committedText + " " + a.partialText)
}

// HandleEvent classifies one provider event
func (a *Accumulator) HandleEvent(ev recognition.Event) {
	switch e := ev.(type) {
	case recognition.Partial:
		a.handlePartial(e.Text)
	case recognition.Committed:
		a.handleCommitted(e.Text)
	case recognition.SessionStarted:
		a.logger.Info().Str("model_id", e.ModelID).Msg("Recognition session started")
	default:
		a.logger.Debug().Str("type", ev.Type()).Msg("Ignoring recognition event")
	}
}

func (a *Accumulator) handlePartial(text string) {
	if text == "" {
		return
	}

	// Partials replace the in-flight fragment wholesale, never append
	a.partialText = text
	a.emitCaption()
}

func (a *Accumulator) handleCommitted(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if a.strategy == VADCommit {
		// The provider may repeat a final transcript; drop byte-identical
		// candidates before they touch the caption buffers
		if text == a.lastFinalized {
			a.logger.Debug().Str("text", text).Msg("Skipping duplicate committed fragment")
			return
		}
		a.committedText = ""
		a.partialText = ""
		a.finalize(text)
		return
	}

	if a.committedText == "" {
		a.committedText = text
	} else {
		a.committedText += " " + text
	}
	a.partialText = ""
	a.emitCaption()

	if !a.pendingCommit.CompareAndSwap(true, false) {
		return
	}
	utterance := strings.TrimSpace(a.committedText)
	a.committedText = ""
	a.partialText = ""
	a.finalize(utterance)
}

func (a *Accumulator) finalize(utterance string) {
	if utterance == "" {
		return
	}
	a.lastFinalized = utterance
	if a.onFinalized != nil {
		a.onFinalized(utterance)
	}
}

func (a *Accumulator) emitCaption() {
	if a.onCaption == nil {
		return
	}
	if caption := a.Caption(); caption != "" {
		a.onCaption(caption)
	}
}
