package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/audio"
	"github.com/prepview/voice-gateway/internal/backend"
	"github.com/prepview/voice-gateway/internal/caption"
	"github.com/prepview/voice-gateway/internal/config"
	"github.com/prepview/voice-gateway/internal/observability"
	"github.com/prepview/voice-gateway/internal/recognition"
	"github.com/prepview/voice-gateway/internal/session"
	"github.com/prepview/voice-gateway/internal/tts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// browser clients connect from arbitrary origins; auth happens via
		// the session id
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Deps holds the collaborators a voice connection needs
type Deps struct {
	Config    *config.Config
	Store     session.Store
	Responder backend.Responder
	Synth     tts.Synthesizer
	Publisher TurnPublisher
}

// HandleVoiceWS serves /ws/voice. One connection runs three goroutines under
// a shared context: the client ingress reader, the recognizer send pump and
// the recognition-event consumer. The first to exit tears down the rest.
func HandleVoiceWS(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		sampleRate := clientSampleRate(r.URL.Query().Get("sampleRate"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log := observability.GetLogger()
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		writer := newConnWriter(conn)
		logger := observability.WithConnection(observability.NewCorrelationID(), sessionID)

		if sessionID == "" {
			writer.writeClose(websocket.ClosePolicyViolation, "sessionId required")
			return
		}
		if _, err := deps.Store.Get(sessionID); err != nil {
			logger.Warn().Msg("Rejecting connection for unknown session")
			writer.writeClose(websocket.ClosePolicyViolation, "unknown session")
			return
		}

		metrics := observability.NewConnectionMetrics()
		metrics.RecordConnectionStart()
		defer metrics.RecordConnectionEnd()

		dialCtx, dialCancel := context.WithTimeout(r.Context(), 10*time.Second)
		channel, err := recognition.Dial(dialCtx, recognition.Config{
			URL:            deps.Config.RecognizerURL,
			APIKey:         deps.Config.ElevenLabsAPIKey,
			ModelID:        deps.Config.RecognizerModelID,
			CommitStrategy: deps.Config.CommitStrategy,
			Keepalive:      time.Duration(deps.Config.KeepaliveSeconds) * time.Second,
		}, logger)
		dialCancel()
		if err != nil {
			if errors.Is(err, recognition.ErrAuthRejected) {
				logger.Error().Err(err).Msg("Recognizer rejected credentials")
				metrics.RecordError("auth_rejected", "recognition")
				writer.writeClose(websocket.CloseInternalServerErr, "recognition auth rejected")
			} else {
				logger.Error().Err(err).Msg("Failed to open recognition channel")
				metrics.RecordError("dial_failed", "recognition")
				writer.writeClose(websocket.CloseInternalServerErr, "recognition unavailable")
			}
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// unblock the reader and consumer when the first goroutine exits
		go func() {
			<-ctx.Done()
			channel.Close()
			conn.Close()
		}()

		coord := NewCoordinator(sessionID, deps.Store, deps.Responder, deps.Synth,
			deps.Publisher, writer, metrics, logger)

		acc := caption.New(caption.ParseStrategy(deps.Config.CommitStrategy), logger)
		acc.OnCaption(func(text string) {
			if err := writer.Send(partialMessage(text)); err != nil {
				logger.Debug().Err(err).Msg("Failed to send caption update")
			}
		})
		acc.OnFinalized(func(utterance string) {
			coord.HandleFinalized(ctx, utterance)
		})

		logger.Info().Int("sample_rate", sampleRate).Msg("Voice connection established")

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			defer cancel()
			ingressLoop(conn, sampleRate, channel, acc, coord, metrics, logger)
		}()
		go func() {
			defer wg.Done()
			defer cancel()
			if err := channel.RunPump(ctx); err != nil {
				logger.Warn().Err(err).Msg("Recognition send pump failed")
				metrics.RecordError("pump_failed", "recognition")
			}
		}()
		go func() {
			defer wg.Done()
			defer cancel()
			consumeEvents(channel, acc, metrics, logger)
		}()
		wg.Wait()

		logger.Info().Msg("Voice connection closed")
	}
}

// ingressLoop reads client frames until the socket closes. Audio goes to the
// recognizer; arrival of real audio during a machine turn is the interrupt
// signal.
func ingressLoop(conn *websocket.Conn, sampleRate int, channel *recognition.Channel,
	acc *caption.Accumulator, coord *Coordinator, metrics *observability.Metrics,
	logger zerolog.Logger) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Msg("Client read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			forwardAudio(audio.Normalize(data, sampleRate), channel, coord, metrics)

		case websocket.TextMessage:
			if ctl, ok := parseControl(data); ok {
				if ctl.Type == "commit" {
					acc.RequestCommit()
					channel.SendCommit()
				} else {
					logger.Debug().Str("type", ctl.Type).Msg("Ignoring unknown control message")
				}
				continue
			}
			forwardAudio(audio.NormalizeBase64(string(data), sampleRate), channel, coord, metrics)
		}
	}
}

func forwardAudio(samples []float32, channel *recognition.Channel, coord *Coordinator,
	metrics *observability.Metrics) {
	if len(samples) == 0 {
		return
	}
	metrics.RecordAudioBytes("in", int64(len(samples)*2))
	if coord.Running() {
		coord.CancelCurrent()
	}
	channel.SendAudio(samples)
}

// consumeEvents drains the recognition stream into the caption accumulator
func consumeEvents(channel *recognition.Channel, acc *caption.Accumulator,
	metrics *observability.Metrics, logger zerolog.Logger) {
	for {
		ev, err := channel.Recv()
		if err != nil {
			if !errors.Is(err, recognition.ErrClosed) {
				logger.Warn().Err(err).Msg("Recognition stream error")
				metrics.RecordError("transport", "recognition")
			}
			return
		}
		metrics.RecordRecognitionEvent(ev.Type())

		if authErr, ok := ev.(recognition.AuthError); ok {
			logger.Error().Str("reason", authErr.Reason).Msg("Recognizer revoked the session")
			metrics.RecordError("auth_rejected", "recognition")
			return
		}
		acc.HandleEvent(ev)
	}
}

func clientSampleRate(raw string) int {
	rate, err := strconv.Atoi(raw)
	if err != nil || rate <= 0 {
		return audio.TargetSampleRate
	}
	return rate
}
