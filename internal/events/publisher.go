// Package events publishes completed interview turns to Kafka for downstream
// scoring and analytics.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/prepview/voice-gateway/internal/config"
)

// TurnRecord is the event emitted once per completed exchange
type TurnRecord struct {
	SessionID string    `json:"sessionId"`
	Turn      int       `json:"turn"`
	Utterance string    `json:"utterance"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes turn records to a Kafka topic. When Kafka is disabled the
// publisher runs in log-only mode and every publish succeeds.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	logger  zerolog.Logger
}

// NewPublisher creates a publisher from the service configuration
func NewPublisher(cfg *config.Config, logger zerolog.Logger) *Publisher {
	if !cfg.KafkaEnabled || len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("Kafka disabled, turn records will be logged only")
		return &Publisher{
			topic:  cfg.KafkaTopic,
			logger: logger,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Msg("Kafka turn publisher initialized")

	return &Publisher{
		writer:  writer,
		topic:   cfg.KafkaTopic,
		enabled: true,
		logger:  logger,
	}
}

// PublishTurn emits one turn record keyed by session id
func (p *Publisher) PublishTurn(ctx context.Context, record TurnRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal turn record")
		return err
	}

	p.logger.Debug().
		Str("session_id", record.SessionID).
		Int("turn", record.Turn).
		RawJSON("payload", payload).
		Msg("Publishing turn record")

	if !p.enabled || p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(record.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("interview.turn.completed")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("session_id", record.SessionID).
			Msg("Failed to write turn record to Kafka")
		return err
	}
	return nil
}

// Close releases the Kafka writer
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
