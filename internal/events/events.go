// Package events is the optional session-lifecycle event publisher
// spec.md §6.3 names (optional_modules["events"]), grounded on the
// teacher's internal/utils/kafka.Producer and the
// SessionService.kafkaClient.PublishSessionEvent call sites in
// session_service.go (publish, log the error, keep going — never fail
// the call that triggered the event).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/UpperCi/charon/session"
)

// Event is the JSON body published for session.created,
// session.rotated and session.revoked.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"session_type"`
	At        time.Time `json:"at"`
}

// Publisher writes session-lifecycle events to a single Kafka topic.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher builds a Publisher writing to topic across brokers,
// mirroring the teacher's kafka.NewProducer(brokers, logger).
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger,
	}
}

// Close releases the underlying Kafka connection.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish implements engine.EventPublisher. Failures are logged, never
// returned — a broker outage must not fail a login or refresh.
func (p *Publisher) Publish(ctx context.Context, eventType string, s *session.Session) {
	evt := Event{
		Type:      eventType,
		SessionID: s.ID,
		UserID:    s.UserID,
		Kind:      s.Type,
		At:        time.Now(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("failed to marshal session event", zap.Error(err), zap.String("event", eventType))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(s.ID),
		Value: body,
		Time:  evt.At,
	}); err != nil {
		p.logger.Error("failed to publish session event",
			zap.String("event", eventType), zap.String("session_id", s.ID), zap.Error(err))
	}
}
