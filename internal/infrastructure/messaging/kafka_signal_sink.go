// Package messaging delivers stock and finance signals to collaborators.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	appfulfillment "github.com/orderhub/backend/internal/application/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/config"
)

// Message headers carried with every signal
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

const defaultWriteTimeout = 10 * time.Second

// messageWriter abstracts kafka.Writer for tests
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSignalSink publishes signals to one topic keyed by order id, so
// signals of one order stay in partition order
type KafkaSignalSink struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewKafkaSignalSink creates a synchronous writer that waits for all
// in-sync replicas
func NewKafkaSignalSink(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaSignalSink, error) {
	var brokers []string
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
	return newKafkaSignalSink(writer, cfg.WriteTimeout, logger), nil
}

func newKafkaSignalSink(w messageWriter, timeout time.Duration, logger *zap.Logger) *KafkaSignalSink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSignalSink{writer: w, writeTimeout: timeout, logger: logger}
}

// Send writes one signal and waits for the broker acknowledgement
func (s *KafkaSignalSink) Send(ctx context.Context, event shared.DomainEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event.EventType(), err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID().String()),
		Value: value,
		Time:  event.OccurredAt(),
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(event.EventID().String())},
			{Key: HeaderEventType, Value: []byte(event.EventType())},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}

	s.logger.Debug("signal published",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)
	return nil
}

// Close flushes and closes the writer
func (s *KafkaSignalSink) Close() error {
	return s.writer.Close()
}

var _ appfulfillment.SignalSink = (*KafkaSignalSink)(nil)
