// Package audit implements the audit trail of the sessiond service: a kafka
// event stream for lifecycle and fault events, and a relational task log for
// per-execution records.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// KafkaProducer publishes audit events to the configured topic. Downstream
// consumers use session.revoked events to shed revoked sessions and
// session.reconciliation_fault events to drive reconciliation.
type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaProducer creates the kafka-backed audit publisher.
func NewKafkaProducer(cfg *config.KafkaConfig, log logger.Logger) service.AuditPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaProducer{
		writer: writer,
		logger: log.WithComponent("KafkaProducer"),
	}
}

// Publish sends one audit event, keyed by session id so per-session ordering
// is preserved within a partition.
func (p *KafkaProducer) Publish(ctx context.Context, event models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal audit event", err,
			logger.String("event_type", string(event.Type)))
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to write audit event to kafka", err,
			logger.String("event_type", string(event.Type)),
			logger.String("session_id", event.SessionID))
	}
	return err
}

// Close closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
