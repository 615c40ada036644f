package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ service.AuditService = (*KafkaProducer)(nil)

// Message headers set on every audit record.
const (
	HeaderEventType = "event_type"
	HeaderRegion    = "region"
	HeaderSignature = "signature"
)

// MessageWriter is the subset of *kafka.Writer used by the producer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is a Kafka-backed implementation of the AuditService. Messages are
// keyed by user so one user's events stay ordered within a partition.
type KafkaProducer struct {
	writer     MessageWriter
	signingKey string
	logger     logger.Logger
}

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchTimeout: cfg.BatchTimeout,
	}
	return NewKafkaProducerWithWriter(writer, cfg.SigningKey, log)
}

// NewKafkaProducerWithWriter creates a producer on an existing writer.
func NewKafkaProducerWithWriter(writer MessageWriter, signingKey string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer:     writer,
		signingKey: signingKey,
		logger:     log.WithComponent("kafka_producer"),
	}
}

// LogEvent sends an audit event to the Kafka topic.
func (p *KafkaProducer) LogEvent(ctx context.Context, event models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "Failed to marshal audit event", err)
		return err
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(event.EventType)},
		{Key: HeaderRegion, Value: []byte(event.Region)},
	}
	if p.signingKey != "" {
		headers = append(headers, kafka.Header{Key: HeaderSignature, Value: []byte(SignPayload(payload, p.signingKey))})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.UserID),
		Value:   payload,
		Headers: headers,
	})
	if err != nil {
		p.logger.Error(ctx, "Failed to write audit event to Kafka", err,
			logger.String("event_type", string(event.EventType)),
		)
	}
	return err
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
