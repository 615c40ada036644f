// Package consumers contains Kafka consumers for background processing tasks.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/infrastructure/audit"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/logger"
)

// Metadata keys read from replicated token.revoked events.
const (
	metaToken     = models.AuditMetaToken
	metaExpiresAt = "expires_at"
)

// RemoteRevocationApplier writes a revocation replicated from another region.
type RemoteRevocationApplier interface {
	ApplyRemoteRevocation(ctx context.Context, token, userID string, expiresAt time.Time)
}

// MessageReader is the subset of *kafka.Reader used by the consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RevocationConsumer reads the audit topic and applies token revocations made in
// other regions to the local blacklist. Events from its own region are skipped.
type RevocationConsumer struct {
	reader     MessageReader
	registry   RemoteRevocationApplier
	region     string
	signingKey string
	logger     logger.Logger
	clock      func() time.Time
}

// NewRevocationConsumer creates a consumer in the configured consumer group.
func NewRevocationConsumer(cfg config.KafkaConfig, registry RemoteRevocationApplier, log logger.Logger) *RevocationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.AuditTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return NewRevocationConsumerWithReader(reader, registry, cfg.Region, cfg.SigningKey, log)
}

// NewRevocationConsumerWithReader creates a consumer on an existing reader.
func NewRevocationConsumerWithReader(reader MessageReader, registry RemoteRevocationApplier, region, signingKey string, log logger.Logger) *RevocationConsumer {
	return &RevocationConsumer{
		reader:     reader,
		registry:   registry,
		region:     region,
		signingKey: signingKey,
		logger:     log.WithComponent("revocation_consumer"),
		clock:      time.Now,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *RevocationConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "Starting revocation consumer", logger.String("region", c.region))
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error(context.Background(), "Failed to close kafka reader", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info(context.Background(), "Stopping revocation consumer")
				return nil
			}
			c.logger.Error(ctx, "Failed to fetch message from kafka", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			// Malformed or unauthenticated messages are committed so they are not redelivered.
			c.logger.Warn(ctx, "Discarding revocation message",
				logger.Int64("offset", msg.Offset),
				logger.Int("partition", msg.Partition),
				logger.Err(err),
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, "Failed to commit kafka message", err)
		}
	}
}

// handleMessage applies one message. A nil error covers messages that are
// intentionally ignored.
func (c *RevocationConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	if !audit.VerifyPayload(msg.Value, headerValue(msg, audit.HeaderSignature), c.signingKey) {
		return fmt.Errorf("invalid message signature")
	}

	var event models.AuditEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if event.EventType != constants.AuditEventTokenRevoked || event.Region == c.region {
		return nil
	}

	token := event.Metadata[metaToken]
	if token == "" {
		return fmt.Errorf("event %s has no token", event.ID)
	}
	expiresAt, err := time.Parse(time.RFC3339, event.Metadata[metaExpiresAt])
	if err != nil {
		return fmt.Errorf("event %s has invalid expires_at: %w", event.ID, err)
	}
	if !expiresAt.After(c.clock()) {
		c.logger.Debug(ctx, "Skipping expired remote revocation",
			logger.String("token_hash", models.HashToken(token)),
		)
		return nil
	}

	c.registry.ApplyRemoteRevocation(ctx, token, event.UserID, expiresAt)
	c.logger.Debug(ctx, "Applied remote revocation",
		logger.String("source_region", event.Region),
		logger.String("user_id", event.UserID),
		logger.String("token_hash", models.HashToken(token)),
	)
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
