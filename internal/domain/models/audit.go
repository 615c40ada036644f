package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/linkguard/pkg/constants"
)

// AuditMetaToken is the metadata key of the raw token on token.revoked events.
// Only the replication topic carries it; persisting sinks store Redacted events.
const AuditMetaToken = "token"

// AuditEvent is a security-relevant record emitted by the access control plane.
// It is persisted by the audit sinks and replayed across regions for revocations.
type AuditEvent struct {
	ID        string                   `json:"id" gorm:"primaryKey;size:36"`
	EventType constants.AuditEventType `json:"event_type" gorm:"index;size:64"`
	Region    string                   `json:"region" gorm:"size:64"`
	UserID    string                   `json:"user_id" gorm:"index;size:128"`
	Success   bool                     `json:"success"`
	Metadata  map[string]string        `json:"metadata" gorm:"serializer:json"`
	Timestamp time.Time                `json:"timestamp" gorm:"index"`
}

// TableName pins the audit table name.
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent creates an event stamped with a fresh ID and the current time.
func NewAuditEvent(eventType constants.AuditEventType, userID string, success bool) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UTC(),
	}
}

// With returns a copy of the event with one more metadata entry.
func (e AuditEvent) With(key, value string) AuditEvent {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// Redacted returns a copy of the event without the raw token.
func (e AuditEvent) Redacted() AuditEvent {
	if _, ok := e.Metadata[AuditMetaToken]; !ok {
		return e
	}
	md := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		if k != AuditMetaToken {
			md[k] = v
		}
	}
	e.Metadata = md
	return e
}
