package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEvent records that a user performed an action on a target.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id"`
	UserID     int64          `json:"user_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   int64          `json:"target_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	At         time.Time      `json:"at"`
}

// AuditSink accepts audit events fire-and-forget: implementations log
// delivery failures and never propagate them to the caller.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}
