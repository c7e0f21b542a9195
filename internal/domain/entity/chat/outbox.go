package chat

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of a queued message. Failed is
// terminal: recovery is a manual re-enqueue, never an automatic retry.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxMessage is a send request queued for the external channel.
// Duplicates are allowed; idempotency is the caller's problem.
type OutboxMessage struct {
	ID                uuid.UUID
	RecipientID       int64
	Text              string
	MediaRef          string
	ReplyToExternalID *int64
	Status            OutboxStatus
	Error             string
	NegotiationID     int64
	SentByUserID      *int64
	CreatedAt         time.Time
	SentAt            *time.Time
}
