package interfaces

import (
	"context"
	"time"

	"dealdesk/internal/domain/entity/chat"

	"github.com/google/uuid"
)

type NegotiationRepository interface {
	CreateNegotiation(ctx context.Context, negotiation *chat.Negotiation) error
	GetNegotiationByDeal(ctx context.Context, dealID int64) (*chat.Negotiation, error)
	UpdateStage(ctx context.Context, negotiationID int64, stage chat.Stage) error

	// FindThread matches an inbound sender/chat pair to a live
	// negotiation: seller identifiers on the negotiation itself, buyer
	// identifiers on the owning deal. The returned target says which
	// side matched.
	FindThread(ctx context.Context, senderID, chatID int64) (*chat.Negotiation, chat.MessageTarget, error)

	AddMessage(ctx context.Context, message *chat.NegotiationMessage) error
	ListMessages(ctx context.Context, negotiationID int64, target *chat.MessageTarget) ([]chat.NegotiationMessage, error)

	// BackfillExternalID attaches the channel's message id to the most
	// recent ai-authored message with the exact same content that has
	// no external id yet. A content-match heuristic: the outbox row
	// does not reference the message it was created next to.
	BackfillExternalID(ctx context.Context, negotiationID int64, content string, externalID int64) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, message *chat.OutboxMessage) error
	GetOutboxMessage(ctx context.Context, id uuid.UUID) (*chat.OutboxMessage, error)
	PendingBatch(ctx context.Context, limit int) ([]chat.OutboxMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
