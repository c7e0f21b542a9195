package interfaces

import (
	"context"
	"errors"

	"dealdesk/internal/domain/entity/chat"

	"github.com/shopspring/decimal"
)

// ErrGeneratorUnavailable signals that the draft generator cannot
// produce text right now. Callers fall back to canned templates; the
// pipeline never stalls on it.
var ErrGeneratorUnavailable = errors.New("generator unavailable")

// ReplyAction is the generator's verdict on a counterpart message.
type ReplyAction string

const (
	ActionContinue ReplyAction = "continue"
	ActionClose    ReplyAction = "close"
	ActionWarm     ReplyAction = "warm"
)

func (a ReplyAction) IsValid() bool {
	switch a {
	case ActionContinue, ActionClose, ActionWarm:
		return true
	default:
		return false
	}
}

// Reply is the generator's next move in a negotiation.
type Reply struct {
	Action  ReplyAction
	Message string
	Phone   string
}

// Generator is the draft/response generation boundary. Price visibility
// rules live with the caller: a seller draft may carry the sell price,
// a buyer draft never carries price or margin.
type Generator interface {
	Initial(ctx context.Context, target chat.MessageTarget, product string, price *decimal.Decimal, listing string) (string, error)
	Respond(ctx context.Context, target chat.MessageTarget, product string, price *decimal.Decimal, history []chat.NegotiationMessage) (Reply, error)
}
