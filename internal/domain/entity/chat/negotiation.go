package chat

import (
	"time"

	"dealdesk/internal/domain/entity/deals"
)

// Stage is the advisory phase of a negotiation conversation. It is
// looser than the deal status but the two must converge: a deal can be
// won or lost only once the stage is StageClosed.
type Stage string

const (
	StageInitial         Stage = "initial"
	StagePriceDiscussion Stage = "price_discussion"
	StageLogistics       Stage = "logistics"
	StageWarm            Stage = "warm"
	StageHandedToManager Stage = "handed_to_manager"
	StageClosed          Stage = "closed"
)

func (s Stage) String() string {
	return string(s)
}

func (s Stage) IsValid() bool {
	switch s {
	case StageInitial, StagePriceDiscussion, StageLogistics, StageWarm, StageHandedToManager, StageClosed:
		return true
	default:
		return false
	}
}

// Next returns the stage after one more productive exchange. Warm and
// later stages only move through explicit transitions.
func (s Stage) Next() Stage {
	switch s {
	case StageInitial:
		return StagePriceDiscussion
	case StagePriceDiscussion:
		return StageLogistics
	default:
		return s
	}
}

// StageForStatus returns the stage a deal status forces, or "" when the
// status does not constrain the stage. Every status transition must run
// its result through this mapping instead of trusting call sites.
func StageForStatus(status deals.DealStatus) Stage {
	switch status {
	case deals.StatusWarm:
		return StageWarm
	case deals.StatusHandedToManager:
		return StageHandedToManager
	case deals.StatusWon, deals.StatusLost:
		return StageClosed
	default:
		return ""
	}
}

// Negotiation is the conversational thread attached to a deal,
// one per deal, created lazily on first contact.
type Negotiation struct {
	ID             int64
	DealID         int64
	Stage          Stage
	SellerChatID   int64
	SellerSenderID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
