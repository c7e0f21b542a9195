package chat

import "time"

// MessageRole identifies who authored a negotiation message.
type MessageRole string

const (
	RoleAI      MessageRole = "ai"
	RoleSeller  MessageRole = "seller"
	RoleBuyer   MessageRole = "buyer"
	RoleManager MessageRole = "manager"
	RoleSystem  MessageRole = "system"
)

func (r MessageRole) String() string {
	return string(r)
}

func (r MessageRole) IsValid() bool {
	switch r {
	case RoleAI, RoleSeller, RoleBuyer, RoleManager, RoleSystem:
		return true
	default:
		return false
	}
}

// MessageTarget identifies which counter-party chat a message belongs
// to. It is independent from the role: a manager may message either side.
type MessageTarget string

const (
	TargetSeller MessageTarget = "seller"
	TargetBuyer  MessageTarget = "buyer"
)

func (t MessageTarget) String() string {
	return string(t)
}

func (t MessageTarget) IsValid() bool {
	return t == TargetSeller || t == TargetBuyer
}

// CounterpartRole returns the role of an inbound message arriving from
// the given side of the conversation.
func (t MessageTarget) CounterpartRole() MessageRole {
	if t == TargetBuyer {
		return RoleBuyer
	}
	return RoleSeller
}

// NegotiationMessage is an append-only log entry in a negotiation.
// Content is immutable once created; edits are new messages.
type NegotiationMessage struct {
	ID                int64
	NegotiationID     int64
	Role              MessageRole
	Target            MessageTarget
	Content           string
	ExternalMessageID *int64
	ReplyToExternalID *int64
	SentByUserID      *int64
	MediaRef          string
	IsRead            bool
	CreatedAt         time.Time
}
