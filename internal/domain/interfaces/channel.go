package interfaces

import (
	"context"

	"dealdesk/internal/domain/entity/chat"
)

// ChannelClient is the outbound side of the external messaging channel.
type ChannelClient interface {
	// Send delivers text to a recipient and returns the channel's
	// message id. Failures are terminal for the caller's message.
	Send(ctx context.Context, recipientID int64, text string, replyTo *int64) (int64, error)

	// ResolveEvent turns an inbound event into plain text: passthrough
	// for text, transcription for voice, a marker for other media.
	ResolveEvent(ctx context.Context, event chat.InboundEvent) (string, error)
}
