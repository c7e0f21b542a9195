package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dealdesk/internal/domain/entity/chat"
)

const gatewayTimeout = 30 * time.Second

// mediaMarker stands in for payloads that cannot be rendered as text.
const mediaMarker = "[media]"

// Gateway talks to the messaging gateway sidecar over HTTP. The sidecar
// owns the channel session; this client only sends messages and
// resolves media payloads to text.
type Gateway struct {
	baseURL string
	client  *http.Client
}

func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: gatewayTimeout},
	}
}

type sendRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Text        string `json:"text"`
	ReplyTo     *int64 `json:"reply_to,omitempty"`
}

type sendResponse struct {
	MessageID int64 `json:"message_id"`
}

// Send delivers one message and returns the channel's message id.
func (g *Gateway) Send(ctx context.Context, recipientID int64, text string, replyTo *int64) (int64, error) {
	var resp sendResponse
	err := g.post(ctx, "/send", sendRequest{
		RecipientID: recipientID,
		Text:        text,
		ReplyTo:     replyTo,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

type transcribeRequest struct {
	MediaRef string `json:"media_ref"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// ResolveEvent turns an inbound event into plain text: passthrough for
// text, a transcription round-trip for voice, a marker for other media.
func (g *Gateway) ResolveEvent(ctx context.Context, event chat.InboundEvent) (string, error) {
	switch event.Kind {
	case chat.EventText:
		return event.Text, nil
	case chat.EventVoice:
		var resp transcribeResponse
		if err := g.post(ctx, "/transcribe", transcribeRequest{MediaRef: event.MediaRef}, &resp); err != nil {
			return "", fmt.Errorf("transcribe %s: %w", event.MediaRef, err)
		}
		return resp.Text, nil
	case chat.EventMedia:
		return mediaMarker, nil
	default:
		// Unknown kinds are treated as opaque media.
		return mediaMarker, nil
	}
}

func (g *Gateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
