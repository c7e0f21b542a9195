// Package generator is the HTTP client for the draft generation
// service. Every failure maps onto ErrGeneratorUnavailable so callers
// degrade to canned templates instead of propagating transport errors.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/domain/interfaces"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 20 * time.Second

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type initialRequest struct {
	Target  string  `json:"target"`
	Product string  `json:"product"`
	Price   *string `json:"price,omitempty"`
	Listing string  `json:"listing,omitempty"`
}

type initialResponse struct {
	Message string `json:"message"`
}

func (c *Client) Initial(ctx context.Context, target chat.MessageTarget, product string, price *decimal.Decimal, listing string) (string, error) {
	var resp initialResponse
	err := c.post(ctx, "/v1/drafts/initial", initialRequest{
		Target:  target.String(),
		Product: product,
		Price:   priceString(price),
		Listing: listing,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

type respondRequest struct {
	Target  string        `json:"target"`
	Product string        `json:"product"`
	Price   *string       `json:"price,omitempty"`
	History []historyItem `json:"history"`
}

type respondResponse struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

func (c *Client) Respond(ctx context.Context, target chat.MessageTarget, product string, price *decimal.Decimal, history []chat.NegotiationMessage) (interfaces.Reply, error) {
	items := make([]historyItem, 0, len(history))
	for _, m := range history {
		items = append(items, historyItem{Role: m.Role.String(), Content: m.Content})
	}

	var resp respondResponse
	err := c.post(ctx, "/v1/drafts/respond", respondRequest{
		Target:  target.String(),
		Product: product,
		Price:   priceString(price),
		History: items,
	}, &resp)
	if err != nil {
		return interfaces.Reply{}, err
	}
	return interfaces.Reply{
		Action:  interfaces.ReplyAction(resp.Action),
		Message: resp.Message,
		Phone:   resp.Phone,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c.baseURL == "" {
		return interfaces.ErrGeneratorUnavailable
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", interfaces.ErrGeneratorUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", interfaces.ErrGeneratorUnavailable, err)
	}
	return nil
}

func priceString(price *decimal.Decimal) *string {
	if price == nil {
		return nil
	}
	s := price.String()
	return &s
}
