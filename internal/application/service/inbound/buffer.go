// Package inbound coalesces rapid-fire message fragments from the same
// sender before they reach the negotiation engine. Humans often type a
// thought across several short messages; answering each fragment
// separately produces disjointed replies.
package inbound

import (
	"context"
	"strings"
	"sync"
	"time"

	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/telemetry"

	"github.com/sirupsen/logrus"
)

// DefaultMergeWindow is how long a sender has to keep typing before the
// buffered fragments are flushed as one turn.
const DefaultMergeWindow = 4 * time.Second

// Resolver turns a single event into text: passthrough for text,
// transcript for voice, a marker for other media. An error skips the
// fragment; it never aborts the merged turn.
type Resolver func(ctx context.Context, event chat.InboundEvent) (string, error)

// Handler receives the merged turn exactly once per flush. The first
// buffered event carries the sender/chat metadata.
type Handler func(ctx context.Context, first chat.InboundEvent, merged string)

type bufferKey struct {
	senderID int64
	chatID   int64
}

type senderBuffer struct {
	events []chat.InboundEvent
	timer  *time.Timer
}

// Buffer accumulates events per (sender, chat) key. Each arrival resets
// that key's countdown; expiry resolves and merges the fragments and
// invokes the handler once. Keys are independent. State is in-memory and
// single-process: there is one channel identity per deployment.
type Buffer struct {
	resolve Resolver
	handle  Handler
	window  time.Duration
	logger  *logrus.Logger

	mu      sync.Mutex
	buffers map[bufferKey]*senderBuffer
}

func NewBuffer(resolve Resolver, handle Handler, window time.Duration, logger *logrus.Logger) *Buffer {
	if window <= 0 {
		window = DefaultMergeWindow
	}
	return &Buffer{
		resolve: resolve,
		handle:  handle,
		window:  window,
		logger:  logger,
		buffers: make(map[bufferKey]*senderBuffer),
	}
}

// Add buffers one inbound event and schedules (or reschedules) the
// flush for its key.
func (b *Buffer) Add(event chat.InboundEvent) {
	if event.SenderID == 0 || event.ChatID == 0 {
		return
	}
	key := bufferKey{senderID: event.SenderID, chatID: event.ChatID}

	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.buffers[key]; ok {
		buf.events = append(buf.events, event)
		// Stop the pending timer before rescheduling so the previous
		// task cannot fire alongside the new one. If Stop reports the
		// callback already started, the running flush will pick up the
		// event we just appended.
		if buf.timer.Stop() {
			buf.timer.Reset(b.window)
		}
		return
	}

	buf := &senderBuffer{events: []chat.InboundEvent{event}}
	buf.timer = time.AfterFunc(b.window, func() {
		b.flushKey(context.Background(), key)
	})
	b.buffers[key] = buf
}

// Flush delivers every pending buffer immediately, regardless of timer
// state. Called on shutdown.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	keys := make([]bufferKey, 0, len(b.buffers))
	for key, buf := range b.buffers {
		buf.timer.Stop()
		keys = append(keys, key)
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.flushKey(ctx, key)
	}
}

func (b *Buffer) flushKey(ctx context.Context, key bufferKey) {
	b.mu.Lock()
	buf, ok := b.buffers[key]
	delete(b.buffers, key)
	b.mu.Unlock()

	if !ok || len(buf.events) == 0 {
		return
	}

	texts := make([]string, 0, len(buf.events))
	for _, event := range buf.events {
		text, err := b.resolve(ctx, event)
		if err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"sender_id": key.senderID,
				"chat_id":   key.chatID,
			}).Warn("skipping unresolvable fragment")
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return
	}

	if len(buf.events) > 1 {
		b.logger.WithFields(logrus.Fields{
			"sender_id": key.senderID,
			"fragments": len(buf.events),
		}).Info("merged message fragments")
	}

	telemetry.InboundMerged.Inc()
	b.handle(ctx, buf.events[0], strings.Join(texts, "\n"))
}
