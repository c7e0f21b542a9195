// Package outbox drains the durable queue of outbound messages through
// the rate-limited external channel.
package outbox

import (
	"context"
	"math/rand"
	"time"

	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/domain/interfaces"
	"dealdesk/internal/telemetry"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultBatchSize = 10

	// DefaultMessageGap is the fixed pause between consecutive sends in
	// one batch, respecting the channel's rate limits.
	DefaultMessageGap = time.Second
)

// Typing delay bounds. The delay is proportional to message length plus
// jitter so outbound traffic paces like a human typing — a behavioral
// throttle against the channel's anti-spam heuristics, not a
// performance knob.
const (
	typingPerRune = 55 * time.Millisecond
	typingMin     = 800 * time.Millisecond
	typingMax     = 6 * time.Second
	typingJitter  = 700 * time.Millisecond
)

// Config tunes the worker loop. Zero values take the defaults; a
// negative TypingScale disables the typing delay (tests).
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MessageGap  time.Duration
	TypingScale float64
}

// Worker drains pending outbox rows oldest-first. Failed sends are
// terminal: recovery is a manual re-enqueue, never an automatic retry.
type Worker struct {
	outbox       interfaces.OutboxRepository
	negotiations interfaces.NegotiationRepository
	channel      interfaces.ChannelClient
	logger       *logrus.Logger

	interval    time.Duration
	batchSize   int
	pace        *rate.Limiter
	typingScale float64
}

func NewWorker(
	outboxRepo interfaces.OutboxRepository,
	negotiations interfaces.NegotiationRepository,
	channel interfaces.ChannelClient,
	logger *logrus.Logger,
	cfg Config,
) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MessageGap <= 0 {
		cfg.MessageGap = DefaultMessageGap
	}
	scale := cfg.TypingScale
	if scale == 0 {
		scale = 1
	}
	if scale < 0 {
		scale = 0
	}
	return &Worker{
		outbox:       outboxRepo,
		negotiations: negotiations,
		channel:      channel,
		logger:       logger,
		interval:     cfg.Interval,
		batchSize:    cfg.BatchSize,
		pace:         rate.NewLimiter(rate.Every(cfg.MessageGap), 1),
		typingScale:  scale,
	}
}

// Run loops until the context is cancelled, processing one batch per
// interval. Errors are logged; the loop itself never dies on them.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.WithField("interval", w.interval).Info("outbox worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			processed, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.WithError(err).Error("outbox iteration failed")
				continue
			}
			if processed > 0 {
				w.logger.WithField("processed", processed).Debug("outbox batch done")
			}
		}
	}
}

// RunOnce processes a single batch of pending messages FIFO and returns
// how many it attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.outbox.PendingBatch(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	for i := range batch {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		// Fixed gap between consecutive sends in a batch.
		if err := w.pace.Wait(ctx); err != nil {
			return i, err
		}
		w.process(ctx, &batch[i])
	}
	return len(batch), nil
}

func (w *Worker) process(ctx context.Context, message *chat.OutboxMessage) {
	log := w.logger.WithFields(logrus.Fields{
		"outbox_id":    message.ID,
		"recipient_id": message.RecipientID,
	})

	if delay := w.typingDelay(message.Text); delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	externalID, err := w.channel.Send(ctx, message.RecipientID, message.Text, message.ReplyToExternalID)
	if err != nil {
		if markErr := w.outbox.MarkFailed(ctx, message.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("failed to mark outbox message failed")
		}
		telemetry.OutboxFailed.Inc()
		log.WithError(err).Error("outbox send failed")
		return
	}

	if err := w.outbox.MarkSent(ctx, message.ID, time.Now().UTC()); err != nil {
		log.WithError(err).Error("failed to mark outbox message sent")
		return
	}
	telemetry.OutboxSent.Inc()

	// Attach the channel's message id to the originating negotiation
	// message so later replies can thread onto it.
	if message.NegotiationID != 0 {
		if err := w.negotiations.BackfillExternalID(ctx, message.NegotiationID, message.Text, externalID); err != nil {
			log.WithError(err).Warn("external id backfill failed")
		}
	}
	log.Debug("outbox message sent")
}

func (w *Worker) typingDelay(text string) time.Duration {
	if w.typingScale == 0 {
		return 0
	}
	delay := time.Duration(len([]rune(text))) * typingPerRune
	if delay < typingMin {
		delay = typingMin
	}
	if delay > typingMax {
		delay = typingMax
	}
	delay += time.Duration(rand.Int63n(int64(typingJitter)))
	return time.Duration(float64(delay) * w.typingScale)
}
