package store

import (
	"context"
	"errors"
	"time"

	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `id, recipient_id, text, media_ref, reply_to_external_id, status, error,
	negotiation_id, sent_by_user_id, created_at, sent_at`

func (r *Repository) Enqueue(ctx context.Context, message *chat.OutboxMessage) error {
	if message == nil {
		return errors.New("outbox message is nil")
	}
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.Status == "" {
		message.Status = chat.OutboxPending
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO outbox_messages (id, recipient_id, text, media_ref, reply_to_external_id,
			status, error, negotiation_id, sent_by_user_id, created_at, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.RecipientID,
		message.Text,
		message.MediaRef,
		message.ReplyToExternalID,
		message.Status,
		message.Error,
		message.NegotiationID,
		message.SentByUserID,
		message.CreatedAt,
		message.SentAt,
	)
	return err
}

func (r *Repository) GetOutboxMessage(ctx context.Context, id uuid.UUID) (*chat.OutboxMessage, error) {
	const query = `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id=$1`

	message := &chat.OutboxMessage{}
	if err := scanOutboxInto(r.pool.QueryRow(ctx, query, id), message); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return message, nil
}

func (r *Repository) PendingBatch(ctx context.Context, limit int) ([]chat.OutboxMessage, error) {
	const query = `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status=$1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, chat.OutboxPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.OutboxMessage
	for rows.Next() {
		var m chat.OutboxMessage
		if err := scanOutboxInto(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE outbox_messages SET status=$2, sent_at=$3 WHERE id=$1`
	tag, err := r.pool.Exec(ctx, query, id, chat.OutboxSent, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const query = `UPDATE outbox_messages SET status=$2, error=$3 WHERE id=$1`
	tag, err := r.pool.Exec(ctx, query, id, chat.OutboxFailed, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func scanOutboxInto(row pgx.Row, message *chat.OutboxMessage) error {
	return row.Scan(
		&message.ID,
		&message.RecipientID,
		&message.Text,
		&message.MediaRef,
		&message.ReplyToExternalID,
		&message.Status,
		&message.Error,
		&message.NegotiationID,
		&message.SentByUserID,
		&message.CreatedAt,
		&message.SentAt,
	)
}
