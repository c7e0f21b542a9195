package store

import (
	"context"
	"errors"
	"time"

	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) CreateNegotiation(ctx context.Context, negotiation *chat.Negotiation) error {
	if negotiation == nil {
		return errors.New("negotiation is nil")
	}
	now := time.Now().UTC()
	negotiation.CreatedAt = now
	negotiation.UpdatedAt = now
	if negotiation.Stage == "" {
		negotiation.Stage = chat.StageInitial
	}

	const query = `
		INSERT INTO negotiations (deal_id, stage, seller_chat_id, seller_sender_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		negotiation.DealID,
		negotiation.Stage,
		negotiation.SellerChatID,
		negotiation.SellerSenderID,
		negotiation.CreatedAt,
		negotiation.UpdatedAt,
	).Scan(&negotiation.ID)
}

func (r *Repository) GetNegotiationByDeal(ctx context.Context, dealID int64) (*chat.Negotiation, error) {
	const query = `
		SELECT id, deal_id, stage, seller_chat_id, seller_sender_id, created_at, updated_at
		FROM negotiations
		WHERE deal_id=$1`

	negotiation := &chat.Negotiation{}
	err := r.pool.QueryRow(ctx, query, dealID).Scan(
		&negotiation.ID,
		&negotiation.DealID,
		&negotiation.Stage,
		&negotiation.SellerChatID,
		&negotiation.SellerSenderID,
		&negotiation.CreatedAt,
		&negotiation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return negotiation, nil
}

func (r *Repository) UpdateStage(ctx context.Context, negotiationID int64, stage chat.Stage) error {
	const query = `UPDATE negotiations SET stage=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.pool.Exec(ctx, query, negotiationID, stage, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// FindThread matches an inbound sender to a live negotiation: seller
// identifiers sit on the negotiation, buyer identifiers on the owning
// deal. A buyer match also requires the deal's buyer chat id when one
// is recorded. Closed threads are excluded.
func (r *Repository) FindThread(ctx context.Context, senderID, chatID int64) (*chat.Negotiation, chat.MessageTarget, error) {
	const query = `
		SELECT n.id, n.deal_id, n.stage, n.seller_chat_id, n.seller_sender_id, n.created_at, n.updated_at,
			CASE
				WHEN n.seller_sender_id=$1 AND n.seller_chat_id=$2 THEN 'seller'
				ELSE 'buyer'
			END AS side
		FROM negotiations n
		JOIN detected_deals d ON d.id = n.deal_id
		WHERE n.stage <> 'closed'
		  AND (
			(n.seller_sender_id=$1 AND n.seller_chat_id=$2)
			OR (d.buyer_sender_id=$1 AND (d.buyer_chat_id IS NULL OR d.buyer_chat_id=$2))
		  )
		ORDER BY n.updated_at DESC
		LIMIT 1`

	negotiation := &chat.Negotiation{}
	var side string
	err := r.pool.QueryRow(ctx, query, senderID, chatID).Scan(
		&negotiation.ID,
		&negotiation.DealID,
		&negotiation.Stage,
		&negotiation.SellerChatID,
		&negotiation.SellerSenderID,
		&negotiation.CreatedAt,
		&negotiation.UpdatedAt,
		&side,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", interfaces.ErrNotFound
		}
		return nil, "", err
	}
	return negotiation, chat.MessageTarget(side), nil
}

func (r *Repository) AddMessage(ctx context.Context, message *chat.NegotiationMessage) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO negotiation_messages (negotiation_id, role, target, content,
			external_message_id, reply_to_external_id, sent_by_user_id, media_ref, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		message.NegotiationID,
		message.Role,
		message.Target,
		message.Content,
		message.ExternalMessageID,
		message.ReplyToExternalID,
		message.SentByUserID,
		message.MediaRef,
		message.IsRead,
		message.CreatedAt,
	).Scan(&message.ID)
}

func (r *Repository) ListMessages(ctx context.Context, negotiationID int64, target *chat.MessageTarget) ([]chat.NegotiationMessage, error) {
	query := `
		SELECT id, negotiation_id, role, target, content,
			external_message_id, reply_to_external_id, sent_by_user_id, media_ref, is_read, created_at
		FROM negotiation_messages
		WHERE negotiation_id=$1`
	args := []interface{}{negotiationID}

	if target != nil {
		args = append(args, *target)
		query += ` AND target=$2`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.NegotiationMessage
	for rows.Next() {
		var m chat.NegotiationMessage
		if err := rows.Scan(
			&m.ID,
			&m.NegotiationID,
			&m.Role,
			&m.Target,
			&m.Content,
			&m.ExternalMessageID,
			&m.ReplyToExternalID,
			&m.SentByUserID,
			&m.MediaRef,
			&m.IsRead,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BackfillExternalID attaches the channel's message id to the newest
// ai-authored message with the same content and no external id yet.
// Content match is a heuristic: the outbox row does not reference the
// message it was created next to.
func (r *Repository) BackfillExternalID(ctx context.Context, negotiationID int64, content string, externalID int64) error {
	const query = `
		UPDATE negotiation_messages
		SET external_message_id=$3
		WHERE id = (
			SELECT id FROM negotiation_messages
			WHERE negotiation_id=$1 AND role='ai' AND content=$2 AND external_message_id IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)`

	_, err := r.pool.Exec(ctx, query, negotiationID, content, externalID)
	return err
}
