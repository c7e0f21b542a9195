package store

import (
	"context"
	"errors"
	"time"

	"dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, type, chat_id, sender_id, message_id, product, price, quantity, region,
	raw_text, contact_info, platform, niche, is_active, created_at, updated_at`

func (r *Repository) CreateOrder(ctx context.Context, order *deals.Order) error {
	return r.createOrderWith(ctx, r.pool, order)
}

func (r *Repository) createOrderWith(ctx context.Context, runner queryRower, order *deals.Order) error {
	if order == nil {
		return errors.New("order is nil")
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	const query = `
		INSERT INTO orders (type, chat_id, sender_id, message_id, product, price, quantity, region,
			raw_text, contact_info, platform, niche, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`

	return runner.QueryRow(ctx, query,
		order.Type,
		order.ChatID,
		order.SenderID,
		order.MessageID,
		order.Product,
		order.Price,
		order.Quantity,
		order.Region,
		order.RawText,
		order.ContactInfo,
		order.Platform,
		order.Niche,
		order.IsActive,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*deals.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`

	order := &deals.Order{}
	if err := scanOrderInto(r.pool.QueryRow(ctx, query, id), order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *Repository) DeactivateOrder(ctx context.Context, id int64) error {
	return r.deactivateOrderWith(ctx, r.pool, id)
}

func (r *Repository) deactivateOrderWith(ctx context.Context, execer commandTagExecutor, id int64) error {
	const query = `UPDATE orders SET is_active=false, updated_at=$2 WHERE id=$1`
	tag, err := execer.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func scanOrderInto(row pgx.Row, order *deals.Order) error {
	return row.Scan(
		&order.ID,
		&order.Type,
		&order.ChatID,
		&order.SenderID,
		&order.MessageID,
		&order.Product,
		&order.Price,
		&order.Quantity,
		&order.Region,
		&order.RawText,
		&order.ContactInfo,
		&order.Platform,
		&order.Niche,
		&order.IsActive,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}
