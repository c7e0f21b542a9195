package store

import (
	"context"
	"errors"

	"dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) GetManager(ctx context.Context, id int64) (*deals.Manager, error) {
	const query = `SELECT id, display_name, is_active, commission_rate FROM managers WHERE id=$1`

	manager := &deals.Manager{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&manager.ID,
		&manager.DisplayName,
		&manager.IsActive,
		&manager.CommissionRate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return manager, nil
}

func (r *Repository) ListActiveManagers(ctx context.Context) ([]deals.Manager, error) {
	const query = `
		SELECT id, display_name, is_active, commission_rate
		FROM managers
		WHERE is_active
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deals.Manager
	for rows.Next() {
		var m deals.Manager
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.IsActive, &m.CommissionRate); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
