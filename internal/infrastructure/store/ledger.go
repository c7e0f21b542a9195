package store

import (
	"context"

	"dealdesk/internal/domain/entity/deals"
)

func (r *Repository) ListLedgerEntries(ctx context.Context, limit, offset int) ([]deals.LedgerEntry, error) {
	const query = `
		SELECT id, deal_id, buy_amount, sell_amount, profit, commission, rate_applied,
			lead_source, closed_by_user_id, closed_at
		FROM ledger
		ORDER BY closed_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deals.LedgerEntry
	for rows.Next() {
		var e deals.LedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.DealID,
			&e.BuyAmount,
			&e.SellAmount,
			&e.Profit,
			&e.Commission,
			&e.RateApplied,
			&e.LeadSource,
			&e.ClosedByUserID,
			&e.ClosedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertLedgerEntry(ctx context.Context, runner queryRower, entry *deals.LedgerEntry) error {
	const query = `
		INSERT INTO ledger (deal_id, buy_amount, sell_amount, profit, commission, rate_applied,
			lead_source, closed_by_user_id, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	return runner.QueryRow(ctx, query,
		entry.DealID,
		entry.BuyAmount,
		entry.SellAmount,
		entry.Profit,
		entry.Commission,
		entry.RateApplied,
		entry.LeadSource,
		entry.ClosedByUserID,
		entry.ClosedAt,
	).Scan(&entry.ID)
}
