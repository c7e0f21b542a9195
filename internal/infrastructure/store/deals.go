package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const dealColumns = `id, buy_order_id, sell_order_id, product, region, buy_price, sell_price, margin, profit,
	status, lead_source, manager_id, assigned_at, commission_rate,
	ai_insight, ai_resolution, notes,
	seller_condition, seller_city, seller_specs, seller_phone, buyer_phone,
	buyer_chat_id, buyer_sender_id, created_at, updated_at`

func (r *Repository) CreateDeal(ctx context.Context, deal *deals.Deal) error {
	return r.createDealWith(ctx, r.pool, deal)
}

func (r *Repository) createDealWith(ctx context.Context, runner queryRower, deal *deals.Deal) error {
	if deal == nil {
		return errors.New("deal is nil")
	}
	if deal.BuyOrderID == deal.SellOrderID {
		return fmt.Errorf("deal must link two distinct orders, got %d twice", deal.BuyOrderID)
	}
	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	deal.UpdatedAt = now
	if deal.Status == "" {
		deal.Status = deals.StatusCold
	}
	if deal.LeadSource == "" {
		deal.LeadSource = deals.LeadSourceSystem
	}

	const query = `
		INSERT INTO detected_deals (buy_order_id, sell_order_id, product, region,
			buy_price, sell_price, margin, profit, status, lead_source,
			manager_id, assigned_at, commission_rate,
			ai_insight, ai_resolution, notes,
			seller_condition, seller_city, seller_specs, seller_phone, buyer_phone,
			buyer_chat_id, buyer_sender_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING id`

	return runner.QueryRow(ctx, query,
		deal.BuyOrderID,
		deal.SellOrderID,
		deal.Product,
		deal.Region,
		deal.BuyPrice,
		deal.SellPrice,
		deal.Margin,
		deal.Profit,
		deal.Status,
		deal.LeadSource,
		deal.ManagerID,
		deal.AssignedAt,
		deal.CommissionRate,
		deal.AIInsight,
		deal.AIResolution,
		deal.Notes,
		deal.SellerCondition,
		deal.SellerCity,
		deal.SellerSpecs,
		deal.SellerPhone,
		deal.BuyerPhone,
		deal.BuyerChatID,
		deal.BuyerSenderID,
		deal.CreatedAt,
		deal.UpdatedAt,
	).Scan(&deal.ID)
}

func (r *Repository) GetDeal(ctx context.Context, id int64) (*deals.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM detected_deals WHERE id=$1`
	return r.getDealRow(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) getDealRow(row pgx.Row) (*deals.Deal, error) {
	deal := &deals.Deal{}
	if err := scanDealInto(row, deal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return deal, nil
}

func (r *Repository) UpdateDeal(ctx context.Context, deal *deals.Deal) error {
	return r.updateDealWith(ctx, r.pool, deal)
}

func (r *Repository) updateDealWith(ctx context.Context, execer commandTagExecutor, deal *deals.Deal) error {
	if deal == nil {
		return errors.New("deal is nil")
	}
	deal.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE detected_deals
		SET product=$2,
			region=$3,
			buy_price=$4,
			sell_price=$5,
			margin=$6,
			profit=$7,
			status=$8,
			lead_source=$9,
			manager_id=$10,
			assigned_at=$11,
			commission_rate=$12,
			ai_insight=$13,
			ai_resolution=$14,
			notes=$15,
			seller_condition=$16,
			seller_city=$17,
			seller_specs=$18,
			seller_phone=$19,
			buyer_phone=$20,
			buyer_chat_id=$21,
			buyer_sender_id=$22,
			updated_at=$23
		WHERE id=$1`

	tag, err := execer.Exec(ctx, query,
		deal.ID,
		deal.Product,
		deal.Region,
		deal.BuyPrice,
		deal.SellPrice,
		deal.Margin,
		deal.Profit,
		deal.Status,
		deal.LeadSource,
		deal.ManagerID,
		deal.AssignedAt,
		deal.CommissionRate,
		deal.AIInsight,
		deal.AIResolution,
		deal.Notes,
		deal.SellerCondition,
		deal.SellerCity,
		deal.SellerSpecs,
		deal.SellerPhone,
		deal.BuyerPhone,
		deal.BuyerChatID,
		deal.BuyerSenderID,
		deal.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *Repository) ListDeals(ctx context.Context, filter interfaces.DealFilter) ([]deals.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM detected_deals WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.ManagerID != nil {
		args = append(args, *filter.ManagerID)
		query += fmt.Sprintf(" AND manager_id=$%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeals(rows)
}

func (r *Repository) ListUnassignedWarm(ctx context.Context, limit int) ([]deals.Deal, error) {
	const query = `
		SELECT ` + dealColumns + `
		FROM detected_deals
		WHERE status=$1 AND manager_id IS NULL
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, deals.StatusWarm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeals(rows)
}

func (r *Repository) ListColdWithoutNegotiation(ctx context.Context, limit int) ([]deals.Deal, error) {
	const query = `
		SELECT ` + dealColumns + `
		FROM detected_deals d
		WHERE d.status=$1
		  AND NOT EXISTS (SELECT 1 FROM negotiations n WHERE n.deal_id = d.id)
		ORDER BY d.created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, deals.StatusCold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeals(rows)
}

// ClaimDeal commits only if the deal is still warm and unassigned at
// write time. On a miss it re-reads the row to report which precondition
// failed.
func (r *Repository) ClaimDeal(ctx context.Context, dealID, managerID int64, rate decimal.Decimal, at time.Time) error {
	const query = `
		UPDATE detected_deals
		SET manager_id=$2, assigned_at=$3, commission_rate=$4, status=$5, updated_at=$3
		WHERE id=$1 AND manager_id IS NULL AND status=$6`

	tag, err := r.pool.Exec(ctx, query, dealID, managerID, at, rate, deals.StatusHandedToManager, deals.StatusWarm)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	deal, err := r.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.ManagerID != nil {
		return interfaces.ErrAlreadyAssigned
	}
	return interfaces.ErrNotWarm
}

func (r *Repository) CountActiveDeals(ctx context.Context, managerID int64) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM detected_deals
		WHERE manager_id=$1 AND status = ANY($2)`

	open := []string{
		deals.StatusInProgress.String(),
		deals.StatusWarm.String(),
		deals.StatusHandedToManager.String(),
	}
	var count int
	if err := r.pool.QueryRow(ctx, query, managerID, open).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CloseDeal persists the terminal status, forces the negotiation stage
// to closed, and writes the optional ledger entry, all in one
// transaction.
func (r *Repository) CloseDeal(ctx context.Context, deal *deals.Deal, entry *deals.LedgerEntry) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := r.updateDealWith(ctx, tx, deal); err != nil {
			return err
		}
		const stageQuery = `UPDATE negotiations SET stage='closed', updated_at=$2 WHERE deal_id=$1`
		if _, err := tx.Exec(ctx, stageQuery, deal.ID, time.Now().UTC()); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return insertLedgerEntry(ctx, tx, entry)
	})
}

// CreateLead stores both synthetic orders and the pre-assigned deal in
// one transaction.
func (r *Repository) CreateLead(ctx context.Context, buy, sell *deals.Order, deal *deals.Deal) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := r.createOrderWith(ctx, tx, buy); err != nil {
			return err
		}
		if err := r.createOrderWith(ctx, tx, sell); err != nil {
			return err
		}
		deal.BuyOrderID = buy.ID
		deal.SellOrderID = sell.ID
		return r.createDealWith(ctx, tx, deal)
	})
}

// DeleteDealCascade removes the deal and its dependents in dependency
// order. Linked orders are deactivated, never deleted.
func (r *Repository) DeleteDealCascade(ctx context.Context, dealID int64) error {
	deal, err := r.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		const deleteOutbox = `
			DELETE FROM outbox_messages
			WHERE negotiation_id IN (SELECT id FROM negotiations WHERE deal_id=$1)`
		if _, err := tx.Exec(ctx, deleteOutbox, dealID); err != nil {
			return err
		}

		const deleteMessages = `
			DELETE FROM negotiation_messages
			WHERE negotiation_id IN (SELECT id FROM negotiations WHERE deal_id=$1)`
		if _, err := tx.Exec(ctx, deleteMessages, dealID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM negotiations WHERE deal_id=$1`, dealID); err != nil {
			return err
		}

		if err := r.deactivateOrderWith(ctx, tx, deal.BuyOrderID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			return err
		}
		if err := r.deactivateOrderWith(ctx, tx, deal.SellOrderID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM ledger WHERE deal_id=$1`, dealID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM detected_deals WHERE id=$1`, dealID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return interfaces.ErrNotFound
		}
		return nil
	})
}

func collectDeals(rows pgx.Rows) ([]deals.Deal, error) {
	var out []deals.Deal
	for rows.Next() {
		var deal deals.Deal
		if err := scanDealInto(rows, &deal); err != nil {
			return nil, err
		}
		out = append(out, deal)
	}
	return out, rows.Err()
}

func scanDealInto(row pgx.Row, deal *deals.Deal) error {
	return row.Scan(
		&deal.ID,
		&deal.BuyOrderID,
		&deal.SellOrderID,
		&deal.Product,
		&deal.Region,
		&deal.BuyPrice,
		&deal.SellPrice,
		&deal.Margin,
		&deal.Profit,
		&deal.Status,
		&deal.LeadSource,
		&deal.ManagerID,
		&deal.AssignedAt,
		&deal.CommissionRate,
		&deal.AIInsight,
		&deal.AIResolution,
		&deal.Notes,
		&deal.SellerCondition,
		&deal.SellerCity,
		&deal.SellerSpecs,
		&deal.SellerPhone,
		&deal.BuyerPhone,
		&deal.BuyerChatID,
		&deal.BuyerSenderID,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)
}
