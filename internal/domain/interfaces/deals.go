package interfaces

import (
	"context"
	"errors"
	"time"

	"dealdesk/internal/domain/entity/deals"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned for any missing or dangling row. Data
	// inconsistencies (deal pointing at a missing order) surface as
	// this error and abort the operation without partial writes.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAssigned is returned by a claim when another manager
	// took the deal between the candidate fetch and the write.
	ErrAlreadyAssigned = errors.New("deal already assigned")

	// ErrNotWarm is returned by a claim on a deal outside the warm state.
	ErrNotWarm = errors.New("deal is not warm")
)

// DealFilter narrows deal listings.
type DealFilter struct {
	Status    *deals.DealStatus
	ManagerID *int64
	Limit     int
	Offset    int
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *deals.Order) error
	GetOrder(ctx context.Context, id int64) (*deals.Order, error)
	DeactivateOrder(ctx context.Context, id int64) error
}

type DealRepository interface {
	CreateDeal(ctx context.Context, deal *deals.Deal) error
	GetDeal(ctx context.Context, id int64) (*deals.Deal, error)
	UpdateDeal(ctx context.Context, deal *deals.Deal) error
	ListDeals(ctx context.Context, filter DealFilter) ([]deals.Deal, error)
	ListUnassignedWarm(ctx context.Context, limit int) ([]deals.Deal, error)
	ListColdWithoutNegotiation(ctx context.Context, limit int) ([]deals.Deal, error)

	// ClaimDeal is the compare-and-set assignment: it commits only if
	// the deal is still warm and unassigned at write time, otherwise it
	// returns ErrAlreadyAssigned or ErrNotWarm.
	ClaimDeal(ctx context.Context, dealID, managerID int64, rate decimal.Decimal, at time.Time) error

	// CountActiveDeals counts the manager's open deals for capacity checks.
	CountActiveDeals(ctx context.Context, managerID int64) (int, error)

	// CloseDeal persists the terminal status plus the optional ledger
	// entry and forces the negotiation stage to closed, all in one
	// transaction.
	CloseDeal(ctx context.Context, deal *deals.Deal, entry *deals.LedgerEntry) error

	// CreateLead stores a manager-sourced lead: both synthetic orders
	// and the pre-assigned deal, in one transaction.
	CreateLead(ctx context.Context, buy, sell *deals.Order, deal *deals.Deal) error

	// DeleteDealCascade removes the deal and everything hanging off it
	// in dependency order: outbox rows, negotiation messages, the
	// negotiation, ledger rows, the deal itself. Linked orders are
	// deactivated, not deleted.
	DeleteDealCascade(ctx context.Context, dealID int64) error
}

type ManagerRepository interface {
	GetManager(ctx context.Context, id int64) (*deals.Manager, error)
	ListActiveManagers(ctx context.Context) ([]deals.Manager, error)
}

type LedgerRepository interface {
	ListLedgerEntries(ctx context.Context, limit, offset int) ([]deals.LedgerEntry, error)
}
