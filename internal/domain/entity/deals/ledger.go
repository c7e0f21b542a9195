package deals

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry records the financial outcome of a won deal.
// Entries are immutable once written; exactly one exists per won deal.
type LedgerEntry struct {
	ID             int64
	DealID         int64
	BuyAmount      decimal.Decimal
	SellAmount     decimal.Decimal
	Profit         decimal.Decimal
	Commission     decimal.Decimal
	RateApplied    *decimal.Decimal
	LeadSource     LeadSource
	ClosedByUserID int64
	ClosedAt       time.Time
}
