package deals

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealStatus is the pipeline status of a deal.
type DealStatus string

const (
	StatusCold            DealStatus = "cold"
	StatusInProgress      DealStatus = "in_progress"
	StatusWarm            DealStatus = "warm"
	StatusHandedToManager DealStatus = "handed_to_manager"
	StatusWon             DealStatus = "won"
	StatusLost            DealStatus = "lost"
)

func (s DealStatus) String() string {
	return string(s)
}

func (s DealStatus) IsValid() bool {
	switch s {
	case StatusCold, StatusInProgress, StatusWarm, StatusHandedToManager, StatusWon, StatusLost:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the deal can no longer change state.
func (s DealStatus) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// IsOpen reports whether the deal counts toward a manager's workload.
func (s DealStatus) IsOpen() bool {
	switch s {
	case StatusInProgress, StatusWarm, StatusHandedToManager:
		return true
	default:
		return false
	}
}

// LeadSource records who found the lead, which fixes the commission tier.
type LeadSource string

const (
	LeadSourceSystem  LeadSource = "system"
	LeadSourceManager LeadSource = "manager"
)

func (l LeadSource) String() string {
	return string(l)
}

// Deal is a matched buy/sell order pair being brokered toward a close.
//
// CommissionRate is nil until assignment and is never recalculated once
// set: later changes to a manager's personal rate or to the tier
// constants do not touch in-flight deals.
type Deal struct {
	ID          int64
	BuyOrderID  int64
	SellOrderID int64

	Product string
	Region  string

	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Margin    decimal.Decimal
	Profit    *decimal.Decimal

	Status     DealStatus
	LeadSource LeadSource

	ManagerID      *int64
	AssignedAt     *time.Time
	CommissionRate *decimal.Decimal

	AIInsight    string
	AIResolution string
	Notes        string

	SellerCondition string
	SellerCity      string
	SellerSpecs     string
	SellerPhone     string
	BuyerPhone      string

	BuyerChatID   *int64
	BuyerSenderID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assigned reports whether a manager already owns the deal.
func (d *Deal) Assigned() bool {
	return d.ManagerID != nil
}
