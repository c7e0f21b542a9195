// Package commission computes manager commission rates for deals.
//
// The rate is fixed onto the deal at assignment time and never
// recalculated, so later changes to a manager's personal rate or to the
// tier constants do not retroactively affect in-flight deals.
package commission

import (
	"dealdesk/internal/domain/entity/deals"

	"github.com/shopspring/decimal"
)

var (
	// SystemLeadRate applies to leads the matcher found on its own.
	SystemLeadRate = decimal.NewFromFloat(0.20)

	// ManagerLeadRate applies to leads a manager brought in personally.
	ManagerLeadRate = decimal.NewFromFloat(0.35)

	// legacyUnsetRate is the old per-manager default. Rows that still
	// carry it mean "not customised", not a real 10% rate.
	legacyUnsetRate = decimal.NewFromFloat(0.10)
)

// Rate returns the commission fraction for assigning the deal to the
// manager. A personal override on the manager wins over the tier unless
// it is zero or the legacy unset sentinel. Always returns a valid rate.
func Rate(deal *deals.Deal, manager *deals.Manager) decimal.Decimal {
	base := SystemLeadRate
	if deal != nil && deal.LeadSource == deals.LeadSourceManager {
		base = ManagerLeadRate
	}

	if manager == nil || manager.CommissionRate == nil {
		return base
	}
	override := *manager.CommissionRate
	if override.IsZero() || override.Equal(legacyUnsetRate) {
		return base
	}
	return override
}

// Amount computes the commission payout from a margin and a fixed rate.
func Amount(margin, rate decimal.Decimal) decimal.Decimal {
	return margin.Mul(rate)
}
