package deals

import "github.com/shopspring/decimal"

// Manager is a human lead handler.
//
// CommissionRate is a personal override over the tier defaults. A value
// of 0.10 is the legacy "unset" default carried over from old rows and
// must be treated as no override, not as a real 10% rate.
type Manager struct {
	ID             int64
	DisplayName    string
	IsActive       bool
	CommissionRate *decimal.Decimal
}
