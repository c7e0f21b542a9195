package deals

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType marks the direction of a detected intent.
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

func (t OrderType) String() string {
	return string(t)
}

func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeBuy, OrderTypeSell:
		return true
	default:
		return false
	}
}

// Order is a buy or sell intent extracted from a monitored chat.
// Orders referenced by a deal are deactivated, never deleted.
type Order struct {
	ID          int64
	Type        OrderType
	ChatID      int64
	SenderID    int64
	MessageID   int64
	Product     string
	Price       *decimal.Decimal
	Quantity    string
	Region      string
	RawText     string
	ContactInfo string
	Platform    string
	Niche       string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
