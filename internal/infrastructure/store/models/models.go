// Package models declares the schema used by the migration tool. The
// runtime store speaks raw SQL against these tables.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderModel struct {
	ID          int64            `gorm:"primaryKey;column:id;autoIncrement"`
	Type        string           `gorm:"column:type;type:varchar(10);not null;index"`
	ChatID      int64            `gorm:"column:chat_id;type:bigint;not null;index"`
	SenderID    int64            `gorm:"column:sender_id;type:bigint;not null;index"`
	MessageID   int64            `gorm:"column:message_id;type:bigint"`
	Product     string           `gorm:"column:product;type:varchar(255);not null"`
	Price       *decimal.Decimal `gorm:"column:price;type:numeric(14,2)"`
	Quantity    string           `gorm:"column:quantity;type:varchar(100)"`
	Region      string           `gorm:"column:region;type:varchar(100)"`
	RawText     string           `gorm:"column:raw_text;type:text"`
	ContactInfo string           `gorm:"column:contact_info;type:varchar(255)"`
	Platform    string           `gorm:"column:platform;type:varchar(50)"`
	Niche       string           `gorm:"column:niche;type:varchar(100)"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true;index"`
	CreatedAt   time.Time        `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (OrderModel) TableName() string {
	return "orders"
}

type DealModel struct {
	ID          int64  `gorm:"primaryKey;column:id;autoIncrement"`
	BuyOrderID  int64  `gorm:"column:buy_order_id;type:bigint;not null;index;check:chk_deal_order_pair,buy_order_id <> sell_order_id"`
	SellOrderID int64  `gorm:"column:sell_order_id;type:bigint;not null;index"`
	Product     string `gorm:"column:product;type:varchar(255);not null"`
	Region      string `gorm:"column:region;type:varchar(100)"`

	BuyPrice  decimal.Decimal  `gorm:"column:buy_price;type:numeric(14,2);not null"`
	SellPrice decimal.Decimal  `gorm:"column:sell_price;type:numeric(14,2);not null"`
	Margin    decimal.Decimal  `gorm:"column:margin;type:numeric(14,2);not null"`
	Profit    *decimal.Decimal `gorm:"column:profit;type:numeric(14,2)"`

	Status     string `gorm:"column:status;type:varchar(30);not null;index"`
	LeadSource string `gorm:"column:lead_source;type:varchar(20);not null;default:system"`

	ManagerID      *int64           `gorm:"column:manager_id;type:bigint;index"`
	AssignedAt     *time.Time       `gorm:"column:assigned_at;type:timestamp"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4)"`

	AIInsight    string `gorm:"column:ai_insight;type:text"`
	AIResolution string `gorm:"column:ai_resolution;type:text"`
	Notes        string `gorm:"column:notes;type:text"`

	SellerCondition string `gorm:"column:seller_condition;type:varchar(255)"`
	SellerCity      string `gorm:"column:seller_city;type:varchar(100)"`
	SellerSpecs     string `gorm:"column:seller_specs;type:text"`
	SellerPhone     string `gorm:"column:seller_phone;type:varchar(50)"`
	BuyerPhone      string `gorm:"column:buyer_phone;type:varchar(50)"`

	BuyerChatID   *int64 `gorm:"column:buyer_chat_id;type:bigint"`
	BuyerSenderID *int64 `gorm:"column:buyer_sender_id;type:bigint;index"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (DealModel) TableName() string {
	return "detected_deals"
}

type NegotiationModel struct {
	ID             int64     `gorm:"primaryKey;column:id;autoIncrement"`
	DealID         int64     `gorm:"column:deal_id;type:bigint;not null;uniqueIndex"`
	Stage          string    `gorm:"column:stage;type:varchar(30);not null;index"`
	SellerChatID   int64     `gorm:"column:seller_chat_id;type:bigint;not null"`
	SellerSenderID int64     `gorm:"column:seller_sender_id;type:bigint;not null;index"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (NegotiationModel) TableName() string {
	return "negotiations"
}

type NegotiationMessageModel struct {
	ID                int64     `gorm:"primaryKey;column:id;autoIncrement"`
	NegotiationID     int64     `gorm:"column:negotiation_id;type:bigint;not null;index"`
	Role              string    `gorm:"column:role;type:varchar(20);not null"`
	Target            string    `gorm:"column:target;type:varchar(10);not null"`
	Content           string    `gorm:"column:content;type:text;not null"`
	ExternalMessageID *int64    `gorm:"column:external_message_id;type:bigint;index"`
	ReplyToExternalID *int64    `gorm:"column:reply_to_external_id;type:bigint"`
	SentByUserID      *int64    `gorm:"column:sent_by_user_id;type:bigint"`
	MediaRef          string    `gorm:"column:media_ref;type:varchar(255)"`
	IsRead            bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP;index"`
}

func (NegotiationMessageModel) TableName() string {
	return "negotiation_messages"
}

type OutboxMessageModel struct {
	ID                string     `gorm:"primaryKey;column:id;type:uuid"`
	RecipientID       int64      `gorm:"column:recipient_id;type:bigint;not null"`
	Text              string     `gorm:"column:text;type:text;not null"`
	MediaRef          string     `gorm:"column:media_ref;type:varchar(255)"`
	ReplyToExternalID *int64     `gorm:"column:reply_to_external_id;type:bigint"`
	Status            string     `gorm:"column:status;type:varchar(10);not null;index"`
	Error             string     `gorm:"column:error;type:text"`
	NegotiationID     int64      `gorm:"column:negotiation_id;type:bigint;index"`
	SentByUserID      *int64     `gorm:"column:sent_by_user_id;type:bigint"`
	CreatedAt         time.Time  `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP;index"`
	SentAt            *time.Time `gorm:"column:sent_at;type:timestamp"`
}

func (OutboxMessageModel) TableName() string {
	return "outbox_messages"
}

type LedgerModel struct {
	ID             int64            `gorm:"primaryKey;column:id;autoIncrement"`
	DealID         int64            `gorm:"column:deal_id;type:bigint;not null;index"`
	BuyAmount      decimal.Decimal  `gorm:"column:buy_amount;type:numeric(14,2);not null"`
	SellAmount     decimal.Decimal  `gorm:"column:sell_amount;type:numeric(14,2);not null"`
	Profit         decimal.Decimal  `gorm:"column:profit;type:numeric(14,2);not null"`
	Commission     decimal.Decimal  `gorm:"column:commission;type:numeric(14,2);not null"`
	RateApplied    *decimal.Decimal `gorm:"column:rate_applied;type:numeric(5,4)"`
	LeadSource     string           `gorm:"column:lead_source;type:varchar(20);not null"`
	ClosedByUserID int64            `gorm:"column:closed_by_user_id;type:bigint;not null"`
	ClosedAt       time.Time        `gorm:"column:closed_at;type:timestamp;not null;index"`
}

func (LedgerModel) TableName() string {
	return "ledger"
}

type ManagerModel struct {
	ID             int64            `gorm:"primaryKey;column:id"`
	DisplayName    string           `gorm:"column:display_name;type:varchar(255);not null"`
	IsActive       bool             `gorm:"column:is_active;not null;default:true"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4)"`
}

func (ManagerModel) TableName() string {
	return "managers"
}

type SystemSettingModel struct {
	Key       string    `gorm:"primaryKey;column:key;type:varchar(100)"`
	Value     []byte    `gorm:"column:value;type:jsonb;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (SystemSettingModel) TableName() string {
	return "system_settings"
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&OrderModel{},
		&DealModel{},
		&NegotiationModel{},
		&NegotiationMessageModel{},
		&OutboxMessageModel{},
		&LedgerModel{},
		&ManagerModel{},
		&SystemSettingModel{},
	}
}
