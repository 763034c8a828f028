package subscriptions

import (
	"time"

	"chainbill-backend/internal/domain/plans"
	"chainbill-backend/internal/domain/users"
)

const (
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

type Subscription struct {
	ID          string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      string `gorm:"type:uuid;not null;index"`
	User        users.User
	PlanID      string `gorm:"type:uuid;not null;index"`
	Plan        plans.Plan
	DeveloperID string `gorm:"type:uuid;not null;index"`

	Status          string `gorm:"not null;default:'active'"`
	StartDate       time.Time
	LastPaymentDate time.Time
	NextPaymentDate time.Time

	CancelledAt             *time.Time
	CancellationEffectiveAt *time.Time

	SubscriptionManagerAddress string `gorm:"column:subscription_manager_address;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type PaymentRecord struct {
	ID             string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID string `gorm:"type:uuid;not null;index"`
	UserID         string `gorm:"type:uuid;not null;index"`

	Amount       float64
	TokenAddress string `gorm:"column:token_address;not null"`
	TokenSymbol  string `gorm:"column:token_symbol;not null"`
	TxHash       string `gorm:"column:tx_hash;not null;uniqueIndex:idx_payment_records_tx_hash"`
	PaymentDate  time.Time

	CreatedAt time.Time
}
