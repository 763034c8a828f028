package delegations

import "time"

// Delegation is the signed authorization artifact that lets the backend-run
// agent charge the user's smart account for later billing cycles. At most one
// active row exists per (account, manager) pair; a new grant overwrites the
// old payload in place, and cancellation deactivates but never deletes.
type Delegation struct {
	ID string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	UserSmartAccount           string `gorm:"column:user_smart_account;not null;uniqueIndex:idx_delegations_account_manager"`
	SubscriptionManagerAddress string `gorm:"column:subscription_manager_address;not null;uniqueIndex:idx_delegations_account_manager"`

	DelegationPayload string `gorm:"column:delegation_payload;type:text;not null"`
	IsActive          bool   `gorm:"column:is_active;not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
