package delegations

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Upsert stores or replaces the delegation for an (account, manager) pair.
// A superseded grant is overwritten in place rather than inserted alongside,
// so the unique index on the pair always holds.
func Upsert(db *gorm.DB, account, manager, payload string) error {
	account = strings.ToLower(account)
	manager = strings.ToLower(manager)

	var existing Delegation
	err := db.Where("user_smart_account = ? AND subscription_manager_address = ?", account, manager).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&Delegation{
			UserSmartAccount:           account,
			SubscriptionManagerAddress: manager,
			DelegationPayload:          payload,
			IsActive:                   true,
		}).Error
	}
	if err != nil {
		return err
	}

	return db.Model(&Delegation{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"delegation_payload": payload,
			"is_active":          true,
		}).Error
}

// Deactivate flips the active flag for an (account, manager) pair. The row is
// kept for audit; a missing row is not an error (nothing to deactivate).
func Deactivate(db *gorm.DB, account, manager string) error {
	return db.Model(&Delegation{}).
		Where("user_smart_account = ? AND subscription_manager_address = ?",
			strings.ToLower(account), strings.ToLower(manager)).
		Update("is_active", false).Error
}
