package users

import "time"

type User struct {
	ID                  string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email               string `gorm:"not null;uniqueIndex:idx_users_email"`
	SmartAccountAddress *string `gorm:"column:smart_account_address;uniqueIndex:idx_users_smart_account"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
