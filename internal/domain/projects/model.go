package projects

import "time"

type Developer struct {
	ID    string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email string `gorm:"not null;uniqueIndex:idx_developers_email"`
	Name  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Project struct {
	ID          string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DeveloperID string `gorm:"type:uuid;not null;index"`
	Developer   Developer
	Name        string

	// On-chain configuration: the subscription manager contract that emits
	// payment events, and the token it charges in.
	SubscriptionManagerAddress string `gorm:"column:subscription_manager_address;not null"`
	TokenAddress               string `gorm:"column:token_address;not null"`
	TokenSymbol                string `gorm:"column:token_symbol;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type APIKey struct {
	ID        string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID string `gorm:"type:uuid;not null;index"`
	Project   Project
	Key       string `gorm:"not null;uniqueIndex:idx_api_keys_key"`
	Active    bool   `gorm:"not null;default:true"`

	CreatedAt time.Time
}
