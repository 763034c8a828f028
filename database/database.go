package database

import (
	"fmt"
	"log"
	"os"

	"chainbill-backend/internal/domain/delegations"
	"chainbill-backend/internal/domain/plans"
	"chainbill-backend/internal/domain/projects"
	"chainbill-backend/internal/domain/subscriptions"
	"chainbill-backend/internal/domain/users"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatal("DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	DB = db

	// Required for gen_random_uuid()
	if err := DB.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Fatal("Failed to enable pgcrypto extension:", err)
	}

	if err := DB.AutoMigrate(
		&users.User{},
		&projects.Developer{},
		&projects.Project{},
		&projects.APIKey{},
		&plans.Plan{},
		&subscriptions.Subscription{},
		&subscriptions.PaymentRecord{},
		&delegations.Delegation{},
	); err != nil {
		log.Fatal("AutoMigrate error:", err)
	}

	fmt.Println("Connected and migrated successfully")
}
