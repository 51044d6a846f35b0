package database

import (
	"fmt"
	"time"

	"github.com/nanorem/backend/internal/config"
	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/queue"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection with configuration
func InitDB(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dbConfig.URL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdle)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// Network
		&models.Partner{},
		&models.NetworkAuditLog{},

		// Orders and catalog
		&models.Order{},
		&models.OrderItem{},
		&models.Product{},

		// Commissions
		&models.RuleSetVersion{},
		&models.CommissionRule{},
		&models.CommissionEntry{},

		// Admin
		&models.AdminUser{},

		// Background jobs
		&queue.Job{},
	)
}
