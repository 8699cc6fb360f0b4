// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ipnexus/ipnexus-backend/internal/config"
	"github.com/ipnexus/ipnexus-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.User{},
		&models.IPAccount{},
		&models.Module{},
		&models.StorageEntry{},
		&models.Permission{},
		&models.LicenseTerms{},
		&models.LicenseAttachment{},
		&models.LicensingConfig{},
		&models.LicenseToken{},
		&models.DerivativeEdge{},
		&models.AncestorEdge{},
		&models.RoyaltyVault{},
		&models.VaultShareBalance{},
		&models.VaultPendingBalance{},
		&models.VaultSnapshot{},
		&models.SnapshotAmount{},
		&models.SnapshotClaim{},
		&models.RoyaltyPolicyRecord{},
		&models.AccumulatedPolicy{},
		&models.RoyaltyStack{},
		&models.PolicyStack{},
		&models.LifetimeRevenue{},
		&models.WhitelistedToken{},
		&models.TokenBalance{},
		&models.Dispute{},
		&models.AuditLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// IP account indexes
		"CREATE INDEX IF NOT EXISTS idx_ip_accounts_owner ON ip_accounts(owner)",
		"CREATE INDEX IF NOT EXISTS idx_ip_accounts_created_at ON ip_accounts(created_at DESC)",

		// Permission indexes
		"CREATE INDEX IF NOT EXISTS idx_permissions_account_signer ON permissions(ip_account, signer)",

		// License indexes
		"CREATE INDEX IF NOT EXISTS idx_license_tokens_holder ON license_tokens(holder, burned)",
		"CREATE INDEX IF NOT EXISTS idx_license_tokens_licensor ON license_tokens(licensor_ip_id, burned)",
		"CREATE INDEX IF NOT EXISTS idx_derivative_edges_parent ON derivative_edges(parent_ip_id)",

		// Royalty indexes
		"CREATE INDEX IF NOT EXISTS idx_vault_share_balances_holder ON vault_share_balances(holder)",
		"CREATE INDEX IF NOT EXISTS idx_token_balances_holder ON token_balances(holder)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_ip ON vault_snapshots(ip_id, taken_at DESC)",

		// Dispute indexes
		"CREATE INDEX IF NOT EXISTS idx_disputes_target_phase ON disputes(target_ip_id, phase)",

		// Audit indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Seed initial data
func SeedInitialData(db *gorm.DB) error {
	log.Println("Seeding initial data...")

	// Create default admin user
	var adminCount int64
	db.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&adminCount)

	if adminCount == 0 {
		admin := &models.User{
			Username: "admin",
			Email:    "admin@ipnexus.io",
			Wallet:   models.NormalizeAddress("0x000000000000000000000000000000000000ad31"),
			UserType: models.UserTypeAdmin,
			Status:   models.UserStatusActive,
		}

		if err := admin.SetPassword("admin123!@#"); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("Default admin user created successfully")
	}

	log.Println("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
