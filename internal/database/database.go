package database

import (
	"fmt"
	"time"

	"bleumart/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func Initialize(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the schema for every model in the catalog.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Category{},
		&models.CategoryAttribute{},
		&models.CategoryAttributeChoice{},
		&models.Product{},
		&models.ProductAttribute{},
		&models.ProductVariation{},
		&models.PriceEntry{},
		&models.Supplier{},
		&models.StockEntry{},
		&models.RetailSale{},
		&models.Customer{},
		&models.Order{},
		&models.SiteConfig{},
	)
}
