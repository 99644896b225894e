package database

import (
	"fmt"

	"github.com/fintick/tradesim/internal/database/migrations"
	"github.com/fintick/tradesim/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection against the
// given sqlite path
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		// Surface unique-constraint violations as gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddLedgerQuoteCache(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.User{},
		&types.Session{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
