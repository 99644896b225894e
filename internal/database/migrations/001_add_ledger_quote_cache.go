package migrations

import (
	"github.com/fintick/tradesim/internal/types"
	"gorm.io/gorm"
)

// AddLedgerQuoteCache creates the transactions table with the display-cache
// columns and the indexes the position aggregation depends on
func AddLedgerQuoteCache(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Transaction{}); err != nil {
		return err
	}

	// Raw SQL for index creation to have more control over index shape
	indexes := []string{
		// Composite index backing the per-user per-symbol position sum
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol
		 ON transactions(user_id, symbol)`,

		// Index for history ordering
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		 ON transactions(created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
