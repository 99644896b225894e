package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model `json:"-"`
	Username   string          `gorm:"uniqueIndex" json:"username"`
	Hash       string          `json:"-"`
	Cash       decimal.Decimal `gorm:"type:decimal(20,4)" json:"cash"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Transaction is one row of the trade ledger. Rows are append-only: the net
// position per (user, symbol) is the sum of the signed Shares column. The
// LastPrice and CurrentValue columns are a display cache refreshed on
// portfolio reads and are never read back for computation.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string          `gorm:"uniqueIndex" json:"transaction_id"`
	UserID        uint            `gorm:"index:idx_transactions_user_symbol" json:"-"`
	Direction     string          `json:"direction"` // BUY or SELL
	Symbol        string          `gorm:"index:idx_transactions_user_symbol" json:"symbol"`
	Shares        int64           `json:"shares"` // signed: positive buy, negative sell
	Price         decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"`
	LastPrice     string          `json:"last_price,omitempty"`
	CurrentValue  string          `json:"current_value,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Session maps a bearer token to a logged-in user. PendingSymbol carries the
// last symbol validated via the quote endpoint so the price endpoint can
// resolve it without any process-global state.
type Session struct {
	gorm.Model    `json:"-"`
	SessionID     string    `gorm:"uniqueIndex" json:"session_id"`
	UserID        uint      `gorm:"index" json:"user_id"`
	PendingSymbol string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
}
