package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents the current holding in one symbol, priced at the
// latest quote.
type Position struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

// PortfolioResponse is the derived portfolio view: all nonzero positions,
// the cash balance, and the total net worth (cash plus position values).
type PortfolioResponse struct {
	Positions []Position      `json:"positions"`
	Cash      decimal.Decimal `json:"cash"`
	Total     decimal.Decimal `json:"total"`
}

// TradeResponse reports a recorded trade and the resulting cash balance.
type TradeResponse struct {
	TransactionID string          `json:"transaction_id"`
	Direction     string          `json:"direction"`
	Symbol        string          `json:"symbol"`
	Shares        int64           `json:"shares"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	Cash          decimal.Decimal `json:"cash"`
	CreatedAt     time.Time       `json:"created_at"`
}

// QuoteResponse is the quote lookup result returned by the quote and price
// endpoints.
type QuoteResponse struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}
