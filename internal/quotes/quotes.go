package quotes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownSymbol means the provider does not know the ticker.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUnavailable means the provider could not be reached or returned
	// garbage. Callers treat it the same as an unknown symbol: a
	// request-level validation failure, never a crash.
	ErrUnavailable = errors.New("quote provider unavailable")
)

// Quote is a symbol's current name and price as reported by a provider.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Provider resolves a ticker symbol to a current quote.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}

// StaticProvider serves quotes from an in-memory table. It backs local
// development and tests, where no external market data source exists.
type StaticProvider struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStaticProvider creates a provider seeded with a handful of liquid
// symbols.
func NewStaticProvider() *StaticProvider {
	p := &StaticProvider{quotes: make(map[string]Quote)}
	seed := map[string]struct {
		name  string
		price string
	}{
		"AAPL":  {"Apple Inc.", "150.00"},
		"GOOGL": {"Alphabet Inc.", "2800.00"},
		"MSFT":  {"Microsoft Corporation", "310.00"},
		"AMZN":  {"Amazon.com Inc.", "3300.00"},
		"META":  {"Meta Platforms Inc.", "330.00"},
		"NFLX":  {"Netflix Inc.", "600.00"},
	}
	for symbol, s := range seed {
		p.quotes[symbol] = Quote{
			Symbol: symbol,
			Name:   s.name,
			Price:  decimal.RequireFromString(s.price),
		}
	}
	return p
}

func (p *StaticProvider) Lookup(_ context.Context, symbol string) (*Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	q, ok := p.quotes[strings.ToUpper(symbol)]
	if !ok {
		return nil, ErrUnknownSymbol
	}
	q.ReceivedAt = time.Now()
	return &q, nil
}

// SetQuote adds or overwrites a symbol in the table.
func (p *StaticProvider) SetQuote(symbol, name string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	p.quotes[symbol] = Quote{Symbol: symbol, Name: name, Price: price}
}
