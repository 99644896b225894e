package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fintick/tradesim/internal/database"
	"github.com/fintick/tradesim/internal/quotes"
	"github.com/fintick/tradesim/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *quotes.StaticProvider, *gorm.DB) {
	t.Helper()

	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	provider := quotes.NewStaticProvider()
	return NewService(db, provider), provider, db
}

func createUser(t *testing.T, db *gorm.DB, cash string) *types.User {
	t.Helper()

	user := &types.User{
		Username: "alice",
		Hash:     "irrelevant",
		Cash:     decimal.RequireFromString(cash),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func userCash(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()

	var user types.User
	if err := db.First(&user, userID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user.Cash
}

func ledgerCount(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()

	var count int64
	if err := db.Model(&types.Transaction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	return count
}

func TestBuyDebitsCashAndOpensPosition(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	// AAPL is 150.00 in the static table
	trade, err := svc.Buy(context.Background(), user.ID, "AAPL", 10)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if !trade.Cash.Equal(decimal.RequireFromString("8500.00")) {
		t.Fatalf("expected cash 8500.00 after buy, got %s", trade.Cash)
	}
	if !trade.Amount.Equal(decimal.RequireFromString("1500.00")) {
		t.Fatalf("expected amount 1500.00, got %s", trade.Amount)
	}

	held, err := svc.db.Position(user.ID, "AAPL")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if held != 10 {
		t.Fatalf("expected position 10, got %d", held)
	}
	if !userCash(t, db, user.ID).Equal(decimal.RequireFromString("8500.00")) {
		t.Fatalf("persisted cash does not match trade response")
	}
}

func TestSellCreditsCashAndReducesPosition(t *testing.T) {
	svc, provider, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Price moves before the sell
	provider.SetQuote("AAPL", "Apple Inc.", decimal.RequireFromString("160.00"))

	trade, err := svc.Sell(context.Background(), user.ID, "AAPL", 5)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !trade.Cash.Equal(decimal.RequireFromString("9300.00")) {
		t.Fatalf("expected cash 9300.00 after sell, got %s", trade.Cash)
	}

	held, err := svc.db.Position(user.ID, "AAPL")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if held != 5 {
		t.Fatalf("expected position 5, got %d", held)
	}
}

func TestSellMoreThanHeldFails(t *testing.T) {
	svc, provider, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	provider.SetQuote("AAPL", "Apple Inc.", decimal.RequireFromString("160.00"))
	if _, err := svc.Sell(context.Background(), user.ID, "AAPL", 5); err != nil {
		t.Fatalf("sell: %v", err)
	}

	before := userCash(t, db, user.ID)
	rows := ledgerCount(t, db, user.ID)

	_, err := svc.Sell(context.Background(), user.ID, "AAPL", 10)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	// State unchanged: same cash, no new ledger row
	if !userCash(t, db, user.ID).Equal(before) {
		t.Fatalf("cash changed on rejected sell: %s", userCash(t, db, user.ID))
	}
	if got := ledgerCount(t, db, user.ID); got != rows {
		t.Fatalf("ledger grew on rejected sell: %d -> %d", rows, got)
	}
}

func TestConcurrentSellsNeverOversell(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	cashAfterBuy := userCash(t, db, user.ID)

	// 10 concurrent sells of 3 against 10 held: only 3 can succeed
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sell(context.Background(), user.ID, "AAPL", 3)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientShares) {
				t.Errorf("unexpected sell error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 3 {
		t.Fatalf("expected exactly 3 accepted sells, got %d", accepted)
	}

	held, err := svc.db.Position(user.ID, "AAPL")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if held != 1 {
		t.Fatalf("expected position 1 after concurrent sells, got %d", held)
	}

	// 9 shares sold at 150.00
	expected := cashAfterBuy.Add(decimal.RequireFromString("1350.00"))
	if !userCash(t, db, user.ID).Equal(expected) {
		t.Fatalf("expected cash %s, got %s", expected, userCash(t, db, user.ID))
	}
}

func TestBuyInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "100.00")

	_, err := svc.Buy(context.Background(), user.ID, "AAPL", 10)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if !userCash(t, db, user.ID).Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("cash changed on rejected buy")
	}
	if got := ledgerCount(t, db, user.ID); got != 0 {
		t.Fatalf("expected empty ledger, got %d rows", got)
	}
}

func TestBuyUnknownSymbol(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	_, err := svc.Buy(context.Background(), user.ID, "ZZZZ", 1)
	if !errors.Is(err, quotes.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if got := ledgerCount(t, db, user.ID); got != 0 {
		t.Fatalf("expected empty ledger, got %d rows", got)
	}
}

func TestSellWithNoPosition(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	_, err := svc.Sell(context.Background(), user.ID, "AAPL", 1)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestBuyNormalizesSymbolCase(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "aapl", 2); err != nil {
		t.Fatalf("buy: %v", err)
	}

	held, err := svc.db.Position(user.ID, "AAPL")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if held != 2 {
		t.Fatalf("expected position 2 under AAPL, got %d", held)
	}
}

func TestPortfolioTotalsNetWorth(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	// 10 AAPL @ 150.00 and 2 MSFT @ 310.00
	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("buy AAPL: %v", err)
	}
	if _, err := svc.Buy(context.Background(), user.ID, "MSFT", 2); err != nil {
		t.Fatalf("buy MSFT: %v", err)
	}

	portfolio, err := svc.Portfolio(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}

	if len(portfolio.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(portfolio.Positions))
	}
	if portfolio.Positions[0].Symbol != "AAPL" || portfolio.Positions[1].Symbol != "MSFT" {
		t.Fatalf("positions not ordered by symbol: %+v", portfolio.Positions)
	}
	if !portfolio.Cash.Equal(decimal.RequireFromString("7880.00")) {
		t.Fatalf("expected cash 7880.00, got %s", portfolio.Cash)
	}
	// 7880 cash + 1500 AAPL + 620 MSFT
	if !portfolio.Total.Equal(decimal.RequireFromString("10000.00")) {
		t.Fatalf("expected total 10000.00, got %s", portfolio.Total)
	}
}

func TestPortfolioOmitsClosedPositions(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 3); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Sell(context.Background(), user.ID, "AAPL", 3); err != nil {
		t.Fatalf("sell: %v", err)
	}

	portfolio, err := svc.Portfolio(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(portfolio.Positions) != 0 {
		t.Fatalf("expected no open positions, got %+v", portfolio.Positions)
	}
	if !portfolio.Total.Equal(portfolio.Cash) {
		t.Fatalf("expected total to equal cash with no positions")
	}
}

func TestPortfolioRefreshesLedgerQuoteCache(t *testing.T) {
	svc, provider, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	provider.SetQuote("AAPL", "Apple Inc.", decimal.RequireFromString("160.00"))
	if _, err := svc.Portfolio(context.Background(), user.ID); err != nil {
		t.Fatalf("portfolio: %v", err)
	}

	var txn types.Transaction
	if err := db.Where("user_id = ?", user.ID).First(&txn).Error; err != nil {
		t.Fatalf("load ledger row: %v", err)
	}
	if txn.LastPrice != "$160.00" {
		t.Fatalf("expected cached last price $160.00, got %q", txn.LastPrice)
	}
	if txn.CurrentValue != "$1600.00" {
		t.Fatalf("expected cached value $1600.00, got %q", txn.CurrentValue)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, _, db := newTestService(t)
	user := createUser(t, db, "10000.00")

	if _, err := svc.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Sell(context.Background(), user.ID, "AAPL", 4); err != nil {
		t.Fatalf("sell: %v", err)
	}

	history, err := svc.History(user.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(history))
	}
	if history[0].Direction != DirectionSell || history[0].Shares != -4 {
		t.Fatalf("expected newest row to be the sell of 4, got %+v", history[0])
	}
	if history[1].Direction != DirectionBuy || history[1].Shares != 10 {
		t.Fatalf("expected oldest row to be the buy of 10, got %+v", history[1])
	}
}

func TestPendingQuoteIsPerSession(t *testing.T) {
	svc, _, db := newTestService(t)
	createUser(t, db, "10000.00")

	sessions := []types.Session{
		{SessionID: "session-a", UserID: 1},
		{SessionID: "session-b", UserID: 1},
	}
	for i := range sessions {
		if err := db.Create(&sessions[i]).Error; err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	quote, err := svc.Quote(context.Background(), "session-a", "aapl")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Symbol != "AAPL" {
		t.Fatalf("expected normalized symbol AAPL, got %s", quote.Symbol)
	}

	price, err := svc.PendingPrice(context.Background(), "session-a")
	if err != nil {
		t.Fatalf("pending price: %v", err)
	}
	if price.Symbol != "AAPL" || !price.Price.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("unexpected pending price: %+v", price)
	}

	// The other session has no pending symbol
	if _, err := svc.PendingPrice(context.Background(), "session-b"); !errors.Is(err, ErrNoPendingQuote) {
		t.Fatalf("expected ErrNoPendingQuote for untouched session, got %v", err)
	}
}

func TestQuoteUnknownSymbolLeavesPendingUnset(t *testing.T) {
	svc, _, db := newTestService(t)
	createUser(t, db, "10000.00")
	if err := db.Create(&types.Session{SessionID: "session-a", UserID: 1}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.Quote(context.Background(), "session-a", "ZZZZ"); !errors.Is(err, quotes.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, err := svc.PendingPrice(context.Background(), "session-a"); !errors.Is(err, ErrNoPendingQuote) {
		t.Fatalf("expected ErrNoPendingQuote, got %v", err)
	}
}
