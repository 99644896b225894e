package trading

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/fintick/tradesim/internal/quotes"
	"github.com/fintick/tradesim/internal/types"
	"github.com/fintick/tradesim/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

var (
	ErrInsufficientFunds  = errors.New("not enough cash")
	ErrInsufficientShares = errors.New("trying to sell more shares than owned")
	ErrNoPendingQuote     = errors.New("no symbol quoted yet")
)

// Service records trades against the ledger and derives portfolio views
type Service struct {
	db     *Database
	quotes quotes.Provider
}

// NewService creates a new trading service with the given database
// connection and quote provider
func NewService(gormDB *gorm.DB, provider quotes.Provider) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		quotes: provider,
	}
}

// Buy prices the symbol at the current quote and records a buy trade.
// Parameters:
//   - userID: the buying user
//   - symbol: ticker to buy
//   - shares: positive share count
func (s *Service) Buy(ctx context.Context, userID uint, symbol string, shares int64) (*types.TradeResponse, error) {
	return s.trade(ctx, userID, DirectionBuy, symbol, shares)
}

// Sell prices the symbol at the current quote and records a sell trade
// against the held position.
func (s *Service) Sell(ctx context.Context, userID uint, symbol string, shares int64) (*types.TradeResponse, error) {
	return s.trade(ctx, userID, DirectionSell, symbol, shares)
}

func (s *Service) trade(ctx context.Context, userID uint, direction, symbol string, shares int64) (*types.TradeResponse, error) {
	logger := log.With().
		Uint("user_id", userID).
		Str("direction", direction).
		Str("symbol", symbol).
		Int64("shares", shares).
		Str("service", "trading").
		Logger()

	quote, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		logger.Debug().Err(err).Msg("quote lookup failed")
		return nil, err
	}

	txn, user, err := s.db.ExecuteTrade(userID, direction, quote.Symbol, shares, quote.Price)
	if err != nil {
		logger.Debug().Err(err).Msg("trade rejected")
		return nil, err
	}

	amount := quote.Price.Mul(decimal.NewFromInt(shares))
	logger.Info().
		Str("transaction_id", txn.TransactionID).
		Str("price", quote.Price.String()).
		Str("amount", amount.String()).
		Str("cash", user.Cash.String()).
		Msg("trade recorded")

	return &types.TradeResponse{
		TransactionID: txn.TransactionID,
		Direction:     direction,
		Symbol:        quote.Symbol,
		Shares:        shares,
		Price:         quote.Price,
		Amount:        amount,
		Cash:          user.Cash,
		CreatedAt:     txn.CreatedAt,
	}, nil
}

// Portfolio derives the current holdings from the ledger, prices each
// nonzero position at a fresh quote, and totals net worth. As a side
// effect it refreshes the display-cache columns on the matching ledger
// rows.
func (s *Service) Portfolio(ctx context.Context, userID uint) (*types.PortfolioResponse, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, gorm.ErrRecordNotFound
	}

	positions, err := s.db.PositionsByUser(userID)
	if err != nil {
		return nil, err
	}

	result := &types.PortfolioResponse{
		Positions: []types.Position{},
		Cash:      user.Cash,
		Total:     user.Cash,
	}

	for _, pos := range positions {
		if pos.Shares == 0 {
			continue
		}

		quote, err := s.quotes.Lookup(ctx, pos.Symbol)
		if err != nil {
			return nil, err
		}

		value := quote.Price.Mul(decimal.NewFromInt(pos.Shares))
		result.Total = result.Total.Add(value)
		result.Positions = append(result.Positions, types.Position{
			Symbol: pos.Symbol,
			Name:   quote.Name,
			Shares: pos.Shares,
			Price:  quote.Price,
			Value:  value,
		})

		if err := s.db.RefreshQuoteCache(userID, pos.Symbol, usd(quote.Price), usd(value)); err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("failed to refresh ledger quote cache")
		}
	}

	return result, nil
}

// History returns the user's full ledger, newest first.
func (s *Service) History(userID uint) ([]types.Transaction, error) {
	return s.db.History(userID)
}

// Quote validates that the symbol exists and remembers it on the session
// as the pending symbol for a subsequent price request.
func (s *Service) Quote(ctx context.Context, sessionID, symbol string) (*types.QuoteResponse, error) {
	quote, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if err := s.db.SetPendingSymbol(sessionID, quote.Symbol); err != nil {
		return nil, err
	}

	return &types.QuoteResponse{
		Symbol: quote.Symbol,
		Name:   quote.Name,
		Price:  quote.Price,
	}, nil
}

// PendingPrice resolves the session's pending symbol to a fresh quote.
func (s *Service) PendingPrice(ctx context.Context, sessionID string) (*types.QuoteResponse, error) {
	symbol, err := s.db.GetPendingSymbol(sessionID)
	if err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, ErrNoPendingQuote
	}

	quote, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	return &types.QuoteResponse{
		Symbol: quote.Symbol,
		Name:   quote.Name,
		Price:  quote.Price,
	}, nil
}

// usd formats a money amount the way the ledger display cache stores it
func usd(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// GinHandlers contains HTTP handlers for trading and portfolio endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// BuyHandler handles POST requests to buy shares
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return h.tradeHandler(DirectionBuy, "Bought!")
}

// SellHandler handles POST requests to sell shares
func (h *GinHandlers) SellHandler() gin.HandlerFunc {
	return h.tradeHandler(DirectionSell, "Sold!")
}

func (h *GinHandlers) tradeHandler(direction, flash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.TradeRequest
		_ = c.ShouldBind(&req)

		if strings.TrimSpace(req.Symbol) == "" {
			response.BadRequest(c, response.ErrCodeMissingField, "must provide symbol")
			return
		}
		if strings.TrimSpace(req.Shares) == "" {
			response.BadRequest(c, response.ErrCodeMissingField, "must provide number of shares")
			return
		}

		shares, err := strconv.ParseInt(req.Shares, 10, 64)
		if err != nil || shares < 1 {
			response.BadRequest(c, response.ErrCodeInvalidFormat, "shares must be a positive whole number")
			return
		}

		userID := c.GetUint("user_id")

		var trade *types.TradeResponse
		if direction == DirectionBuy {
			trade, err = h.service.Buy(c.Request.Context(), userID, req.Symbol, shares)
		} else {
			trade, err = h.service.Sell(c.Request.Context(), userID, req.Symbol, shares)
		}
		if err != nil {
			apologize(c, err)
			return
		}

		response.Flash(c, flash, trade)
	}
}

// PortfolioHandler handles GET requests for the derived portfolio view
func (h *GinHandlers) PortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		portfolio, err := h.service.Portfolio(c.Request.Context(), userID)
		if err != nil {
			apologize(c, err)
			return
		}

		response.Success(c, portfolio)
	}
}

// HistoryHandler handles GET requests for the user's trade ledger
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		history, err := h.service.History(userID)
		if err != nil {
			apologize(c, err)
			return
		}

		response.Success(c, history)
	}
}

// QuoteHandler handles POST requests to validate a symbol and store it as
// the session's pending symbol
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.QuoteRequest
		_ = c.ShouldBind(&req)

		if strings.TrimSpace(req.Symbol) == "" {
			response.BadRequest(c, response.ErrCodeMissingField, "must provide symbol")
			return
		}

		sessionID := c.GetString("session_id")
		quote, err := h.service.Quote(c.Request.Context(), sessionID, req.Symbol)
		if err != nil {
			apologize(c, err)
			return
		}

		response.Success(c, quote)
	}
}

// PriceHandler handles GET requests to price the session's pending symbol
func (h *GinHandlers) PriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetString("session_id")

		quote, err := h.service.PendingPrice(c.Request.Context(), sessionID)
		if err != nil {
			apologize(c, err)
			return
		}

		response.Success(c, quote)
	}
}

// apologize maps domain errors onto apology responses. Anything unmapped
// falls through to the catch-all handler so no error escapes as a crash.
func apologize(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quotes.ErrUnknownSymbol):
		response.BadRequest(c, response.ErrCodeUnknownSymbol, "stock does not exist")
	case errors.Is(err, quotes.ErrUnavailable):
		response.BadRequest(c, response.ErrCodeUnknownSymbol, "quote lookup failed, try again")
	case errors.Is(err, ErrInsufficientFunds):
		response.BadRequest(c, response.ErrCodeInsufficientFunds, "not enough cash")
	case errors.Is(err, ErrInsufficientShares):
		response.BadRequest(c, response.ErrCodeInsufficientShares, "trying to sell more shares than owned")
	case errors.Is(err, ErrNoPendingQuote):
		response.BadRequest(c, response.ErrCodeMissingField, "no symbol quoted yet")
	default:
		response.Handle(c, nil, err)
	}
}
