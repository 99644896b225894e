package trading

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fintick/tradesim/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB

	// sqlite has no row-level locks, so concurrent trades for the same
	// user are serialized here instead
	userLocks sync.Map // map[uint]*sync.Mutex
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) lockUser(userID uint) *sync.Mutex {
	mu, _ := d.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SymbolPosition is a per-symbol net holding derived from the ledger.
type SymbolPosition struct {
	Symbol string
	Shares int64
}

// ExecuteTrade appends a ledger row and moves cash in one transaction,
// under the user's trade lock. The balance and position checks therefore
// commit atomically with the writes they guard. Returns the new ledger row
// and the user with the updated cash balance.
func (d *Database) ExecuteTrade(userID uint, direction, symbol string, shares int64, price decimal.Decimal) (*types.Transaction, *types.User, error) {
	mu := d.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	var (
		txn  *types.Transaction
		user types.User
	)

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		amount := price.Mul(decimal.NewFromInt(shares))

		signed := shares
		var cash decimal.Decimal
		switch direction {
		case DirectionBuy:
			if user.Cash.LessThan(amount) {
				return ErrInsufficientFunds
			}
			cash = user.Cash.Sub(amount)
		case DirectionSell:
			held, err := position(tx, userID, symbol)
			if err != nil {
				return err
			}
			if shares > held {
				return ErrInsufficientShares
			}
			signed = -shares
			cash = user.Cash.Add(amount)
		default:
			return fmt.Errorf("unknown trade direction %q", direction)
		}

		txn = &types.Transaction{
			TransactionID: "TXN_" + uuid.New().String(),
			UserID:        userID,
			Direction:     direction,
			Symbol:        symbol,
			Shares:        signed,
			Price:         price,
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}

		if err := tx.Model(&types.User{}).Where("id = ?", userID).Update("cash", cash).Error; err != nil {
			return err
		}
		user.Cash = cash

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return txn, &user, nil
}

func position(tx *gorm.DB, userID uint, symbol string) (int64, error) {
	var held int64
	err := tx.Model(&types.Transaction{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Select("COALESCE(SUM(shares), 0)").
		Scan(&held).Error
	return held, err
}

// Position returns the current net holding for one symbol.
func (d *Database) Position(userID uint, symbol string) (int64, error) {
	return position(d.db, userID, symbol)
}

// PositionsByUser sums the signed ledger per symbol for a user.
func (d *Database) PositionsByUser(userID uint) ([]SymbolPosition, error) {
	var positions []SymbolPosition
	err := d.db.Model(&types.Transaction{}).
		Select("symbol, SUM(shares) AS shares").
		Where("user_id = ?", userID).
		Group("symbol").
		Order("symbol").
		Scan(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// History returns the full ledger for a user, newest first.
func (d *Database) History(userID uint) ([]types.Transaction, error) {
	var txns []types.Transaction
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (d *Database) GetUser(userID uint) (*types.User, error) {
	var user types.User
	if err := d.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// RefreshQuoteCache overwrites the display-cache columns on a user's ledger
// rows for one symbol. Derived data only; nothing reads these back.
func (d *Database) RefreshQuoteCache(userID uint, symbol, lastPrice, currentValue string) error {
	return d.db.Model(&types.Transaction{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Updates(map[string]interface{}{
			"last_price":    lastPrice,
			"current_value": currentValue,
		}).Error
}

// SetPendingSymbol stores the quoted symbol on the session row so the price
// endpoint can resolve it for this session only.
func (d *Database) SetPendingSymbol(sessionID, symbol string) error {
	return d.db.Model(&types.Session{}).
		Where("session_id = ?", sessionID).
		Update("pending_symbol", symbol).Error
}

func (d *Database) GetPendingSymbol(sessionID string) (string, error) {
	var session types.Session
	if err := d.db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return session.PendingSymbol, nil
}
