package auth

import (
	"errors"

	"github.com/fintick/tradesim/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateUser(user *types.User) error {
	return d.db.Create(user).Error
}

func (d *Database) GetUserByUsername(username string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUserByID(userID uint) (*types.User, error) {
	var user types.User
	if err := d.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *Database) UpdatePassword(userID uint, hash string) error {
	return d.db.Model(&types.User{}).Where("id = ?", userID).Update("hash", hash).Error
}

func (d *Database) CreateSession(session *types.Session) error {
	return d.db.Create(session).Error
}

func (d *Database) GetSession(sessionID string) (*types.Session, error) {
	var session types.Session
	if err := d.db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (d *Database) DeleteSession(sessionID string) error {
	return d.db.Where("session_id = ?", sessionID).Delete(&types.Session{}).Error
}

// DeleteExpiredSessions drops sessions whose expiry has passed.
func (d *Database) DeleteExpiredSessions() error {
	return d.db.Where("expires_at < CURRENT_TIMESTAMP").Delete(&types.Session{}).Error
}
