package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/fintick/tradesim/internal/types"
	"github.com/fintick/tradesim/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// TokenResponse represents the session token handed to a client
type TokenResponse struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims carried by a session token. The token
// signature proves origin; the session row it names makes it revocable.
type Claims struct {
	jwt.RegisteredClaims
	UserID    uint   `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Service handles registration, credential verification, and sessions
type Service struct {
	db           *Database
	jwtSecret    []byte
	sessionTTL   time.Duration
	startingCash decimal.Decimal

	// Compared against on unknown-username logins so both failure paths
	// cost one bcrypt verification.
	timingPad []byte
}

// NewService creates a new authentication service. New users are credited
// startingCash on registration.
func NewService(gormDB *gorm.DB, jwtSecret string, sessionTTL time.Duration, startingCash decimal.Decimal) *Service {
	pad, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), bcrypt.DefaultCost)
	if err != nil {
		// GenerateFromPassword only fails on an invalid cost
		panic(err)
	}

	return &Service{
		db:           NewDatabase(gormDB),
		jwtSecret:    []byte(jwtSecret),
		sessionTTL:   sessionTTL,
		startingCash: startingCash,
		timingPad:    pad,
	}
}

// Register creates a user with a bcrypt password hash and the starting cash
// grant, then logs the user in
func (s *Service) Register(username, password string) (*types.User, *TokenResponse, error) {
	existing, err := s.db.GetUserByUsername(username)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user := &types.User{
		Username: username,
		Hash:     string(hash),
		Cash:     s.startingCash,
	}
	if err := s.db.CreateUser(user); err != nil {
		// The unique index backstops the existence check above
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrUsernameTaken
		}
		return nil, nil, err
	}

	token, err := s.createSession(user.ID)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("username", username).Uint("user_id", user.ID).Msg("user registered")

	return user, token, nil
}

// Login verifies credentials and starts a session. Unknown usernames and
// wrong passwords take the same path: one hash comparison, one error.
func (s *Service) Login(username, password string) (*TokenResponse, error) {
	user, err := s.db.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.timingPad, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.createSession(user.ID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("username", username).Uint("user_id", user.ID).Msg("user logged in")

	return token, nil
}

// Logout destroys the session. The signed token outlives this but no longer
// names a live session, so validation fails from here on.
func (s *Service) Logout(sessionID string) error {
	return s.db.DeleteSession(sessionID)
}

// ResetPassword replaces the password hash for an authenticated user
func (s *Service) ResetPassword(userID uint, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.db.UpdatePassword(userID, string(hash)); err != nil {
		return err
	}

	log.Info().Uint("user_id", userID).Msg("password updated")
	return nil
}

// ValidateSessionToken verifies the token signature and resolves the session
// row it names. Returns the session's user and session ids.
func (s *Service) ValidateSessionToken(tokenString string) (uint, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return 0, "", ErrInvalidSession
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, "", ErrInvalidSession
	}

	session, err := s.db.GetSession(claims.SessionID)
	if err != nil {
		return 0, "", err
	}
	if session == nil || session.UserID != claims.UserID || session.ExpiresAt.Before(time.Now()) {
		return 0, "", ErrInvalidSession
	}

	return session.UserID, session.SessionID, nil
}

// GetDB exposes the underlying database for wiring
func (s *Service) GetDB() *Database {
	return s.db
}

func (s *Service) createSession(userID uint) (*TokenResponse, error) {
	expiration := time.Now().Add(s.sessionTTL)

	session := &types.Session{
		SessionID: uuid.New().String(),
		UserID:    userID,
		ExpiresAt: expiration,
	}
	if err := s.db.CreateSession(session); err != nil {
		return nil, err
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID:    userID,
		SessionID: session.SessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests to create a new user account.
// Requires username, password, and a matching confirmation.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.RegisterRequest
		if err := c.ShouldBind(&req); err != nil {
			response.BadRequest(c, response.ErrCodeMissingField, "must provide username, password, and confirmation")
			return
		}

		if req.Password != req.Confirmation {
			response.BadRequest(c, response.ErrCodePasswordMismatch, "passwords don't match")
			return
		}

		user, token, err := h.service.Register(req.Username, req.Password)
		if errors.Is(err, ErrUsernameTaken) {
			response.Conflict(c, response.ErrCodeUsernameTaken, "username already taken, try a different one")
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		setSessionCookie(c, token)
		response.Flash(c, "Registered!", gin.H{
			"username":   user.Username,
			"cash":       user.Cash,
			"token":      token.Token,
			"expiration": token.Expiration,
		})
	}
}

// LoginHandler handles POST requests to verify credentials and start a
// session
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.LoginRequest
		if err := c.ShouldBind(&req); err != nil {
			response.BadRequest(c, response.ErrCodeMissingField, "must provide username and password")
			return
		}

		token, err := h.service.Login(req.Username, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Apology(c, http.StatusUnauthorized, response.ErrCodeInvalidCredentials, "invalid username and/or password")
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		setSessionCookie(c, token)
		response.Success(c, token)
	}
}

// LogoutHandler handles POST requests to destroy the current session
func (h *GinHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetString("session_id")
		if err := h.service.Logout(sessionID); err != nil {
			response.Handle(c, nil, err)
			return
		}

		c.SetCookie("session", "", -1, "/", "", false, true)
		response.Flash(c, "Logged out", nil)
	}
}

// ResetPasswordHandler handles POST requests to set a new password.
// Requires an authenticated session and a matching confirmation.
func (h *GinHandlers) ResetPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ResetPasswordRequest
		if err := c.ShouldBind(&req); err != nil {
			response.BadRequest(c, response.ErrCodeMissingField, "must provide password and confirmation")
			return
		}

		if req.Password != req.Confirmation {
			response.BadRequest(c, response.ErrCodePasswordMismatch, "passwords don't match")
			return
		}

		userID := c.GetUint("user_id")
		if err := h.service.ResetPassword(userID, req.Password); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Flash(c, "Password updated", nil)
	}
}

func setSessionCookie(c *gin.Context, token *TokenResponse) {
	maxAge := int(time.Until(token.Expiration).Seconds())
	c.SetCookie("session", token.Token, maxAge, "/", "", false, true)
}
