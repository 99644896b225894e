package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an apology: a user-facing error with a stable code
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Apology codes
const (
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeInvalidFormat      = "INVALID_FORMAT"
	ErrCodeUnknownSymbol      = "UNKNOWN_SYMBOL"
	ErrCodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrCodeInsufficientShares = "INSUFFICIENT_SHARES"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodePasswordMismatch   = "PASSWORD_MISMATCH"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// Flash sends a successful response carrying a transient notification
// message alongside the data ("Bought!", "Sold!", ...)
func Flash(c *gin.Context, message string, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Apology sends an error response with the given status and apology code
func Apology(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, code, message string) {
	Apology(c, http.StatusBadRequest, code, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	Apology(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	Apology(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, code, message string) {
	Apology(c, http.StatusConflict, code, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	Apology(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Handle processes the error and returns appropriate response. Domain
// errors carry their own apology mapping in the handlers; this covers the
// storage-level fallthrough so no error escapes as an unhandled crash.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, ErrCodeUsernameTaken, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}
