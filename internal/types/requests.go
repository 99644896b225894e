package types

// Request bodies bind from JSON or form-encoded posts. Shares arrives as a
// string so the handlers can distinguish a missing field from a non-numeric
// value when mapping to an apology code.

type RegisterRequest struct {
	Username     string `form:"username" json:"username" binding:"required"`
	Password     string `form:"password" json:"password" binding:"required"`
	Confirmation string `form:"confirmation" json:"confirmation" binding:"required"`
}

type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type ResetPasswordRequest struct {
	Password     string `form:"password" json:"password" binding:"required"`
	Confirmation string `form:"confirmation" json:"confirmation" binding:"required"`
}

type TradeRequest struct {
	Symbol string `form:"symbol" json:"symbol"`
	Shares string `form:"shares" json:"shares"`
}

type QuoteRequest struct {
	Symbol string `form:"symbol" json:"symbol"`
}
