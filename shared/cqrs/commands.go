package cqrs

// Field rules mirror the accounts table: every text column is at most 30 chars.

type RegisterCommand struct {
	Name     string `json:"name" validate:"required,max=30"`
	Email    string `json:"email" validate:"required,email,max=30"`
	Mobile   string `json:"mobile" validate:"required,max=30"`
	Password string `json:"password" validate:"required,max=30"`
}

type UpdateProfileCommand struct {
	AccountID string `json:"-" validate:"required"`
	Name      string `json:"name" validate:"required,max=30"`
	Email     string `json:"email" validate:"required,email,max=30"`
	Mobile    string `json:"mobile" validate:"required,max=30"`
}

// LogoutCommand revokes every token issued to the account.
type LogoutCommand struct {
	AccountID string `json:"-" validate:"required"`
}

type RequestOtpCommand struct {
	Email string `json:"email" validate:"required,email,max=30"`
}

type VerifyOtpCommand struct {
	Email string `json:"email" validate:"required,email,max=30"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// ResetPasswordCommand replaces the credential of an already authenticated account.
type ResetPasswordCommand struct {
	AccountID string `json:"-" validate:"required"`
	Password  string `json:"password" validate:"required,min=6,max=30"`
}

type LoginCommand struct {
	Email    string `json:"email" validate:"required,email,max=30"`
	Password string `json:"password" validate:"required,max=30"`
}
