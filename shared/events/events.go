package events

import "time"

// Event types
const (
	AccountRegistered = "account.registered"
	AccountUpdated    = "account.updated"
	AccountLoggedOut  = "account.logged_out"
	OtpRequested      = "account.otp_requested"
	OtpVerified       = "account.otp_verified"
	PasswordReset     = "account.password_reset"
)

// Stream names
const (
	AccountEventsStream = "account.events"
)

// Event is the envelope written to a stream. ID is the stream entry ID, filled
// in on the consumer side only.
type Event struct {
	ID        string    `json:"-"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// AccountEvent is the payload of every account.* event. Secrets (passwords,
// hashes, OTP codes, tokens) are never part of it.
type AccountEvent struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
}
