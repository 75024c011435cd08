package models

import "time"

// Account is the write model. PasswordHash and OTP never leave the service.
// An empty OTP means no code is outstanding.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	PasswordHash string    `json:"-"`
	OTP          string    `json:"-"`
	CreatedAt    time.Time `json:"createdTimestamp"`
	UpdatedAt    time.Time `json:"updatedTimestamp"`
}

// Principal is the authenticated caller, resolved from a bearer token once per
// request and passed explicitly into every authenticated operation.
type Principal struct {
	AccountID string
	Email     string
	TokenID   string
}
