package cqrs

// GetProfileQuery fetches the caller's own account.
type GetProfileQuery struct {
	AccountID string `validate:"required"`
}
