package models

import "time"

// AccountView is the read-optimised projection of an account, safe to return
// to the caller and to cache.
type AccountView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	CreatedAt time.Time `json:"createdTimestamp"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}

// View projects the write model onto the read model.
func (a *Account) View() *AccountView {
	return &AccountView{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Mobile:    a.Mobile,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
