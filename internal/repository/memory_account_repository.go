package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/models"
)

// MemoryAccountRepository is an in-process account store used by tests and
// STORE_DRIVER=memory. It enforces the same uniqueness and single-use OTP
// rules as the database stores.
type MemoryAccountRepository struct {
	mu   sync.Mutex
	byID map[string]*models.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{byID: make(map[string]*models.Account)}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(account.Email, account.Mobile, account.ID); err != nil {
		return err
	}
	if _, ok := r.byID[account.ID]; ok {
		return fmt.Errorf("failed to create account: id %s already exists", account.ID)
	}
	cp := *account
	r.byID[account.ID] = &cp
	return nil
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findByEmail(email)
	if a == nil {
		return nil, apperr.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.byID {
		if id != excludeID && a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryAccountRepository) MobileTaken(ctx context.Context, mobile, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.byID {
		if id != excludeID && a.Mobile == mobile {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryAccountRepository) UpdateProfile(ctx context.Context, id, name, email, mobile string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if err := r.checkUnique(email, mobile, id); err != nil {
		return err
	}
	a.Name, a.Email, a.Mobile, a.UpdatedAt = name, email, mobile, at
	return nil
}

func (r *MemoryAccountRepository) SetOTP(ctx context.Context, id, otp string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	a.OTP, a.UpdatedAt = otp, at
	return nil
}

func (r *MemoryAccountRepository) ConsumeOTP(ctx context.Context, email, otp string, at time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findByEmail(email)
	if a == nil || a.OTP == "" || a.OTP != otp {
		return nil, apperr.ErrNotFound
	}
	a.OTP, a.UpdatedAt = "", at
	cp := *a
	return &cp, nil
}

func (r *MemoryAccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	a.PasswordHash, a.UpdatedAt = hash, at
	return nil
}

// Len returns the number of stored accounts.
func (r *MemoryAccountRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *MemoryAccountRepository) findByEmail(email string) *models.Account {
	for _, a := range r.byID {
		if a.Email == email {
			return a
		}
	}
	return nil
}

func (r *MemoryAccountRepository) checkUnique(email, mobile, excludeID string) error {
	for id, a := range r.byID {
		if id == excludeID {
			continue
		}
		if a.Email == email {
			return apperr.ErrDuplicateEmail
		}
		if a.Mobile == mobile {
			return apperr.ErrDuplicateMobile
		}
	}
	return nil
}
