package repository

import (
	"context"

	"github.com/eaglebank/identity-service/shared/models"
)

// AccountLookup is the slice of an account store the read side needs.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// AccountViewCache is keyed by account id and is satisfied by
// *sharedredis.ViewCache[models.AccountView].
type AccountViewCache interface {
	Get(ctx context.Context, id string) (*models.AccountView, bool)
	Set(ctx context.Context, id string, value *models.AccountView)
	Delete(ctx context.Context, id string)
}

// AccountReadRepository serves account views from the cache first, falling
// back to the store on a miss. A nil cache means every read hits the store.
type AccountReadRepository struct {
	store AccountLookup
	cache AccountViewCache
}

func NewAccountReadRepository(store AccountLookup, cache AccountViewCache) *AccountReadRepository {
	return &AccountReadRepository{store: store, cache: cache}
}

// GetByID returns the account view, warming the cache after a store read.
func (r *AccountReadRepository) GetByID(ctx context.Context, id string) (*models.AccountView, error) {
	if r.cache != nil {
		if view, ok := r.cache.Get(ctx, id); ok {
			return view, nil
		}
	}

	account, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := account.View()
	r.cacheView(ctx, view)
	return view, nil
}

func (r *AccountReadRepository) cacheView(ctx context.Context, view *models.AccountView) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, view.ID, view)
}

// InvalidateAccountView drops the cached view so the next GetByID reloads it
// from the store. Called by the command service after profile writes.
func (r *AccountReadRepository) InvalidateAccountView(ctx context.Context, accountID string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, accountID)
}
