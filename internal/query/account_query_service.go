package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/cqrs"
	"github.com/eaglebank/identity-service/shared/models"
	"github.com/eaglebank/identity-service/shared/utils"
	"github.com/eaglebank/identity-service/shared/validation"
)

// ErrInvalidCredentials is returned by Login for an unknown email and for a
// wrong password alike.
var ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthorized)

type AccountReader interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type AccountViewReader interface {
	GetByID(ctx context.Context, id string) (*models.AccountView, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, accountID, email string) (string, error)
}

type PasswordChecker interface {
	CheckPassword(password, hash string) bool
}

// AccountQueryService answers reads: credential checks against the store and
// profile views from the cached read model.
type AccountQueryService struct {
	accounts AccountReader
	views    AccountViewReader
	tokens   TokenIssuer
	hasher   PasswordChecker
}

func NewAccountQueryService(accounts AccountReader, views AccountViewReader, tokens TokenIssuer, hasher PasswordChecker) *AccountQueryService {
	return &AccountQueryService{
		accounts: accounts,
		views:    views,
		tokens:   tokens,
		hasher:   hasher,
	}
}

// Login checks the credentials and mints a token for the account.
func (s *AccountQueryService) Login(ctx context.Context, q cqrs.LoginCommand) (string, error) {
	q.Email = utils.NormalizeEmail(q.Email)
	if verr := validation.Struct(q); verr != nil {
		return "", verr
	}

	account, err := s.accounts.GetByEmail(ctx, q.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !s.hasher.CheckPassword(q.Password, account.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(ctx, account.ID, account.Email)
}

// GetProfile returns the caller's own account.
func (s *AccountQueryService) GetProfile(ctx context.Context, q cqrs.GetProfileQuery) (*models.AccountView, error) {
	if verr := validation.Struct(q); verr != nil {
		return nil, verr
	}
	return s.views.GetByID(ctx, q.AccountID)
}
