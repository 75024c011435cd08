// Package token mints and resolves the bearer tokens handed out at login and
// OTP verification. Tokens are HS256 JWTs whose IDs are tracked per account in
// a Registry, which is what makes logout (revoke all) possible.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/models"
	"github.com/eaglebank/identity-service/shared/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC secret NewIssuer accepts.
const MinSecretLength = 16

// ErrInvalidToken is returned for malformed, expired, forged or revoked tokens.
// It wraps apperr.ErrUnauthorized.
var ErrInvalidToken = fmt.Errorf("invalid token: %w", apperr.ErrUnauthorized)

// Claims is the JWT payload.
type Claims struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Registry remembers which token IDs are live for an account.
type Registry interface {
	Add(ctx context.Context, accountID, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, accountID, tokenID string) (bool, error)
	RemoveAll(ctx context.Context, accountID string) error
}

type Issuer struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	registry Registry
	now      func() time.Time
}

func NewIssuer(secret []byte, issuer string, ttl time.Duration, registry Registry) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Issuer{
		secret:   secret,
		issuer:   issuer,
		ttl:      ttl,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue mints a new token for the account and records it as live.
func (i *Issuer) Issue(ctx context.Context, accountID, email string) (string, error) {
	now := i.now()
	tokenID := uuid.NewString()
	claims := Claims{
		AccountID: accountID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   accountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	if err := i.registry.Add(ctx, accountID, tokenID, i.ttl); err != nil {
		return "", fmt.Errorf("failed to register token: %w", err)
	}
	return signed, nil
}

// Resolve validates the token and checks it has not been revoked. The subject
// must look like an account ID.
func (i *Issuer) Resolve(ctx context.Context, raw string) (*models.Principal, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid || claims.ID == "" || !utils.ValidateAccountID(claims.AccountID) {
		return nil, ErrInvalidToken
	}

	live, err := i.registry.Contains(ctx, claims.AccountID, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if !live {
		return nil, ErrInvalidToken
	}

	return &models.Principal{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		TokenID:   claims.ID,
	}, nil
}

// RevokeAll invalidates every token issued to the account. Revoking an
// account with no live tokens is not an error.
func (i *Issuer) RevokeAll(ctx context.Context, accountID string) error {
	if err := i.registry.RemoveAll(ctx, accountID); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return nil
}
