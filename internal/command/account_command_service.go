package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eaglebank/identity-service/internal/notifier"
	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/cqrs"
	"github.com/eaglebank/identity-service/shared/events"
	"github.com/eaglebank/identity-service/shared/models"
	"github.com/eaglebank/identity-service/shared/utils"
	"github.com/eaglebank/identity-service/shared/validation"
)

// AccountStore is the write side of the account store.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	MobileTaken(ctx context.Context, mobile, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, id, name, email, mobile string, at time.Time) error
	SetOTP(ctx context.Context, id, otp string, at time.Time) error
	ConsumeOTP(ctx context.Context, email, otp string, at time.Time) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
}

// AccountViews keeps the read model in step with writes. Cached views are
// dropped after a write and rebuilt from the store on the next read.
type AccountViews interface {
	InvalidateAccountView(ctx context.Context, accountID string)
}

type TokenService interface {
	Issue(ctx context.Context, accountID, email string) (string, error)
	RevokeAll(ctx context.Context, accountID string) error
}

type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// EventPublisher writes to the account.events stream.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Option customises an AccountCommandService.
type Option func(*AccountCommandService)

// WithRevokeOnPasswordReset makes ResetPassword revoke every live token of the
// account after the new hash is stored.
func WithRevokeOnPasswordReset(revoke bool) Option {
	return func(s *AccountCommandService) { s.revokeOnReset = revoke }
}

// WithOTPGenerator replaces utils.GenerateOTP.
func WithOTPGenerator(gen func() (string, error)) Option {
	return func(s *AccountCommandService) { s.generateOTP = gen }
}

// WithPublisher enables domain events.
func WithPublisher(p EventPublisher) Option {
	return func(s *AccountCommandService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *AccountCommandService) { s.now = now }
}

// AccountCommandService owns every account mutation. Each operation validates
// its command before touching the store and performs no write on failure.
type AccountCommandService struct {
	store     AccountStore
	views     AccountViews
	tokens    TokenService
	hasher    PasswordHasher
	notifier  notifier.Notifier
	publisher EventPublisher

	revokeOnReset bool
	generateOTP   func() (string, error)
	now           func() time.Time
}

func NewAccountCommandService(
	store AccountStore,
	views AccountViews,
	tokens TokenService,
	hasher PasswordHasher,
	n notifier.Notifier,
	opts ...Option,
) *AccountCommandService {
	s := &AccountCommandService{
		store:       store,
		views:       views,
		tokens:      tokens,
		hasher:      hasher,
		notifier:    n,
		generateOTP: utils.GenerateOTP,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AccountCommandService) Register(ctx context.Context, cmd cqrs.RegisterCommand) (*models.Account, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Email = utils.NormalizeEmail(cmd.Email)
	cmd.Mobile = strings.TrimSpace(cmd.Mobile)
	if verr := validation.Struct(cmd); verr != nil {
		return nil, verr
	}
	if err := s.checkUnique(ctx, cmd.Email, cmd.Mobile, ""); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := &models.Account{
		ID:           utils.GenerateID("acc"),
		Name:         cmd.Name,
		Email:        cmd.Email,
		Mobile:       cmd.Mobile,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, duplicateToValidation(err)
	}

	slog.InfoContext(ctx, "account registered", "account_id", account.ID)
	s.publish(ctx, events.AccountRegistered, events.AccountEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Mobile:    account.Mobile,
	})
	return account, nil
}

func (s *AccountCommandService) UpdateProfile(ctx context.Context, cmd cqrs.UpdateProfileCommand) (*models.AccountView, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Email = utils.NormalizeEmail(cmd.Email)
	cmd.Mobile = strings.TrimSpace(cmd.Mobile)
	if verr := validation.Struct(cmd); verr != nil {
		return nil, verr
	}
	if err := s.checkUnique(ctx, cmd.Email, cmd.Mobile, cmd.AccountID); err != nil {
		return nil, err
	}

	if err := s.store.UpdateProfile(ctx, cmd.AccountID, cmd.Name, cmd.Email, cmd.Mobile, s.now()); err != nil {
		return nil, duplicateToValidation(err)
	}
	s.views.InvalidateAccountView(ctx, cmd.AccountID)

	account, err := s.store.GetByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	view := account.View()

	s.publish(ctx, events.AccountUpdated, events.AccountEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Mobile:    account.Mobile,
	})
	return view, nil
}

// Logout revokes every token of the account. Calling it twice is harmless.
func (s *AccountCommandService) Logout(ctx context.Context, cmd cqrs.LogoutCommand) error {
	if verr := validation.Struct(cmd); verr != nil {
		return verr
	}
	if err := s.tokens.RevokeAll(ctx, cmd.AccountID); err != nil {
		return err
	}
	s.publish(ctx, events.AccountLoggedOut, events.AccountEvent{AccountID: cmd.AccountID})
	return nil
}

// RequestOtp stores a fresh code on the account and mails it. An unknown email
// yields apperr.ErrNotFound and nothing is sent.
func (s *AccountCommandService) RequestOtp(ctx context.Context, cmd cqrs.RequestOtpCommand) error {
	cmd.Email = utils.NormalizeEmail(cmd.Email)
	if verr := validation.Struct(cmd); verr != nil {
		return verr
	}

	account, err := s.store.GetByEmail(ctx, cmd.Email)
	if err != nil {
		return err
	}

	otp, err := s.generateOTP()
	if err != nil {
		return err
	}
	if err := s.store.SetOTP(ctx, account.ID, otp, s.now()); err != nil {
		return err
	}

	if err := s.notifier.SendOTP(ctx, account.Email, otp); err != nil {
		slog.ErrorContext(ctx, "otp delivery failed", "account_id", account.ID, "error", err)
		return fmt.Errorf("%w: %v", apperr.ErrNotificationFailed, err)
	}

	s.publish(ctx, events.OtpRequested, events.AccountEvent{AccountID: account.ID, Email: account.Email})
	return nil
}

// VerifyOtp consumes the outstanding code and mints a token. A code can only
// be consumed once.
func (s *AccountCommandService) VerifyOtp(ctx context.Context, cmd cqrs.VerifyOtpCommand) (string, error) {
	cmd.Email = utils.NormalizeEmail(cmd.Email)
	if verr := validation.Struct(cmd); verr != nil {
		return "", verr
	}

	account, err := s.store.ConsumeOTP(ctx, cmd.Email, cmd.OTP, s.now())
	if errors.Is(err, apperr.ErrNotFound) {
		return "", fmt.Errorf("otp mismatch: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(ctx, account.ID, account.Email)
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.OtpVerified, events.AccountEvent{AccountID: account.ID, Email: account.Email})
	return token, nil
}

func (s *AccountCommandService) ResetPassword(ctx context.Context, cmd cqrs.ResetPasswordCommand) error {
	if verr := validation.Struct(cmd); verr != nil {
		return verr
	}

	hash, err := s.hasher.HashPassword(cmd.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, cmd.AccountID, hash, s.now()); err != nil {
		return err
	}

	if s.revokeOnReset {
		if err := s.tokens.RevokeAll(ctx, cmd.AccountID); err != nil {
			return err
		}
	}

	s.publish(ctx, events.PasswordReset, events.AccountEvent{AccountID: cmd.AccountID})
	return nil
}

// checkUnique reports every clashing field at once, ignoring excludeID's own record.
func (s *AccountCommandService) checkUnique(ctx context.Context, email, mobile, excludeID string) error {
	var verr *apperr.ValidationError

	taken, err := s.store.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return err
	}
	if taken {
		verr = verr.Append("email", "unique", "The email has already been taken.")
	}

	taken, err = s.store.MobileTaken(ctx, mobile, excludeID)
	if err != nil {
		return err
	}
	if taken {
		verr = verr.Append("mobile", "unique", "The mobile has already been taken.")
	}

	if verr != nil {
		return verr
	}
	return nil
}

// duplicateToValidation covers the race where a unique index fires after the
// pre-check passed.
func duplicateToValidation(err error) error {
	switch {
	case errors.Is(err, apperr.ErrDuplicateEmail):
		return apperr.NewValidationError("email", "unique", "The email has already been taken.")
	case errors.Is(err, apperr.ErrDuplicateMobile):
		return apperr.NewValidationError("mobile", "unique", "The mobile has already been taken.")
	default:
		return err
	}
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data events.AccountEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "type", eventType, "error", err)
	}
}
