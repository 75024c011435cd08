package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eaglebank/identity-service/internal/repository"
	"github.com/eaglebank/identity-service/internal/token"
	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/cqrs"
	"github.com/eaglebank/identity-service/shared/events"
	"github.com/eaglebank/identity-service/shared/models"
	"github.com/eaglebank/identity-service/shared/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentOTP struct {
	email string
	otp   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (n *fakeNotifier) SendOTP(_ context.Context, email, otp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentOTP{email: email, otp: otp})
	return nil
}

type recordingPublisher struct {
	types []string
	data  []any
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, data any) error {
	p.types = append(p.types, eventType)
	p.data = append(p.data, data)
	return p.err
}

type recordingViews struct {
	invalidated []string
}

func (v *recordingViews) InvalidateAccountView(_ context.Context, id string) {
	v.invalidated = append(v.invalidated, id)
}

type fixture struct {
	svc       *AccountCommandService
	store     *repository.MemoryAccountRepository
	issuer    *token.Issuer
	notifier  *fakeNotifier
	publisher *recordingPublisher
	views     *recordingViews
	hasher    *utils.Hasher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	issuer, err := token.NewIssuer([]byte("0123456789abcdef"), "identity-service", time.Hour, token.NewMemoryRegistry())
	require.NoError(t, err)

	f := &fixture{
		store:     repository.NewMemoryAccountRepository(),
		issuer:    issuer,
		notifier:  &fakeNotifier{},
		publisher: &recordingPublisher{},
		views:     &recordingViews{},
		hasher:    utils.NewHasher(4),
	}
	opts = append([]Option{WithPublisher(f.publisher)}, opts...)
	f.svc = NewAccountCommandService(f.store, f.views, f.issuer, f.hasher, f.notifier, opts...)
	return f
}

func (f *fixture) register(t *testing.T, name, email, mobile, password string) *models.Account {
	t.Helper()
	acc, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{
		Name: name, Email: email, Mobile: mobile, Password: password,
	})
	require.NoError(t, err)
	return acc
}

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	return fields
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)

	acc := f.register(t, "Alice", " Alice@X.com ", "0712345678", "secret1")

	assert.True(t, utils.ValidateAccountID(acc.ID))
	assert.Equal(t, "alice@x.com", acc.Email)
	assert.NotEqual(t, "secret1", acc.PasswordHash)
	assert.True(t, f.hasher.CheckPassword("secret1", acc.PasswordHash))
	assert.Empty(t, acc.OTP)
	assert.Equal(t, []string{events.AccountRegistered}, f.publisher.types)
}

func TestRegister_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		cmd    cqrs.RegisterCommand
		fields []string
	}{
		{
			name:   "all missing",
			cmd:    cqrs.RegisterCommand{},
			fields: []string{"name", "email", "mobile", "password"},
		},
		{
			name:   "bad email",
			cmd:    cqrs.RegisterCommand{Name: "A", Email: "not-an-email", Mobile: "1", Password: "p"},
			fields: []string{"email"},
		},
		{
			name:   "name too long",
			cmd:    cqrs.RegisterCommand{Name: "abcdefghijabcdefghijabcdefghijk", Email: "a@x.com", Mobile: "1", Password: "p"},
			fields: []string{"name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Register(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.fields, validationFields(t, err))
			assert.Equal(t, 0, f.store.Len())
			assert.Empty(t, f.publisher.types)
		})
	}
}

func TestRegister_DuplicateEmailOrMobile(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Alice", "a@x.com", "1", "secret1")

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{
		Name: "Bob", Email: "A@x.com", Mobile: "2", Password: "secret2",
	})
	assert.Equal(t, []string{"email"}, validationFields(t, err))

	_, err = f.svc.Register(context.Background(), cqrs.RegisterCommand{
		Name: "Bob", Email: "b@x.com", Mobile: "1", Password: "secret2",
	})
	assert.Equal(t, []string{"mobile"}, validationFields(t, err))

	_, err = f.svc.Register(context.Background(), cqrs.RegisterCommand{
		Name: "Bob", Email: "a@x.com", Mobile: "1", Password: "secret2",
	})
	assert.Equal(t, []string{"email", "mobile"}, validationFields(t, err))

	assert.Equal(t, 1, f.store.Len())
}

// racingStore lets the pre-check pass and then fails the insert on the index.
type racingStore struct {
	*repository.MemoryAccountRepository
}

func (racingStore) Create(context.Context, *models.Account) error {
	return apperr.ErrDuplicateMobile
}

func TestRegister_StoreDuplicateMapsToValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewAccountCommandService(racingStore{f.store}, f.views, f.issuer, f.hasher, f.notifier)

	_, err := svc.Register(context.Background(), cqrs.RegisterCommand{
		Name: "Alice", Email: "a@x.com", Mobile: "1", Password: "secret1",
	})
	assert.Equal(t, []string{"mobile"}, validationFields(t, err))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	f.register(t, "Bob", "b@x.com", "2", "secret2")
	ctx := context.Background()

	t.Run("keeps own email and mobile", func(t *testing.T) {
		view, err := f.svc.UpdateProfile(ctx, cqrs.UpdateProfileCommand{
			AccountID: alice.ID, Name: "Alice Smith", Email: "a@x.com", Mobile: "1",
		})
		require.NoError(t, err)
		assert.Equal(t, "Alice Smith", view.Name)
		assert.Equal(t, []string{alice.ID}, f.views.invalidated)
	})

	t.Run("rejects another account's email", func(t *testing.T) {
		_, err := f.svc.UpdateProfile(ctx, cqrs.UpdateProfileCommand{
			AccountID: alice.ID, Name: "Alice", Email: "b@x.com", Mobile: "1",
		})
		assert.Equal(t, []string{"email"}, validationFields(t, err))

		stored, err := f.store.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", stored.Email)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.svc.UpdateProfile(ctx, cqrs.UpdateProfileCommand{
			AccountID: "acc-missing", Name: "X", Email: "x@x.com", Mobile: "9",
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

// syncViewCache is a goroutine-safe stand-in for the Redis view cache.
type syncViewCache struct {
	mu    sync.Mutex
	views map[string]*models.AccountView
}

func (c *syncViewCache) Get(_ context.Context, id string) (*models.AccountView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	return v, ok
}

func (c *syncViewCache) Set(_ context.Context, id string, value *models.AccountView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[id] = value
}

func (c *syncViewCache) Delete(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
}

// pausingStore holds the first GetByID after it has read the account until
// release is closed.
type pausingStore struct {
	*repository.MemoryAccountRepository
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (s *pausingStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.MemoryAccountRepository.GetByID(ctx, id)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.reached)
		<-s.release
	}
	return acc, err
}

func TestUpdateProfile_OverlappingUpdatesLeaveNoStaleView(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()

	reads := repository.NewAccountReadRepository(f.store, &syncViewCache{views: make(map[string]*models.AccountView)})
	_, err := reads.GetByID(ctx, alice.ID)
	require.NoError(t, err)

	store := &pausingStore{
		MemoryAccountRepository: f.store,
		reached:                 make(chan struct{}),
		release:                 make(chan struct{}),
	}
	svc := NewAccountCommandService(store, reads, f.issuer, f.hasher, f.notifier)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.UpdateProfile(ctx, cqrs.UpdateProfileCommand{
			AccountID: alice.ID, Name: "First", Email: "a@x.com", Mobile: "1",
		})
		firstDone <- err
	}()
	<-store.reached

	_, err = svc.UpdateProfile(ctx, cqrs.UpdateProfileCommand{
		AccountID: alice.ID, Name: "Second", Email: "a@x.com", Mobile: "1",
	})
	require.NoError(t, err)

	close(store.release)
	require.NoError(t, <-firstDone)

	view, err := reads.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second", view.Name)
}

func TestUpdateProfile_LeavesTokensAlone(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()

	tok, err := f.issuer.Issue(ctx, alice.ID, alice.Email)
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, cqrs.UpdateProfileCommand{
		AccountID: alice.ID, Name: "Alice", Email: "new@x.com", Mobile: "1",
	})
	require.NoError(t, err)

	_, err = f.issuer.Resolve(ctx, tok)
	assert.NoError(t, err)
}

func TestLogout_RevokesTokensAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()

	tok, err := f.issuer.Issue(ctx, alice.ID, alice.Email)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, cqrs.LogoutCommand{AccountID: alice.ID}))
	_, err = f.issuer.Resolve(ctx, tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	assert.NoError(t, f.svc.Logout(ctx, cqrs.LogoutCommand{AccountID: alice.ID}))
}

func TestRequestOtp(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and sends the code", func(t *testing.T) {
		f := newFixture(t, WithOTPGenerator(func() (string, error) { return "123456", nil }))
		alice := f.register(t, "Alice", "a@x.com", "1", "secret1")

		require.NoError(t, f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "A@x.com"}))

		stored, err := f.store.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "123456", stored.OTP)
		assert.Equal(t, []sentOTP{{email: "a@x.com", otp: "123456"}}, f.notifier.sent)
		assert.Contains(t, f.publisher.types, events.OtpRequested)
	})

	t.Run("unknown email sends nothing", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "nobody@x.com"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Empty(t, f.notifier.sent)
	})

	t.Run("delivery failure is reported", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Alice", "a@x.com", "1", "secret1")
		f.notifier.err = errors.New("smtp down")

		err := f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "a@x.com"})
		assert.ErrorIs(t, err, apperr.ErrNotificationFailed)
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "nope"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestRequestOtp_OverwritesPreviousCode(t *testing.T) {
	codes := []string{"111111", "222222"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	f := newFixture(t, WithOTPGenerator(gen))
	f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "a@x.com"}))
	require.NoError(t, f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "a@x.com"}))

	_, err := f.svc.VerifyOtp(ctx, cqrs.VerifyOtpCommand{Email: "a@x.com", OTP: "111111"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.VerifyOtp(ctx, cqrs.VerifyOtpCommand{Email: "a@x.com", OTP: "222222"})
	assert.NoError(t, err)
}

func TestVerifyOtp_SingleUse(t *testing.T) {
	f := newFixture(t, WithOTPGenerator(func() (string, error) { return "654321", nil }))
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()
	require.NoError(t, f.svc.RequestOtp(ctx, cqrs.RequestOtpCommand{Email: "a@x.com"}))

	tok, err := f.svc.VerifyOtp(ctx, cqrs.VerifyOtpCommand{Email: "a@x.com", OTP: "654321"})
	require.NoError(t, err)
	principal, err := f.issuer.Resolve(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, principal.AccountID)

	stored, err := f.store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OTP)

	_, err = f.svc.VerifyOtp(ctx, cqrs.VerifyOtpCommand{Email: "a@x.com", OTP: "654321"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyOtp_RejectsMalformedCode(t *testing.T) {
	f := newFixture(t)
	for _, otp := range []string{"", "12345", "1234567", "12a456"} {
		_, err := f.svc.VerifyOtp(context.Background(), cqrs.VerifyOtpCommand{Email: "a@x.com", OTP: otp})
		assert.ErrorIs(t, err, apperr.ErrValidation, "otp %q", otp)
	}
}

func TestVerifyOtp_NoOutstandingCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Alice", "a@x.com", "1", "secret1")

	_, err := f.svc.VerifyOtp(context.Background(), cqrs.VerifyOtpCommand{Email: "a@x.com", OTP: "123456"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()
	tok, err := f.issuer.Issue(ctx, alice.ID, alice.Email)
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, cqrs.ResetPasswordCommand{AccountID: alice.ID, Password: "short"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, f.svc.ResetPassword(ctx, cqrs.ResetPasswordCommand{AccountID: alice.ID, Password: "newsecret"}))

	stored, err := f.store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, f.hasher.CheckPassword("secret1", stored.PasswordHash))
	assert.True(t, f.hasher.CheckPassword("newsecret", stored.PasswordHash))

	_, err = f.issuer.Resolve(ctx, tok)
	assert.NoError(t, err, "tokens survive a reset by default")
}

func TestResetPassword_RevokesWhenConfigured(t *testing.T) {
	f := newFixture(t, WithRevokeOnPasswordReset(true))
	alice := f.register(t, "Alice", "a@x.com", "1", "secret1")
	ctx := context.Background()
	tok, err := f.issuer.Issue(ctx, alice.ID, alice.Email)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, cqrs.ResetPasswordCommand{AccountID: alice.ID, Password: "newsecret"}))

	_, err = f.issuer.Resolve(ctx, tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPublishFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{
		Name: "Alice", Email: "a@x.com", Mobile: "1", Password: "secret1",
	})
	assert.NoError(t, err)
}

func TestEventsCarryNoSecrets(t *testing.T) {
	f := newFixture(t, WithOTPGenerator(func() (string, error) { return "123456", nil }))
	f.register(t, "Alice", "a@x.com", "1", "secret1")
	require.NoError(t, f.svc.RequestOtp(context.Background(), cqrs.RequestOtpCommand{Email: "a@x.com"}))

	for _, d := range f.publisher.data {
		ev, ok := d.(events.AccountEvent)
		require.True(t, ok)
		assert.NotContains(t, []string{ev.Email, ev.Name, ev.Mobile}, "123456")
		assert.NotContains(t, []string{ev.Email, ev.Name, ev.Mobile}, "secret1")
	}
}
