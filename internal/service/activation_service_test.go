package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
)

// memoryStore is an in-memory stand-in for the user/otp/session tables. It
// reproduces the store's unique-violation behaviour for external ids.
type memoryStore struct {
	users    map[int64]*models.User
	otps     map[int64]*models.OTPCode
	sessions map[string]*models.Session

	nextUser    int64
	nextOTP     int64
	nextSession int64

	createErr   error
	activateErr error
	findOTPErr  error

	lastLoginUpdated bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    make(map[int64]*models.User),
		otps:     make(map[int64]*models.OTPCode),
		sessions: make(map[string]*models.Session),
	}
}

func (m *memoryStore) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.users {
		if existing.ExternalID == user.ExternalID {
			return &pq.Error{Code: "23505"}
		}
	}
	m.nextUser++
	user.ID = m.nextUser
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return nil
}

func (m *memoryStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *memoryStore) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	for _, user := range m.users {
		if user.ExternalID == externalID {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryStore) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range m.users {
		if user.IsActive && user.Email != nil && *user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryStore) Activate(ctx context.Context, id int64, email, passwordHash string, activatedAt time.Time) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	user, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Email = &email
	user.PasswordHash = &passwordHash
	user.IsActive = true
	user.ActivatedAt = &activatedAt
	return nil
}

func (m *memoryStore) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	m.lastLoginUpdated = true
	if user, ok := m.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (m *memoryStore) CreateOTP(ctx context.Context, otp *models.OTPCode) error {
	m.nextOTP++
	otp.ID = m.nextOTP
	otp.CreatedAt = time.Now().UTC()
	m.otps[otp.ID] = otp
	return nil
}

func (m *memoryStore) FindOTP(ctx context.Context, userID int64, email, code string) (*models.OTPCode, error) {
	if m.findOTPErr != nil {
		return nil, m.findOTPErr
	}
	var newest *models.OTPCode
	for _, otp := range m.otps {
		if otp.UserID == userID && otp.Email == email && otp.Code == code && !otp.IsUsed {
			if newest == nil || otp.ID > newest.ID {
				newest = otp
			}
		}
	}
	if newest == nil {
		return nil, sql.ErrNoRows
	}
	return newest, nil
}

func (m *memoryStore) ConsumeOTP(ctx context.Context, id int64) (bool, error) {
	otp, ok := m.otps[id]
	if !ok || otp.IsUsed {
		return false, nil
	}
	otp.IsUsed = true
	return true, nil
}

func (m *memoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.nextSession++
	session.ID = m.nextSession
	session.CreatedAt = time.Now().UTC()
	m.sessions[session.Token] = session
	return nil
}

func (m *memoryStore) FindSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	session, ok := m.sessions[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (m *memoryStore) DeleteSessionByToken(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

type fakeSender struct {
	configured bool
	sendErr    error
	sentTo     string
	sentCode   string
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) SendOTP(to, code string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = to
	f.sentCode = code
	return nil
}

func zapNop() *zap.Logger { return zap.NewNop() }

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		OTPTTL:            10 * time.Minute,
		SessionTTL:        7 * 24 * time.Hour,
		BcryptCost:        4,
		OTPInlineFallback: true,
	}
}

func TestGenerateOTP(t *testing.T) {
	code, err := GenerateOTP()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestGenerateSessionToken(t *testing.T) {
	first, err := GenerateSessionToken()
	require.NoError(t, err)
	second, err := GenerateSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, len(first), 43)
	assert.NotContains(t, first, "+")
	assert.NotContains(t, first, "/")
}

func TestPreRegisterDuplicateID(t *testing.T) {
	store := newMemoryStore()
	svc := NewActivationService(store, nil, nil, zapNop(), testAuthConfig())

	_, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)

	_, err = svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Someone Else"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrDuplicateID.Code, appErr.Code)
}

func TestVerifyIdentityMismatch(t *testing.T) {
	store := newMemoryStore()
	svc := NewActivationService(store, nil, nil, zapNop(), testAuthConfig())

	_, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)

	_, err = svc.VerifyIdentity(context.Background(), models.VerifyIdentityRequest{ExternalID: "E1001", FullName: "Wrong Name"})
	assertCode(t, err, appErrors.ErrMismatch.Code)

	_, err = svc.VerifyIdentity(context.Background(), models.VerifyIdentityRequest{ExternalID: "E9999", FullName: "Ali Hassan"})
	assertCode(t, err, appErrors.ErrMismatch.Code)
}

func TestVerifyIdentityAlreadyActive(t *testing.T) {
	store := newMemoryStore()
	svc := NewActivationService(store, nil, nil, zapNop(), testAuthConfig())

	user, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)
	require.NoError(t, store.Activate(context.Background(), user.ID, "ali@example.com", "hash", time.Now().UTC()))

	_, err = svc.VerifyIdentity(context.Background(), models.VerifyIdentityRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	assertCode(t, err, appErrors.ErrAlreadyActive.Code)
}

func TestRequestActivationSendsMail(t *testing.T) {
	store := newMemoryStore()
	sender := &fakeSender{configured: true}
	svc := NewActivationService(store, sender, nil, zapNop(), testAuthConfig())

	user, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)

	delivery, err := svc.RequestActivation(context.Background(), models.RequestOTPRequest{UserID: user.ID, Email: "ali@example.com"})
	require.NoError(t, err)
	assert.True(t, delivery.Sent)
	assert.Equal(t, "ali@example.com", sender.sentTo)
	assert.Len(t, sender.sentCode, 6)
	assert.NotContains(t, delivery.Message, sender.sentCode)
}

func TestRequestActivationInlineFallback(t *testing.T) {
	store := newMemoryStore()
	sender := &fakeSender{configured: true, sendErr: errors.New("smtp down")}
	svc := NewActivationService(store, sender, nil, zapNop(), testAuthConfig())

	user, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)

	delivery, err := svc.RequestActivation(context.Background(), models.RequestOTPRequest{UserID: user.ID, Email: "ali@example.com"})
	require.NoError(t, err)
	assert.False(t, delivery.Sent)

	// The code issued to the store must be the one surfaced inline.
	var issued string
	for _, otp := range store.otps {
		issued = otp.Code
	}
	assert.True(t, strings.HasSuffix(delivery.Message, issued))
}

func TestRequestActivationFallbackDisabled(t *testing.T) {
	store := newMemoryStore()
	sender := &fakeSender{configured: true, sendErr: errors.New("smtp down")}
	cfg := testAuthConfig()
	cfg.OTPInlineFallback = false
	svc := NewActivationService(store, sender, nil, zapNop(), cfg)

	user, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)

	_, err = svc.RequestActivation(context.Background(), models.RequestOTPRequest{UserID: user.ID, Email: "ali@example.com"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	// The response must never leak the code when the fallback is off.
	for _, otp := range store.otps {
		assert.NotContains(t, appErr.Message, otp.Code)
	}
}

func TestRequestActivationUnknownUser(t *testing.T) {
	store := newMemoryStore()
	svc := NewActivationService(store, nil, nil, zapNop(), testAuthConfig())

	_, err := svc.RequestActivation(context.Background(), models.RequestOTPRequest{UserID: 99, Email: "ali@example.com"})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestActivateSucceedsOnce(t *testing.T) {
	store := newMemoryStore()
	sender := &fakeSender{configured: true}
	svc := NewActivationService(store, sender, nil, zapNop(), testAuthConfig())

	user, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)
	_, err = svc.RequestActivation(context.Background(), models.RequestOTPRequest{UserID: user.ID, Email: "ali@example.com"})
	require.NoError(t, err)

	req := models.ActivateRequest{UserID: user.ID, Email: "ali@example.com", Code: sender.sentCode, Password: "Secret123"}
	require.NoError(t, svc.Activate(context.Background(), req))
	assert.True(t, store.users[user.ID].IsActive)
	require.NotNil(t, store.users[user.ID].Email)
	assert.Equal(t, "ali@example.com", *store.users[user.ID].Email)

	// The same code cannot activate twice.
	err = svc.Activate(context.Background(), req)
	assertCode(t, err, appErrors.ErrInvalidCode.Code)
}

func TestActivateWrongCode(t *testing.T) {
	store := newMemoryStore()
	sender := &fakeSender{configured: true}
	svc := NewActivationService(store, sender, nil, zapNop(), testAuthConfig())

	user, err := svc.PreRegister(context.Background(), models.PreRegisterRequest{ExternalID: "E1001", FullName: "Ali Hassan"})
	require.NoError(t, err)
	_, err = svc.RequestActivation(context.Background(), models.RequestOTPRequest{UserID: user.ID, Email: "ali@example.com"})
	require.NoError(t, err)

	wrong := "000000"
	if sender.sentCode == wrong {
		wrong = "111111"
	}
	err = svc.Activate(context.Background(), models.ActivateRequest{UserID: user.ID, Email: "ali@example.com", Code: wrong, Password: "Secret123"})
	assertCode(t, err, appErrors.ErrInvalidCode.Code)
	assert.False(t, store.users[user.ID].IsActive)
}

func TestActivateExpiryBoundary(t *testing.T) {
	store := newMemoryStore()
	svc := NewActivationService(store, nil, nil, zapNop(), testAuthConfig())

	user := &models.User{ExternalID: "E1001", FullName: "Ali Hassan"}
	require.NoError(t, store.Create(context.Background(), user))

	expired := &models.OTPCode{UserID: user.ID, Email: "ali@example.com", Code: "123456", ExpiresAt: time.Now().UTC().Add(-time.Second)}
	require.NoError(t, store.CreateOTP(context.Background(), expired))

	err := svc.Activate(context.Background(), models.ActivateRequest{UserID: user.ID, Email: "ali@example.com", Code: "123456", Password: "Secret123"})
	assertCode(t, err, appErrors.ErrExpiredCode.Code)

	fresh := &models.OTPCode{UserID: user.ID, Email: "ali@example.com", Code: "654321", ExpiresAt: time.Now().UTC().Add(time.Second)}
	require.NoError(t, store.CreateOTP(context.Background(), fresh))

	err = svc.Activate(context.Background(), models.ActivateRequest{UserID: user.ID, Email: "ali@example.com", Code: "654321", Password: "Secret123"})
	require.NoError(t, err)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, code, appErr.Code)
}
