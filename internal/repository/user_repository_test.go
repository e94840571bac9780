package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(7))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (user_id, full_name, is_active, is_admin, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id")).
		WithArgs("E1001", "Ali Hassan", false, false, sqlmock.AnyArg()).
		WillReturnRows(rows)

	user := &models.User{ExternalID: "E1001", FullName: "Ali Hassan"}
	err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByExternalID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "full_name", "email", "password_hash", "is_active", "is_admin", "last_login", "created_at", "activated_at"}).
		AddRow(int64(7), "E1001", "Ali Hassan", nil, nil, false, false, nil, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE user_id = $1 LIMIT 1")).
		WithArgs("E1001").
		WillReturnRows(rows)

	user, err := repo.FindByExternalID(context.Background(), "E1001")
	require.NoError(t, err)
	assert.Equal(t, "Ali Hassan", user.FullName)
	assert.False(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByExternalIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE user_id = $1 LIMIT 1")).
		WithArgs("E9999").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByExternalID(context.Background(), "E9999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	email := "ali@example.com"
	hash := "hash"
	rows := sqlmock.NewRows([]string{"id", "user_id", "full_name", "email", "password_hash", "is_active", "is_admin", "last_login", "created_at", "activated_at"}).
		AddRow(int64(7), "E1001", "Ali Hassan", email, hash, true, false, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE email = $1 AND is_active = TRUE LIMIT 1")).
		WithArgs(email).
		WillReturnRows(rows)

	user, err := repo.FindActiveByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, user.Email)
	assert.Equal(t, email, *user.Email)
	assert.True(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET email = $2, password_hash = $3, is_active = TRUE, activated_at = $4 WHERE id = $1")).
		WithArgs(int64(7), "ali@example.com", "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Activate(context.Background(), 7, "ali@example.com", "hash", now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "user_id", "full_name", "email", "password_hash", "is_active", "is_admin", "last_login", "created_at", "activated_at"}).
		AddRow(int64(1), "E1001", "Ali Hassan", nil, nil, false, false, nil, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+userColumns+" FROM users WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1")).WillReturnRows(countRows)

	users, total, err := repo.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOTP(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(42))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO otp_codes (user_id, email, code, expires_at, is_used, created_at) VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id")).
		WithArgs(int64(7), "ali@example.com", "123456", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	otp := &models.OTPCode{UserID: 7, Email: "ali@example.com", Code: "123456", ExpiresAt: time.Now().Add(10 * time.Minute)}
	err := repo.CreateOTP(context.Background(), otp)
	require.NoError(t, err)
	assert.Equal(t, int64(42), otp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOTP(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "email", "code", "expires_at", "is_used", "created_at"}).
		AddRow(int64(42), int64(7), "ali@example.com", "123456", now.Add(10*time.Minute), false, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, email, code, expires_at, is_used, created_at FROM otp_codes WHERE user_id = $1 AND email = $2 AND code = $3 AND is_used = FALSE ORDER BY id DESC LIMIT 1")).
		WithArgs(int64(7), "ali@example.com", "123456").
		WillReturnRows(rows)

	otp, err := repo.FindOTP(context.Background(), 7, "ali@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, int64(42), otp.ID)
	assert.False(t, otp.IsUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeOTP(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE otp_codes SET is_used = TRUE WHERE id = $1 AND is_used = FALSE")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ConsumeOTP(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeOTPAlreadyUsed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE otp_codes SET is_used = TRUE WHERE id = $1 AND is_used = FALSE")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ConsumeOTP(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(3))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sessions (user_id, session_token, expires_at, created_at) VALUES ($1, $2, $3, $4) RETURNING id")).
		WithArgs(int64(7), "tok", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	session := &models.Session{UserID: 7, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	err := repo.CreateSession(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, int64(3), session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSessionByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_token", "expires_at", "created_at"}).
		AddRow(int64(3), int64(7), "tok", now.Add(time.Hour), now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, session_token, expires_at, created_at FROM sessions WHERE session_token = $1 LIMIT 1")).
		WithArgs("tok").
		WillReturnRows(rows)

	session, err := repo.FindSessionByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(7), session.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE session_token = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteSessionByToken(context.Background(), "gone")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
