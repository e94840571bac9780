package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
)

const userColumns = `id, user_id, full_name, email, password_hash, is_active, is_admin, last_login, created_at, activated_at`

// UserRepository provides database access for users, activation codes and
// login sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a pre-registered user. A duplicate external id surfaces as a
// unique violation from the store.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO users (user_id, full_name, is_active, is_admin, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.GetContext(ctx, &user.ID, query, user.ExternalID, user.FullName, user.IsActive, user.IsAdmin, user.CreatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByID returns a user by internal id.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByExternalID returns a user by the external-facing identifier.
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, externalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by external id: %w", err)
	}
	return &user, nil
}

// FindActiveByEmail returns the active user registered under the email.
func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active = TRUE LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active user by email: %w", err)
	}
	return &user, nil
}

// Activate sets the email, credential hash, active flag and activation time.
func (r *UserRepository) Activate(ctx context.Context, id int64, email, passwordHash string, activatedAt time.Time) error {
	const query = `UPDATE users SET email = $2, password_hash = $3, is_active = TRUE, activated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, email, passwordHash, activatedAt); err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(user_id) LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":   true,
		"activated_at": true,
		"full_name":    true,
		"user_id":      true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// CreateOTP persists a fresh activation code.
func (r *UserRepository) CreateOTP(ctx context.Context, otp *models.OTPCode) error {
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO otp_codes (user_id, email, code, expires_at, is_used, created_at) VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id`
	if err := r.db.GetContext(ctx, &otp.ID, query, otp.UserID, otp.Email, otp.Code, otp.ExpiresAt, otp.CreatedAt); err != nil {
		return fmt.Errorf("create otp: %w", err)
	}
	return nil
}

// FindOTP returns the newest unused code matching user, email and code.
func (r *UserRepository) FindOTP(ctx context.Context, userID int64, email, code string) (*models.OTPCode, error) {
	const query = `SELECT id, user_id, email, code, expires_at, is_used, created_at FROM otp_codes WHERE user_id = $1 AND email = $2 AND code = $3 AND is_used = FALSE ORDER BY id DESC LIMIT 1`
	var otp models.OTPCode
	if err := r.db.GetContext(ctx, &otp, query, userID, email, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find otp: %w", err)
	}
	return &otp, nil
}

// ConsumeOTP flips is_used in a single conditional update and reports whether
// this call won the row. Two racing activations cannot both observe true.
func (r *UserRepository) ConsumeOTP(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE otp_codes SET is_used = TRUE WHERE id = $1 AND is_used = FALSE`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume otp rows affected: %w", err)
	}
	return affected == 1, nil
}

// CreateSession persists a login session.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (user_id, session_token, expires_at, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.GetContext(ctx, &session.ID, query, session.UserID, session.Token, session.ExpiresAt, session.CreatedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindSessionByToken returns the session row for an opaque token.
func (r *UserRepository) FindSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	const query = `SELECT id, user_id, session_token, expires_at, created_at FROM sessions WHERE session_token = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// DeleteSessionByToken removes the session. Unknown tokens are not an error.
func (r *UserRepository) DeleteSessionByToken(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE session_token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
