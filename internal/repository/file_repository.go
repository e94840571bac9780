package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
)

const fileColumns = `id, file_name, file_size, file_type, mime_type, telegram_file_id, file_url, message_id, link_valid, uploaded_by, created_at, checked_at`

// FileRepository provides database access for archived file metadata.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository creates a new instance of FileRepository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a file metadata row, minting its id.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO files (id, file_name, file_size, file_type, mime_type, telegram_file_id, file_url, message_id, link_valid, uploaded_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query, file.ID, file.FileName, file.FileSize, file.FileKind, file.MimeType, file.TelegramFileID, file.FileURL, file.MessageID, file.LinkValid, file.UploadedBy, file.CreatedAt); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// FindByID returns a file by id.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 LIMIT 1`
	var file models.File
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find file by id: %w", err)
	}
	return &file, nil
}

// List returns files based on filters with total count.
func (r *FileRepository) List(ctx context.Context, filter models.FileFilter) ([]models.File, int, error) {
	baseQuery := `FROM files WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("file_type = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(file_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at": true,
		"file_name":  true,
		"file_size":  true,
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", fileColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var files []models.File
	if err := r.db.SelectContext(ctx, &files, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	return files, total, nil
}

// Stats aggregates archive totals and the per-kind breakdown.
func (r *FileRepository) Stats(ctx context.Context) (*models.FileStats, error) {
	const totalsQuery = `SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM files`
	stats := &models.FileStats{ByKind: make(map[string]int)}
	if err := r.db.QueryRowContext(ctx, totalsQuery).Scan(&stats.TotalFiles, &stats.TotalSize); err != nil {
		return nil, fmt.Errorf("file totals: %w", err)
	}

	const kindsQuery = `SELECT file_type, COUNT(*) FROM files GROUP BY file_type`
	rows, err := r.db.QueryContext(ctx, kindsQuery)
	if err != nil {
		return nil, fmt.Errorf("file kind breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan kind breakdown: %w", err)
		}
		stats.ByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kind breakdown rows: %w", err)
	}
	return stats, nil
}

// Delete removes a file metadata row and reports whether it existed.
func (r *FileRepository) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete file rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListForSweep returns files whose stored URL has not been checked since the
// cutoff, oldest first.
func (r *FileRepository) ListForSweep(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE checked_at IS NULL OR checked_at < $1 ORDER BY checked_at ASC NULLS FIRST LIMIT $2`
	var files []models.File
	if err := r.db.SelectContext(ctx, &files, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list files for sweep: %w", err)
	}
	return files, nil
}

// UpdateLink refreshes the stored URL, its validity flag and the check time.
func (r *FileRepository) UpdateLink(ctx context.Context, id, fileURL string, valid bool, checkedAt time.Time) error {
	const query = `UPDATE files SET file_url = $2, link_valid = $3, checked_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, fileURL, valid, checkedAt); err != nil {
		return fmt.Errorf("update file link: %w", err)
	}
	return nil
}
