package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/export"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/telegram"
)

const (
	filesCachePrefix  = "files:"
	filesStatsKey     = "files:stats"
	downloadTokenType = "file_download"
)

type fileRepository interface {
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	List(ctx context.Context, filter models.FileFilter) ([]models.File, int, error)
	Stats(ctx context.Context) (*models.FileStats, error)
	Delete(ctx context.Context, id string) (bool, error)
	UpdateLink(ctx context.Context, id, fileURL string, valid bool, checkedAt time.Time) error
}

type FileCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Storage relays file bytes to the chat platform and resolves download URLs.
type Storage interface {
	Upload(ctx context.Context, fileName, mimeType string, data io.Reader) (*telegram.UploadResult, error)
	FileURL(ctx context.Context, fileID string) (string, error)
}

// DownloadToken is a signed, short-lived grant for one file.
type DownloadToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type downloadClaims struct {
	FileID    string `json:"file_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// FileService manages archive metadata, the upload relay and download links.
type FileService struct {
	repo    fileRepository
	storage Storage
	cache   FileCache
	logger  *zap.Logger
	metrics *MetricsService
	auth    config.AuthConfig
	files   config.FilesConfig

	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewFileService constructs a FileService instance. cache and metrics may be
// nil.
func NewFileService(repo fileRepository, storage Storage, cache FileCache, logger *zap.Logger, metrics *MetricsService, auth config.AuthConfig, files config.FilesConfig) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		repo:    repo,
		storage: storage,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		auth:    auth,
		files:   files,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

// Upload relays the payload to storage and records its metadata.
func (s *FileService) Upload(ctx context.Context, fileName, mimeType string, data io.Reader, uploadedBy *int64) (*models.File, error) {
	if fileName == "" || mimeType == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name and mime type are required")
	}

	result, err := s.storage.Upload(ctx, fileName, mimeType, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to relay file to storage")
	}

	file := &models.File{
		FileName:       fileName,
		FileSize:       result.FileSize,
		FileKind:       models.KindForMIME(mimeType),
		MimeType:       mimeType,
		TelegramFileID: result.FileID,
		FileURL:        result.FileURL,
		MessageID:      result.MessageID,
		LinkValid:      result.FileURL != "",
		UploadedBy:     uploadedBy,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record file")
	}

	s.invalidateCache(ctx)
	s.logger.Info("file archived",
		zap.String("file_id", file.ID),
		zap.String("kind", string(file.FileKind)),
		zap.Int64("size", file.FileSize))
	return file, nil
}

// Get returns one file's metadata.
func (s *FileService) Get(ctx context.Context, id string) (*models.File, error) {
	file, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch file")
	}
	return file, nil
}

// List returns files matching the filter with pagination metadata.
func (s *FileService) List(ctx context.Context, filter models.FileFilter) ([]models.File, *models.Pagination, error) {
	files, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return files, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Stats returns archive totals, cached for a short window.
func (s *FileService) Stats(ctx context.Context) (*models.FileStats, error) {
	if s.cacheEnabled() {
		var cached models.FileStats
		if err := s.cache.Get(ctx, filesStatsKey, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return &cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stats")
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, filesStatsKey, stats, s.files.StatsCacheTTL); err != nil {
			s.logger.Warn("failed to cache stats", zap.Error(err))
		}
	}
	return stats, nil
}

// Delete removes a file's metadata row.
func (s *FileService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete file")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}

	s.invalidateCache(ctx)
	s.logger.Info("file deleted", zap.String("file_id", id))
	return nil
}

// IssueDownloadToken signs a short-lived grant for one file. The token is the
// sole credential accepted by the download endpoint.
func (s *FileService) IssueDownloadToken(ctx context.Context, fileID string) (*DownloadToken, error) {
	if _, err := s.Get(ctx, fileID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.auth.DownloadTokenTTL)
	claims := downloadClaims{
		FileID:    fileID,
		TokenType: downloadTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.auth.DownloadSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &DownloadToken{Token: token, ExpiresAt: expiresAt}, nil
}

// RedeemDownloadToken validates the grant and returns a usable download URL,
// refreshing the stored one when it has gone stale. The token must have been
// issued for fileID.
func (s *FileService) RedeemDownloadToken(ctx context.Context, fileID, token string) (string, error) {
	claims := &downloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.auth.DownloadSecret), nil
	})
	if err != nil || !parsed.Valid || claims.TokenType != downloadTokenType || claims.FileID != fileID {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "download token is invalid or expired")
	}

	file, err := s.Get(ctx, claims.FileID)
	if err != nil {
		return "", err
	}

	if file.LinkValid && file.FileURL != "" {
		return file.FileURL, nil
	}
	return s.RefreshLink(ctx, file)
}

// RefreshLink re-resolves the storage URL for a file and persists the result.
// Used by token redemption on stale links and by the periodic sweep.
func (s *FileService) RefreshLink(ctx context.Context, file *models.File) (string, error) {
	url, err := s.storage.FileURL(ctx, file.TelegramFileID)
	checkedAt := time.Now().UTC()
	if s.metrics != nil {
		s.metrics.ObserveLinkRefresh(err == nil)
	}
	if err != nil {
		if updateErr := s.repo.UpdateLink(ctx, file.ID, file.FileURL, false, checkedAt); updateErr != nil {
			s.logger.Warn("failed to mark link invalid", zap.String("file_id", file.ID), zap.Error(updateErr))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh download link")
	}

	if err := s.repo.UpdateLink(ctx, file.ID, url, true, checkedAt); err != nil {
		s.logger.Warn("failed to persist refreshed link", zap.String("file_id", file.ID), zap.Error(err))
	}
	return url, nil
}

// Export renders the archive inventory as CSV or PDF.
func (s *FileService) Export(ctx context.Context, format string) ([]byte, string, error) {
	filter := models.FileFilter{Page: 1, PageSize: 100, SortBy: "created_at", SortOrder: "asc"}
	var files []models.File
	for {
		batch, _, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
		}
		files = append(files, batch...)
		if len(batch) < filter.PageSize {
			break
		}
		filter.Page++
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Kind", "Size", "Uploaded"},
		Rows:    make([]map[string]string, 0, len(files)),
	}
	for _, f := range files {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":     f.FileName,
			"Kind":     string(f.FileKind),
			"Size":     fmt.Sprintf("%d", f.FileSize),
			"Uploaded": f.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	switch format {
	case "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf", "":
		payload, err := s.pdf.Render(dataset, "Archive inventory")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *FileService) cacheEnabled() bool {
	return s.cache != nil && s.files.CacheEnabled
}

func (s *FileService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, filesCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate file cache", zap.Error(err))
	}
}
