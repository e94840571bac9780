package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/MoainAlabbasi/telegram-archive-bot/internal/middleware"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/telegram"
)

type archiveStore struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func newArchiveStore() *archiveStore {
	return &archiveStore{files: map[string]*models.File{}}
}

func (s *archiveStore) Create(ctx context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	file.CreatedAt = time.Now().UTC()
	s.files[file.ID] = file
	return nil
}

func (s *archiveStore) FindByID(ctx context.Context, id string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *f
	return &copied, nil
}

func (s *archiveStore) List(ctx context.Context, filter models.FileFilter) ([]models.File, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.File, 0, len(s.files))
	for _, f := range s.files {
		if filter.Kind != "" && f.FileKind != filter.Kind {
			continue
		}
		out = append(out, *f)
	}
	return out, len(out), nil
}

func (s *archiveStore) Stats(ctx context.Context) (*models.FileStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.FileStats{ByKind: map[string]int{}}
	for _, f := range s.files {
		stats.TotalFiles++
		stats.TotalSize += f.FileSize
		stats.ByKind[string(f.FileKind)]++
	}
	return stats, nil
}

func (s *archiveStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return false, nil
	}
	delete(s.files, id)
	return true, nil
}

func (s *archiveStore) UpdateLink(ctx context.Context, id, fileURL string, valid bool, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		f.FileURL = fileURL
		f.LinkValid = valid
		f.CheckedAt = &checkedAt
	}
	return nil
}

type relayStub struct{}

func (relayStub) Upload(ctx context.Context, fileName, mimeType string, data io.Reader) (*telegram.UploadResult, error) {
	size, _ := io.Copy(io.Discard, data)
	return &telegram.UploadResult{
		FileID:    "tg-" + fileName,
		FileURL:   "https://files.example.test/" + fileName,
		FileSize:  size,
		MessageID: 42,
	}, nil
}

func (relayStub) FileURL(ctx context.Context, fileID string) (string, error) {
	return "https://files.example.test/refreshed/" + fileID, nil
}

func buildFileRouter(store *archiveStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	authCfg := config.AuthConfig{
		DownloadSecret:   "handler-test-secret",
		DownloadTokenTTL: 15 * time.Minute,
	}
	filesCfg := config.FilesConfig{MaxUploadBytes: 1 << 20}
	files := service.NewFileService(store, relayStub{}, nil, zap.NewNop(), nil, authCfg, filesCfg)
	h := NewFileHandler(files, service.NewMetricsService(), filesCfg)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, &models.Identity{UserID: 7, ExternalID: "E1001", IsAdmin: true})
		c.Next()
	})
	router.POST("/files", h.Upload)
	router.GET("/files", h.List)
	router.GET("/files/stats", h.Stats)
	router.GET("/files/export", h.Export)
	router.GET("/files/:id", h.Get)
	router.DELETE("/files/:id", h.Delete)
	router.GET("/files/:id/link", h.Link)
	router.GET("/files/:id/download", h.Download)
	return router
}

func multipartUpload(t *testing.T, fieldName, fileName, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestFileRoutesUploadAndFetch(t *testing.T) {
	store := newArchiveStore()
	router := buildFileRouter(store)

	body, contentType := multipartUpload(t, "file", "report.pdf", "application/pdf", []byte("%PDF-1.4 test"))
	req, _ := http.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", contentType)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	var envelope struct {
		Data models.File `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, models.FileKindDocument, envelope.Data.FileKind)
	require.NotNil(t, envelope.Data.UploadedBy)
	require.Equal(t, int64(7), *envelope.Data.UploadedBy)

	req, _ = http.NewRequest(http.MethodGet, "/files/"+envelope.Data.ID, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"file_name":"report.pdf"`)
}

func TestFileRoutesUploadMissingField(t *testing.T) {
	router := buildFileRouter(newArchiveStore())

	body, contentType := multipartUpload(t, "attachment", "report.pdf", "application/pdf", []byte("data"))
	req, _ := http.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", contentType)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestFileRoutesListAndStats(t *testing.T) {
	store := newArchiveStore()
	router := buildFileRouter(store)

	require.NoError(t, store.Create(context.Background(), &models.File{
		FileName: "photo.jpg", FileKind: models.FileKindImage, FileSize: 100,
	}))
	require.NoError(t, store.Create(context.Background(), &models.File{
		FileName: "notes.txt", FileKind: models.FileKindDocument, FileSize: 50,
	}))

	req, _ := http.NewRequest(http.MethodGet, "/files?type=image", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "photo.jpg")
	require.NotContains(t, resp.Body.String(), "notes.txt")

	req, _ = http.NewRequest(http.MethodGet, "/files/stats", nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"total_files":2`)
	require.Contains(t, resp.Body.String(), `"total_size":150`)
}

func TestFileRoutesDownloadTokenRoundTrip(t *testing.T) {
	store := newArchiveStore()
	router := buildFileRouter(store)

	file := &models.File{
		FileName: "clip.mp4", FileKind: models.FileKindVideo,
		TelegramFileID: "tg-clip", FileURL: "https://files.example.test/clip.mp4", LinkValid: true,
	}
	require.NoError(t, store.Create(context.Background(), file))

	req, _ := http.NewRequest(http.MethodGet, "/files/"+file.ID+"/link", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data service.DownloadToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.Token)

	req, _ = http.NewRequest(http.MethodGet, "/files/"+file.ID+"/download?token="+envelope.Data.Token, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusFound, resp.Code)
	require.Equal(t, "https://files.example.test/clip.mp4", resp.Header().Get("Location"))

	// The token only opens the file it was issued for.
	req, _ = http.NewRequest(http.MethodGet, "/files/some-other-id/download?token="+envelope.Data.Token, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestFileRoutesDownloadRejectsGarbageToken(t *testing.T) {
	router := buildFileRouter(newArchiveStore())

	req, _ := http.NewRequest(http.MethodGet, "/files/any/download?token=not-a-token", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestFileRoutesDeleteThenMiss(t *testing.T) {
	store := newArchiveStore()
	router := buildFileRouter(store)

	file := &models.File{FileName: "old.zip", FileKind: models.FileKindDocument}
	require.NoError(t, store.Create(context.Background(), file))

	req, _ := http.NewRequest(http.MethodDelete, "/files/"+file.ID, nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusNoContent, resp.Code)

	req, _ = http.NewRequest(http.MethodDelete, "/files/"+file.ID, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFileRoutesExportCSV(t *testing.T) {
	store := newArchiveStore()
	router := buildFileRouter(store)

	require.NoError(t, store.Create(context.Background(), &models.File{
		FileName: "photo.jpg", FileKind: models.FileKindImage, FileSize: 100,
	}))

	req, _ := http.NewRequest(http.MethodGet, "/files/export?format=csv", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	require.Contains(t, resp.Header().Get("Content-Disposition"), "archive-inventory.csv")
	require.Contains(t, resp.Body.String(), "photo.jpg")
}
