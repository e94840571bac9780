package handler

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/middleware"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/response"
)

// FileHandler exposes the archive endpoints.
type FileHandler struct {
	files   *service.FileService
	metrics *service.MetricsService
	cfg     config.FilesConfig
}

// NewFileHandler creates a new handler.
func NewFileHandler(files *service.FileService, metrics *service.MetricsService, cfg config.FilesConfig) *FileHandler {
	return &FileHandler{files: files, metrics: metrics, cfg: cfg}
}

// Upload godoc
// @Summary Archive a file
// @Description Relay a multipart upload through the chat platform and record its metadata
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field 'file' is required"))
		return
	}
	if h.cfg.MaxUploadBytes > 0 && fileHeader.Size > h.cfg.MaxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit"))
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close()

	var uploadedBy *int64
	if identity, ok := middleware.CurrentUser(c); ok {
		uploadedBy = &identity.UserID
	}

	file, err := h.files.Upload(c.Request.Context(), fileHeader.Filename, mimeType, src, uploadedBy)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.ObserveUpload(string(file.FileKind), file.FileSize)
	response.Created(c, file)
}

// List godoc
// @Summary List archived files
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param type query string false "Filter by kind (image, video, audio, document)"
// @Param search query string false "Search by file name"
// @Success 200 {object} response.Envelope
// @Router /files [get]
func (h *FileHandler) List(c *gin.Context) {
	filter := models.FileFilter{
		Kind:      models.FileKind(c.Query("type")),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	files, pagination, err := h.files.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, pagination)
}

// Stats godoc
// @Summary Archive statistics
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /files/stats [get]
func (h *FileHandler) Stats(c *gin.Context) {
	stats, err := h.files.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Get godoc
// @Summary Get one file's metadata
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [get]
func (h *FileHandler) Get(c *gin.Context) {
	file, err := h.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Delete godoc
// @Summary Delete a file's metadata
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File id"
// @Success 204 "file deleted"
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Link godoc
// @Summary Issue a download token
// @Description Sign a short-lived token redeemable at the public download endpoint
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id}/link [get]
func (h *FileHandler) Link(c *gin.Context) {
	grant, err := h.files.IssueDownloadToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grant, nil)
}

// Download godoc
// @Summary Redeem a download token
// @Description The token is the sole credential and must have been issued for this file; redirects to the storage URL
// @Tags Files
// @Param id path string true "File id"
// @Param token query string true "Download token"
// @Success 302 "redirect to storage"
// @Failure 401 {object} response.Envelope
// @Router /files/{id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	url, err := h.files.RedeemDownloadToken(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Export godoc
// @Summary Export the archive inventory
// @Tags Files
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf (default pdf)"
// @Success 200 {file} binary
// @Router /files/export [get]
func (h *FileHandler) Export(c *gin.Context) {
	payload, contentType, err := h.files.Export(c.Request.Context(), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "pdf"
	if contentType == "text/csv" {
		ext = "csv"
	}
	c.Header("Content-Disposition", `attachment; filename="archive-inventory.`+ext+`"`)
	c.Data(http.StatusOK, contentType, payload)
}
