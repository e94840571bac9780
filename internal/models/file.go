package models

import (
	"strings"
	"time"
)

// FileKind is the coarse classification used to pick the relay endpoint.
type FileKind string

const (
	FileKindImage    FileKind = "image"
	FileKindVideo    FileKind = "video"
	FileKindAudio    FileKind = "audio"
	FileKindDocument FileKind = "document"
)

// KindForMIME maps a MIME type onto its archive kind.
func KindForMIME(mimeType string) FileKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileKindImage
	case strings.HasPrefix(mimeType, "video/"):
		return FileKindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return FileKindAudio
	default:
		return FileKindDocument
	}
}

// File is one archived file's metadata row. The bytes themselves live in the
// chat platform; only the Telegram file id and the (expiring) URL are kept.
type File struct {
	ID             string     `db:"id" json:"id"`
	FileName       string     `db:"file_name" json:"file_name"`
	FileSize       int64      `db:"file_size" json:"file_size"`
	FileKind       FileKind   `db:"file_type" json:"file_type"`
	MimeType       string     `db:"mime_type" json:"mime_type"`
	TelegramFileID string     `db:"telegram_file_id" json:"telegram_file_id"`
	FileURL        string     `db:"file_url" json:"file_url"`
	MessageID      int64      `db:"message_id" json:"message_id"`
	LinkValid      bool       `db:"link_valid" json:"link_valid"`
	UploadedBy     *int64     `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	CheckedAt      *time.Time `db:"checked_at" json:"checked_at,omitempty"`
}

// FileFilter narrows archive listing queries.
type FileFilter struct {
	Kind      FileKind
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// FileStats summarizes the archive.
type FileStats struct {
	TotalFiles int            `json:"total_files"`
	TotalSize  int64          `json:"total_size"`
	ByKind     map[string]int `json:"by_kind"`
}
