package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
)

// Client is a thin Bot API client used to relay files into the archive group
// and to refresh download links. It deliberately covers only the handful of
// methods the archive needs.
type Client struct {
	baseURL  string
	botToken string
	chatID   string
	httpc    *http.Client
}

// UploadResult carries the storage coordinates Telegram assigned to a file.
type UploadResult struct {
	FileID    string
	FileSize  int64
	FileURL   string
	MessageID int64
}

// NewClient builds a client from configuration.
func NewClient(cfg config.TelegramConfig) *Client {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		baseURL:  base,
		botToken: cfg.BotToken,
		chatID:   cfg.TargetChatID,
		httpc:    &http.Client{Timeout: cfg.ClientTimeout},
	}
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

type sentMessage struct {
	MessageID int64      `json:"message_id"`
	Photo     []fileInfo `json:"photo"`
	Video     *fileInfo  `json:"video"`
	Audio     *fileInfo  `json:"audio"`
	Document  *fileInfo  `json:"document"`
}

// endpointFor picks the send method and multipart field for a MIME type.
func endpointFor(mimeType string) (endpoint, field string) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "sendPhoto", "photo"
	case strings.HasPrefix(mimeType, "video/"):
		return "sendVideo", "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "sendAudio", "audio"
	default:
		return "sendDocument", "document"
	}
}

// Upload relays the file into the archive group and resolves its storage URL.
func (c *Client) Upload(ctx context.Context, fileName, mimeType string, data io.Reader) (*UploadResult, error) {
	endpoint, field := endpointFor(mimeType)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("chat_id", c.chatID); err != nil {
		return nil, fmt.Errorf("write chat_id field: %w", err)
	}
	part, err := writer.CreateFormFile(field, fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("copy file payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var msg sentMessage
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}

	var info *fileInfo
	switch {
	case len(msg.Photo) > 0:
		// Telegram returns multiple photo sizes; the last one is the largest.
		info = &msg.Photo[len(msg.Photo)-1]
	case msg.Video != nil:
		info = msg.Video
	case msg.Audio != nil:
		info = msg.Audio
	case msg.Document != nil:
		info = msg.Document
	default:
		return nil, fmt.Errorf("telegram response carried no file info")
	}

	fileURL, err := c.FileURL(ctx, info.FileID)
	if err != nil {
		// The file is stored; a missing URL is refreshed later by the sweep.
		fileURL = ""
	}

	return &UploadResult{
		FileID:    info.FileID,
		FileSize:  info.FileSize,
		FileURL:   fileURL,
		MessageID: msg.MessageID,
	}, nil
}

// FileURL resolves the current download URL for a stored file id. Telegram
// URLs expire, so callers should treat the result as short-lived.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	url := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", c.baseURL, c.botToken, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	var info fileInfo
	if err := c.do(req, &info); err != nil {
		return "", err
	}
	if info.FilePath == "" {
		return "", fmt.Errorf("getFile returned empty file_path")
	}
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.botToken, info.FilePath), nil
}

func (c *Client) do(req *http.Request, result interface{}) error {
	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer res.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram api error: %s", envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode telegram result: %w", err)
		}
	}
	return nil
}
