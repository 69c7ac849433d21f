// Package storage provides the blob-store contract consumed by the upload
// path, an Uploadcare-style direct-upload client, and a bounded retry
// decorator.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// BlobStore stores raw file bytes under a name and returns a public URL.
type BlobStore interface {
	Store(ctx context.Context, data []byte, fileName, contentType string) (string, error)
}

// ErrEmptyFile is returned when there are no bytes to store.
var ErrEmptyFile = errors.New("file data is empty")

// DefaultUploadEndpoint is the Uploadcare direct-upload API.
const DefaultUploadEndpoint = "https://upload.uploadcare.com/base/"

// UploadcareConfig configures the direct-upload client.
type UploadcareConfig struct {
	Endpoint  string
	PublicKey string
	Client    *http.Client
}

// Uploadcare is a BlobStore backed by the Uploadcare direct-upload API.
type Uploadcare struct {
	endpoint  string
	publicKey string
	client    *http.Client
}

// NewUploadcare creates a direct-upload client. A nil HTTP client gets a
// 30-second timeout default.
func NewUploadcare(cfg UploadcareConfig) *Uploadcare {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultUploadEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Uploadcare{
		endpoint:  cfg.Endpoint,
		publicKey: cfg.PublicKey,
		client:    cfg.Client,
	}
}

// Store uploads the file bytes and returns the CDN URL of the stored file.
func (u *Uploadcare) Store(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("UPLOADCARE_PUB_KEY", u.publicKey); err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	if err := writer.WriteField("UPLOADCARE_STORE", "auto"); err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if result.File == "" {
		return "", errors.New("upload response did not include a file id")
	}

	return "https://ucarecdn.com/" + result.File + "/", nil
}
