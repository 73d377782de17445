package media

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/models"
	"watgbridge/internal/retry"
	"watgbridge/internal/security"

	"github.com/sirupsen/logrus"
)

// Handler stages media bytes as temp files for platform clients that send
// by path, fetches gateway-hosted media, and keeps the staging area bounded.
type Handler interface {
	Stage(data []byte, ext string) (string, error)
	Fetch(ctx context.Context, mediaURL string) ([]byte, error)
	Discard(path string)
	CleanupOldFiles(maxAgeSec int64) error
	TempDir() string
}

type handler struct {
	tempDir        string
	config         models.MediaConfig
	httpClient     *http.Client
	backoff        *retry.Backoff
	gatewayBaseURL string
	gatewayAPIKey  string
	logger         *logrus.Logger
}

func NewHandler(config models.MediaConfig, gatewayBaseURL, gatewayAPIKey string, logger *logrus.Logger) (Handler, error) {
	if err := os.MkdirAll(config.TempDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &handler{
		tempDir:        config.TempDir,
		config:         config,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		backoff:        retry.NewBackoff(retry.DefaultBackoffConfig()),
		gatewayBaseURL: gatewayBaseURL,
		gatewayAPIKey:  gatewayAPIKey,
		logger:         logger,
	}, nil
}

func (h *handler) TempDir() string {
	return h.tempDir
}

// Stage writes data to a content-addressed file in the temp directory and
// returns its path. Re-staging identical bytes reuses the existing file.
func (h *handler) Stage(data []byte, ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "bin"
	}

	if err := h.validateMedia(ext, int64(len(data))); err != nil {
		return "", err
	}

	hashStr := fmt.Sprintf("%x", sha256.Sum256(data))
	stagedPath := filepath.Join(h.tempDir, hashStr+"."+ext)

	if _, err := os.Stat(stagedPath); err == nil {
		return stagedPath, nil
	}

	tmp, err := os.CreateTemp(h.tempDir, "stage_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write staged media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close staged media: %w", err)
	}
	if err := os.Rename(tmp.Name(), stagedPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize staged media: %w", err)
	}

	return stagedPath, nil
}

// Fetch downloads media from a gateway-hosted URL.
func (h *handler) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	rewritten := h.rewriteMediaURL(mediaURL)

	if err := h.validateDownloadURL(rewritten); err != nil {
		return nil, err
	}

	var data []byte
	err := h.backoff.Retry(ctx, func() error {
		var attemptErr error
		data, attemptErr = h.fetchOnce(ctx, rewritten)
		return attemptErr
	})
	return data, err
}

func (h *handler) fetchOnce(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h.gatewayAPIKey != "" {
		req.Header.Set("X-Api-Key", h.gatewayAPIKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	return data, nil
}

// Discard removes a staged file, logging rather than failing on error.
func (h *handler) Discard(path string) {
	if path == "" {
		return
	}
	if err := security.ValidateWithinBase(path, h.tempDir); err != nil {
		h.logger.WithError(err).Warn("Refusing to discard file outside temp directory")
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		h.logger.WithError(err).WithField("path", path).Warn("Failed to remove staged media")
	}
}

func (h *handler) validateMedia(ext string, size int64) error {
	var maxSizeMB int
	var mediaType string

	for _, allowedExt := range h.config.AllowedTypes.Image {
		if ext == allowedExt {
			maxSizeMB = h.config.MaxSizeMB.Image
			mediaType = "image"
			break
		}
	}

	if maxSizeMB == 0 {
		for _, allowedExt := range h.config.AllowedTypes.Video {
			if ext == allowedExt {
				maxSizeMB = h.config.MaxSizeMB.Video
				mediaType = "video"
				break
			}
		}
	}

	if maxSizeMB == 0 {
		for _, allowedExt := range h.config.AllowedTypes.Voice {
			if ext == allowedExt {
				maxSizeMB = h.config.MaxSizeMB.Voice
				mediaType = "voice"
				break
			}
		}
	}

	if maxSizeMB == 0 {
		for _, allowedExt := range h.config.AllowedTypes.Document {
			if ext == allowedExt {
				maxSizeMB = h.config.MaxSizeMB.Document
				mediaType = "document"
				break
			}
		}
	}

	// Anything not covered by an explicit list rides the document limit.
	if maxSizeMB == 0 {
		maxSizeMB = h.config.MaxSizeMB.Document
		mediaType = "document"
	}
	if maxSizeMB == 0 {
		return nil
	}

	maxSizeBytes := int64(maxSizeMB) * 1024 * 1024
	if size > maxSizeBytes {
		return fmt.Errorf("%s too large: %d > %d bytes", mediaType, size, maxSizeBytes)
	}

	return nil
}

func (h *handler) CleanupOldFiles(maxAgeSec int64) error {
	entries, err := os.ReadDir(h.tempDir)
	if err != nil {
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}

		age := now.Sub(info.ModTime())
		if age.Seconds() > float64(maxAgeSec) {
			path := filepath.Join(h.tempDir, info.Name())
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove old file: %w", err)
			}
		}
	}

	return nil
}

// rewriteMediaURL fixes up media URLs the gateway reports with its own
// loopback address so they resolve from this process.
func (h *handler) rewriteMediaURL(mediaURL string) string {
	if h.gatewayBaseURL == "" {
		return mediaURL
	}

	u, err := url.Parse(mediaURL)
	if err != nil {
		return mediaURL
	}

	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		gatewayURL, err := url.Parse(h.gatewayBaseURL)
		if err != nil {
			return mediaURL
		}
		u.Scheme = gatewayURL.Scheme
		u.Host = gatewayURL.Host
		return u.String()
	}

	return mediaURL
}

// ExtForMime picks a staging extension for a reported MIME type.
func ExtForMime(mimeType, fallback string) string {
	if ext := constants.ExtForMimeType(mimeType); ext != "" {
		return strings.TrimPrefix(ext, ".")
	}
	if fallback != "" {
		return strings.ToLower(strings.TrimPrefix(fallback, "."))
	}
	return "bin"
}
