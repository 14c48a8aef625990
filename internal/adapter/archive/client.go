// Package archive talks to the Internet-Archive style archival service
// through its S3-compatible upload API.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gazeta/internal/domain"
)

// ErrNotFound is returned when an identifier has no archived copy.
var ErrNotFound = errors.New("archive item not found")

const (
	defaultUploadBase   = "https://s3.us.archive.org"
	defaultDownloadBase = "https://archive.org/download"
	transferTimeout     = 5 * time.Minute
)

// Config holds archival service credentials and endpoints.
type Config struct {
	AccessKey    string
	SecretKey    string
	Collection   string
	UploadBase   string
	DownloadBase string
}

// Client implements domain.ArchiveClient over HTTP.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

var _ domain.ArchiveClient = (*Client)(nil)

// NewClient builds an archival client. Endpoint defaults apply when the
// config leaves them empty.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.UploadBase == "" {
		cfg.UploadBase = defaultUploadBase
	}
	if cfg.DownloadBase == "" {
		cfg.DownloadBase = defaultDownloadBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: transferTimeout},
		logger: logger,
	}
}

// remoteName keeps uploads addressable without listing the bucket: the
// remote file is always <identifier><ext>.
func remoteName(identifier, localPath string) string {
	ext := path.Ext(localPath)
	if ext == "" {
		ext = ".pdf"
	}
	return identifier + ext
}

// Upload stores a local file under the given identifier, attaching the
// metadata as item headers.
func (c *Client) Upload(ctx context.Context, localPath, identifier string, metadata domain.Metadata) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	target := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.cfg.UploadBase, "/"), identifier, remoteName(identifier, localPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, file)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", c.cfg.AccessKey, c.cfg.SecretKey))
	req.Header.Set("X-Archive-Auto-Make-Bucket", "1")
	if c.cfg.Collection != "" {
		req.Header.Set("X-Archive-Meta-Collection", c.cfg.Collection)
	}
	for key, value := range metadata {
		req.Header.Set("X-Archive-Meta-"+headerKey(key), value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload %s: %s: %s", identifier, resp.Status, strings.TrimSpace(string(body)))
	}

	c.logger.Debug("archive upload complete", "identifier", identifier, "bytes", info.Size())
	return nil
}

// Download fetches an archived item into dir and returns the local path.
// A missing item yields ErrNotFound.
func (c *Client) Download(ctx context.Context, identifier, dir string) (string, error) {
	name := identifier + ".pdf"
	target := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.cfg.DownloadBase, "/"), identifier, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", identifier, resp.Status)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}
	localPath := filepath.Join(dir, name)
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", localPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("write %s: %w", localPath, err)
	}
	return localPath, nil
}

// headerKey normalizes a metadata key into an HTTP header token.
func headerKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "-")
	key = strings.ReplaceAll(key, "_", "-")
	return key
}
