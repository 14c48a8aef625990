package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/domain"
)

// Transfers can be large PDFs on slow tribunal servers.
const downloadTimeout = 5 * time.Minute

// HTTPDownloader fetches gazette PDFs over HTTP and ships local copies to
// the archival service.
type HTTPDownloader struct {
	code    string
	dataDir string
	client  *http.Client
	archive domain.ArchiveClient
	logger  *slog.Logger
}

// NewHTTPDownloader builds the downloader capability for one source.
func NewHTTPDownloader(code, dataDir string, archive domain.ArchiveClient, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDownloader{
		code:    code,
		dataDir: dataDir,
		client:  &http.Client{Timeout: downloadTimeout},
		archive: archive,
		logger:  logger.With("source", code),
	}
}

// Download retrieves the gazette content, hashing it on the way to disk.
// The file lands under dataDir/<code>/ and the entity advances to
// downloaded.
func (dl *HTTPDownloader) Download(ctx context.Context, d *domain.Diario) error {
	if d.URL == "" {
		return domain.ErrMissingURL
	}

	destDir := filepath.Join(dl.dataDir, dl.code)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := dl.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", d.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", d.URL, resp.Status)
	}

	tmp, err := os.CreateTemp(destDir, "gazeta-*.partial")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(tmp, io.TeeReader(resp.Body, hasher)); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	filename := filenameFromURL(d.URL, d.ReferenceDate)
	finalPath := filepath.Join(destDir, filename)
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return fmt.Errorf("move download into place: %w", err)
	}

	d.Filename = filename
	d.MarkDownloaded(finalPath, hex.EncodeToString(hasher.Sum(nil)))
	dl.logger.Info("gazette downloaded", "url", d.URL, "path", finalPath, "hash", d.ContentHash)
	return nil
}

// Archive uploads the local copy and records the assigned identifier.
func (dl *HTTPDownloader) Archive(ctx context.Context, d *domain.Diario) error {
	if d.LocalPath == "" {
		return fmt.Errorf("source %s: no local copy to archive", dl.code)
	}

	identifier := d.DefaultArchiveIdentifier()
	if d.SourceCode == "" || d.ReferenceDate.IsZero() {
		identifier = uuid.NewString()
	}

	metadata := domain.Metadata{
		"source": d.SourceCode,
		"date":   d.ReferenceDate.Format("2006-01-02"),
		"sha256": d.ContentHash,
	}
	if err := dl.archive.Upload(ctx, d.LocalPath, identifier, metadata); err != nil {
		return fmt.Errorf("archive %s: %w", identifier, err)
	}

	d.MarkArchived(identifier)
	dl.logger.Info("gazette archived", "identifier", identifier)
	return nil
}

// filenameFromURL derives a local filename from the URL path, falling back
// to a date-stamped name when the path carries none.
func filenameFromURL(rawURL string, date time.Time) string {
	if u, err := url.Parse(rawURL); err == nil {
		name := path.Base(u.Path)
		if strings.HasSuffix(name, ".pdf") {
			return name
		}
	}
	return fmt.Sprintf("diario-%s.pdf", date.Format("2006-01-02"))
}
