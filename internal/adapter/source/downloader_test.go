package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"gazeta/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeArchive implements domain.ArchiveClient in memory.
type fakeArchive struct {
	mu       sync.Mutex
	uploads  map[string]string // identifier -> local path
	uploadFn func(identifier string) error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{uploads: make(map[string]string)}
}

func (f *fakeArchive) Upload(ctx context.Context, localPath, identifier string, metadata domain.Metadata) error {
	if f.uploadFn != nil {
		if err := f.uploadFn(identifier); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[identifier] = localPath
	return nil
}

func (f *fakeArchive) Download(ctx context.Context, identifier, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.uploads[identifier]
	if !ok {
		return "", os.ErrNotExist
	}
	return path, nil
}

func testDiario(url string) *domain.Diario {
	return domain.NewDiario("tjro", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), url)
}

func TestDownloadStoresFileAndHash(t *testing.T) {
	content := []byte("%PDF-1.7 fake gazette content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dl := NewHTTPDownloader("tjro", t.TempDir(), newFakeArchive(), discardLogger())
	dl.client = srv.Client()

	d := testDiario(srv.URL + "/dj-2026-08-20.pdf")
	if err := dl.Download(context.Background(), d); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if d.Status != domain.DiarioDownloaded {
		t.Errorf("status = %s, want downloaded", d.Status)
	}
	if d.Filename != "dj-2026-08-20.pdf" {
		t.Errorf("filename = %q", d.Filename)
	}

	sum := sha256.Sum256(content)
	if d.ContentHash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %q", d.ContentHash)
	}

	stored, err := os.ReadFile(d.LocalPath)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(stored) != string(content) {
		t.Error("stored content differs from served content")
	}
}

func TestDownloadRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dl := NewHTTPDownloader("tjro", t.TempDir(), newFakeArchive(), discardLogger())
	dl.client = srv.Client()

	d := testDiario(srv.URL + "/dj.pdf")
	if err := dl.Download(context.Background(), d); err == nil {
		t.Fatal("expected error on 503")
	}
	if d.Status != domain.DiarioPending {
		t.Errorf("status = %s, want pending (unchanged)", d.Status)
	}
}

func TestDownloadRequiresURL(t *testing.T) {
	dl := NewHTTPDownloader("tjro", t.TempDir(), newFakeArchive(), discardLogger())
	d := testDiario("")
	if err := dl.Download(context.Background(), d); err != domain.ErrMissingURL {
		t.Errorf("err = %v, want ErrMissingURL", err)
	}
}

func TestArchiveUploadsLocalCopy(t *testing.T) {
	archive := newFakeArchive()
	dl := NewHTTPDownloader("tjro", t.TempDir(), archive, discardLogger())

	local := t.TempDir() + "/dj.pdf"
	os.WriteFile(local, []byte("content"), 0o644)

	d := testDiario("https://tjro.jus.br/dj.pdf")
	d.MarkDownloaded(local, "hash")

	if err := dl.Archive(context.Background(), d); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if d.Status != domain.DiarioArchived {
		t.Errorf("status = %s, want archived", d.Status)
	}
	if d.ArchiveIdentifier != "tjro-2026-08-20" {
		t.Errorf("identifier = %q", d.ArchiveIdentifier)
	}
	if archive.uploads["tjro-2026-08-20"] != local {
		t.Errorf("uploads = %v", archive.uploads)
	}
}

func TestArchiveWithoutLocalCopy(t *testing.T) {
	dl := NewHTTPDownloader("tjro", t.TempDir(), newFakeArchive(), discardLogger())
	d := testDiario("https://tjro.jus.br/dj.pdf")
	if err := dl.Archive(context.Background(), d); err == nil {
		t.Error("expected error without local copy")
	}
}

func TestFilenameFromURL(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.jus.br/downloads/dj-157.pdf", "dj-157.pdf"},
		{"https://x.jus.br/recuperar-diario.php?data=2026-08-20", "diario-2026-08-20.pdf"},
		{"https://x.jus.br/", "diario-2026-08-20.pdf"},
	}
	for _, tt := range tests {
		if got := filenameFromURL(tt.url, date); got != tt.want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
