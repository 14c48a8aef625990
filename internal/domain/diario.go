package domain

import (
	"fmt"
	"time"
)

// DiarioStatus represents the lifecycle state of a gazette edition.
type DiarioStatus string

const (
	DiarioPending    DiarioStatus = "pending"
	DiarioDownloaded DiarioStatus = "downloaded"
	DiarioAnalyzed   DiarioStatus = "analyzed"
	DiarioArchived   DiarioStatus = "archived"
	DiarioFailed     DiarioStatus = "failed"
)

// Diario represents one official-gazette edition moving through the
// discovery → download → analysis → archival pipeline.
type Diario struct {
	ID                int64
	SourceCode        string
	ReferenceDate     time.Time
	URL               string
	Filename          string
	ContentHash       string
	LocalPath         string
	ArchiveIdentifier string
	Status            DiarioStatus
	Metadata          Metadata
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDiario builds a pending gazette entity for a resolved URL.
func NewDiario(sourceCode string, referenceDate time.Time, url string) *Diario {
	return &Diario{
		SourceCode:    sourceCode,
		ReferenceDate: referenceDate,
		URL:           url,
		Status:        DiarioPending,
		Metadata:      Metadata{},
	}
}

// MarkDownloaded records the local copy produced by a downloader.
func (d *Diario) MarkDownloaded(localPath, contentHash string) {
	d.LocalPath = localPath
	d.ContentHash = contentHash
	d.Status = DiarioDownloaded
}

// MarkAnalyzed records that decision extraction finished.
func (d *Diario) MarkAnalyzed() {
	d.Status = DiarioAnalyzed
}

// MarkArchived records the identifier assigned by the archival service.
func (d *Diario) MarkArchived(identifier string) {
	d.ArchiveIdentifier = identifier
	d.Status = DiarioArchived
}

// MarkFailed parks the gazette in the terminal failed state.
func (d *Diario) MarkFailed() {
	d.Status = DiarioFailed
}

// DefaultArchiveIdentifier derives a stable remote identifier from the
// source code and reference date.
func (d *Diario) DefaultArchiveIdentifier() string {
	return fmt.Sprintf("%s-%s", d.SourceCode, d.ReferenceDate.Format("2006-01-02"))
}

// Decision is one extracted judicial decision. The payload structure is
// owned by the extraction service; the pipeline treats it as opaque JSON.
type Decision struct {
	ID        int64
	DiarioID  int64
	Payload   []byte
	CreatedAt time.Time
}
