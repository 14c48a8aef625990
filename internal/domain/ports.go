package domain

import (
	"context"
	"time"
)

// QueueRepository is the driven port for work-item persistence. Exactly one
// component (the queue processor) mutates a given item's status, and it does
// so only through UpdateStatus so attempts and timestamps stay consistent.
type QueueRepository interface {
	Enqueue(ctx context.Context, item WorkItem) (*WorkItem, error)
	Get(ctx context.Context, id int64) (*WorkItem, error)
	FindPending(ctx context.Context, limit int) ([]WorkItem, error)
	Claim(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status WorkStatus, errMsg string) error
	RecoverStale(ctx context.Context) (int64, error)
}

// DiarioRepository persists gazette entities across pipeline stages.
type DiarioRepository interface {
	Save(ctx context.Context, d *Diario) (*Diario, error)
	Get(ctx context.Context, id int64) (*Diario, error)
	FindBySourceAndDate(ctx context.Context, sourceCode string, date time.Time) (*Diario, error)
	Update(ctx context.Context, d *Diario) error
}

// DecisionRepository persists extracted decision payloads.
type DecisionRepository interface {
	SaveAll(ctx context.Context, diarioID int64, decisions []Decision) error
	FindByDiario(ctx context.Context, diarioID int64) ([]Decision, error)
}

// Discovery resolves gazette URLs for one source. URLForDate is a pure
// function of the date; LatestURL may consult the source's publication
// index but performs no download.
type Discovery interface {
	SourceCode() string
	URLForDate(date time.Time) (string, error)
	LatestURL(ctx context.Context) (string, error)
}

// Downloader retrieves gazette content and ships it to the archival
// service. Download sets LocalPath and ContentHash and advances the status;
// Archive uploads the local copy and records the archive identifier.
type Downloader interface {
	Download(ctx context.Context, d *Diario) error
	Archive(ctx context.Context, d *Diario) error
}

// Analyzer extracts zero or more decision records from a downloaded
// gazette.
type Analyzer interface {
	Analyze(ctx context.Context, d *Diario) ([]Decision, error)
}

// ArchiveClient is the boundary to the archival collaborator.
type ArchiveClient interface {
	Upload(ctx context.Context, localPath, identifier string, metadata Metadata) error
	Download(ctx context.Context, identifier, dir string) (string, error)
}
