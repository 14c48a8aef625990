package domain

import "time"

// WorkStatus represents the processing state of a queued work item.
type WorkStatus string

const (
	StatusPending    WorkStatus = "pending"
	StatusProcessing WorkStatus = "processing"
	StatusCompleted  WorkStatus = "completed"
	StatusFailed     WorkStatus = "failed"
)

// Terminal reports whether the status never transitions again.
func (s WorkStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Metadata is the source-specific payload carried by a work item. It is
// opaque to the queue machinery and serialized as a JSON object.
type Metadata map[string]string

// Well-known metadata keys used by the built-in queue processors.
const (
	MetaSource    = "source"
	MetaDate      = "date"
	MetaURL       = "url"
	MetaDiarioID  = "diario_id"
	MetaLocalPath = "local_path"
)

// Clone returns a copy so callers can mutate without aliasing.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WorkItem is one persisted unit of queued work with retry bookkeeping.
type WorkItem struct {
	ID          int64
	Reference   string
	Date        time.Time
	Status      WorkStatus
	Priority    int
	Attempts    int
	LastAttempt *time.Time
	Error       string
	Metadata    Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanRetry returns true if the item may be sent back to pending after a
// failed attempt. attempts counts the attempt that just failed.
func (i *WorkItem) CanRetry(maxAttempts int) bool {
	return i.Attempts < maxAttempts && !i.Status.Terminal()
}
