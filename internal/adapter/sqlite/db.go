// Package sqlite persists queue and gazette state in a single SQLite
// database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"gazeta/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS download_queue (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    reference     TEXT NOT NULL,
    date          DATETIME,
    status        TEXT NOT NULL DEFAULT 'pending',
    priority      INTEGER NOT NULL DEFAULT 0,
    attempts      INTEGER NOT NULL DEFAULT 0,
    last_attempt  DATETIME,
    error_message TEXT,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_download_queue_status ON download_queue(status);

CREATE TABLE IF NOT EXISTS analysis_queue (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    reference     TEXT NOT NULL,
    date          DATETIME,
    status        TEXT NOT NULL DEFAULT 'pending',
    priority      INTEGER NOT NULL DEFAULT 0,
    attempts      INTEGER NOT NULL DEFAULT 0,
    last_attempt  DATETIME,
    error_message TEXT,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_analysis_queue_status ON analysis_queue(status);

CREATE TABLE IF NOT EXISTS diarios (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    source_code        TEXT NOT NULL,
    reference_date     DATETIME NOT NULL,
    url                TEXT NOT NULL,
    filename           TEXT,
    content_hash       TEXT,
    local_path         TEXT,
    archive_identifier TEXT,
    status             TEXT NOT NULL DEFAULT 'pending',
    metadata           TEXT NOT NULL DEFAULT '{}',
    created_at         DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_code, reference_date)
);

CREATE TABLE IF NOT EXISTS decisions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    diario_id  INTEGER NOT NULL REFERENCES diarios(id),
    payload    TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_diario ON decisions(diario_id);
`

// Queue table names, one per queue kind.
const (
	TableDownloadQueue = "download_queue"
	TableAnalysisQueue = "analysis_queue"
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// DB wraps the shared SQLite handle. One handle serves every store in the
// process.
type DB struct {
	db *sql.DB
}

// Open connects to the database at path, applies pragmas and initializes
// the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func marshalMetadata(m domain.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(raw), nil
}

func unmarshalMetadata(raw string) (domain.Metadata, error) {
	if raw == "" {
		return domain.Metadata{}, nil
	}
	var m domain.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}
