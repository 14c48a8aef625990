package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gazeta/internal/domain"
)

var diarioColumns = []string{
	"id", "source_code", "reference_date", "url",
	"COALESCE(filename, '')", "COALESCE(content_hash, '')",
	"COALESCE(local_path, '')", "COALESCE(archive_identifier, '')",
	"status", "metadata", "created_at", "updated_at",
}

// DiarioStore implements domain.DiarioRepository.
type DiarioStore struct {
	db *sql.DB
}

// NewDiarioStore creates a gazette store over the shared handle.
func NewDiarioStore(db *DB) *DiarioStore {
	return &DiarioStore{db: db.db}
}

var _ domain.DiarioRepository = (*DiarioStore)(nil)

// Save inserts a gazette entity. The (source_code, reference_date) pair is
// unique; saving an existing pair returns the stored row unchanged.
func (s *DiarioStore) Save(ctx context.Context, d *domain.Diario) (*domain.Diario, error) {
	if existing, err := s.FindBySourceAndDate(ctx, d.SourceCode, d.ReferenceDate); err == nil {
		return existing, nil
	} else if err != domain.ErrDiarioNotFound {
		return nil, err
	}

	meta, err := marshalMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	query, args, err := builder.
		Insert("diarios").
		Columns("source_code", "reference_date", "url", "filename", "content_hash",
			"local_path", "archive_identifier", "status", "metadata", "created_at", "updated_at").
		Values(d.SourceCode, d.ReferenceDate, d.URL, nullable(d.Filename),
			nullable(d.ContentHash), nullable(d.LocalPath), nullable(d.ArchiveIdentifier),
			d.Status, meta, now, now).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert diario: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves a gazette by ID.
func (s *DiarioStore) Get(ctx context.Context, id int64) (*domain.Diario, error) {
	query, args, err := builder.
		Select(diarioColumns...).
		From("diarios").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return scanDiario(s.db.QueryRowContext(ctx, query, args...))
}

// FindBySourceAndDate retrieves the gazette for one source edition.
func (s *DiarioStore) FindBySourceAndDate(ctx context.Context, sourceCode string, date time.Time) (*domain.Diario, error) {
	query, args, err := builder.
		Select(diarioColumns...).
		From("diarios").
		Where(sq.Eq{"source_code": sourceCode, "reference_date": date}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return scanDiario(s.db.QueryRowContext(ctx, query, args...))
}

// Update persists the mutable pipeline fields of a gazette.
func (s *DiarioStore) Update(ctx context.Context, d *domain.Diario) error {
	meta, err := marshalMetadata(d.Metadata)
	if err != nil {
		return err
	}

	query, args, err := builder.
		Update("diarios").
		Set("url", d.URL).
		Set("filename", nullable(d.Filename)).
		Set("content_hash", nullable(d.ContentHash)).
		Set("local_path", nullable(d.LocalPath)).
		Set("archive_identifier", nullable(d.ArchiveIdentifier)).
		Set("status", d.Status).
		Set("metadata", meta).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": d.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update diario: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDiarioNotFound
	}
	return nil
}

func scanDiario(row rowScanner) (*domain.Diario, error) {
	var (
		d      domain.Diario
		status string
		meta   string
	)
	err := row.Scan(&d.ID, &d.SourceCode, &d.ReferenceDate, &d.URL,
		&d.Filename, &d.ContentHash, &d.LocalPath, &d.ArchiveIdentifier,
		&status, &meta, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrDiarioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan diario: %w", err)
	}
	d.Status = domain.DiarioStatus(status)
	d.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DecisionStore implements domain.DecisionRepository.
type DecisionStore struct {
	db *sql.DB
}

// NewDecisionStore creates a decision store over the shared handle.
func NewDecisionStore(db *DB) *DecisionStore {
	return &DecisionStore{db: db.db}
}

var _ domain.DecisionRepository = (*DecisionStore)(nil)

// SaveAll persists the extracted decisions for one gazette in a single
// transaction.
func (s *DecisionStore) SaveAll(ctx context.Context, diarioID int64, decisions []domain.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, dec := range decisions {
		query, args, err := builder.
			Insert("decisions").
			Columns("diario_id", "payload", "created_at").
			Values(diarioID, string(dec.Payload), now).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
	}
	return tx.Commit()
}

// FindByDiario returns the stored decisions for one gazette.
func (s *DecisionStore) FindByDiario(ctx context.Context, diarioID int64) ([]domain.Decision, error) {
	query, args, err := builder.
		Select("id", "diario_id", "payload", "created_at").
		From("decisions").
		Where(sq.Eq{"diario_id": diarioID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var dec domain.Decision
		var payload string
		if err := rows.Scan(&dec.ID, &dec.DiarioID, &payload, &dec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		dec.Payload = []byte(payload)
		decisions = append(decisions, dec)
	}
	return decisions, rows.Err()
}
