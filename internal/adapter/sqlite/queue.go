package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gazeta/internal/domain"
)

var queueColumns = []string{
	"id", "reference", "date", "status", "priority", "attempts",
	"last_attempt", "COALESCE(error_message, '')", "metadata",
	"created_at", "updated_at",
}

// QueueStore implements domain.QueueRepository over one queue table.
type QueueStore struct {
	db    *sql.DB
	table string
}

// NewQueueStore creates a store bound to the given queue table.
func NewQueueStore(db *DB, table string) *QueueStore {
	return &QueueStore{db: db.db, table: table}
}

var _ domain.QueueRepository = (*QueueStore)(nil)

// Enqueue inserts a new pending work item.
func (s *QueueStore) Enqueue(ctx context.Context, item domain.WorkItem) (*domain.WorkItem, error) {
	meta, err := marshalMetadata(item.Metadata)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	query, args, err := builder.
		Insert(s.table).
		Columns("reference", "date", "status", "priority", "metadata", "created_at", "updated_at").
		Values(item.Reference, item.Date, domain.StatusPending, item.Priority, meta, now, now).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves a work item by ID.
func (s *QueueStore) Get(ctx context.Context, id int64) (*domain.WorkItem, error) {
	query, args, err := builder.
		Select(queueColumns...).
		From(s.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return scanItem(s.db.QueryRowContext(ctx, query, args...))
}

// FindPending returns pending items ordered by priority desc, id asc.
func (s *QueueStore) FindPending(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	query, args, err := builder.
		Select(queueColumns...).
		From(s.table).
		Where(sq.Eq{"status": domain.StatusPending}).
		OrderBy("priority DESC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Claim moves a pending item to processing, counting the attempt and
// stamping last_attempt. Claiming an item that is not pending fails with
// ErrItemNotFound so two runners cannot process the same item.
func (s *QueueStore) Claim(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, domain.StatusProcessing, "")
}

// UpdateStatus is the single entry point for status transitions. The
// processing transition carries the attempts increment; every transition
// refreshes updated_at and the error message.
func (s *QueueStore) UpdateStatus(ctx context.Context, id int64, status domain.WorkStatus, errMsg string) error {
	now := time.Now().UTC()

	update := builder.Update(s.table).
		Set("status", status).
		Set("error_message", nullable(errMsg)).
		Set("updated_at", now)

	if status == domain.StatusProcessing {
		update = update.
			Set("attempts", sq.Expr("attempts + 1")).
			Set("last_attempt", now).
			Where(sq.Eq{"id": id, "status": domain.StatusPending})
	} else {
		update = update.Where(sq.Eq{"id": id})
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// RecoverStale resets all processing items back to pending (crash
// recovery at startup).
func (s *QueueStore) RecoverStale(ctx context.Context) (int64, error) {
	query, args, err := builder.Update(s.table).
		Set("status", domain.StatusPending).
		Set("error_message", "recovered after restart").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"status": domain.StatusProcessing}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("recover stale: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns item counts keyed by status, for status reporting.
func (s *QueueStore) CountByStatus(ctx context.Context) (map[domain.WorkStatus]int, error) {
	query, args, err := builder.
		Select("status", "COUNT(*)").
		From(s.table).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.WorkStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.WorkStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.WorkItem, error) {
	var (
		item        domain.WorkItem
		status      string
		date        sql.NullTime
		lastAttempt sql.NullTime
		meta        string
	)
	err := row.Scan(&item.ID, &item.Reference, &date, &status, &item.Priority,
		&item.Attempts, &lastAttempt, &item.Error, &meta,
		&item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan work item: %w", err)
	}
	item.Status = domain.WorkStatus(status)
	if date.Valid {
		item.Date = date.Time
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		item.LastAttempt = &t
	}
	item.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
