package domain

import (
	"context"
	"net/url"
	"time"
)

// QueueService orchestrates work-item submission and inspection on top of a
// queue repository.
type QueueService struct {
	repo QueueRepository
}

// NewQueueService creates a new QueueService.
func NewQueueService(repo QueueRepository) *QueueService {
	return &QueueService{repo: repo}
}

// Submit enqueues a pending work item for the given gazette URL.
func (s *QueueService) Submit(ctx context.Context, sourceCode string, date time.Time, rawURL string, priority int) (*WorkItem, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, ErrInvalidURL
	}
	item := WorkItem{
		Reference: rawURL,
		Date:      date,
		Status:    StatusPending,
		Priority:  priority,
		Metadata: Metadata{
			MetaSource: sourceCode,
			MetaDate:   date.Format("2006-01-02"),
			MetaURL:    rawURL,
		},
	}
	return s.repo.Enqueue(ctx, item)
}

// Get retrieves a work item by ID.
func (s *QueueService) Get(ctx context.Context, id int64) (*WorkItem, error) {
	return s.repo.Get(ctx, id)
}

// GetPending retrieves pending work items up to the limit.
func (s *QueueService) GetPending(ctx context.Context, limit int) ([]WorkItem, error) {
	return s.repo.FindPending(ctx, limit)
}

// RecoverStale resets items stuck in processing (crash recovery).
func (s *QueueService) RecoverStale(ctx context.Context) (int64, error) {
	return s.repo.RecoverStale(ctx)
}
