package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"gazeta/internal/adapter/source"
	"gazeta/internal/domain"
	"gazeta/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeQueue implements domain.QueueRepository in memory.
type fakeQueue struct {
	mu      sync.Mutex
	items   map[int64]*domain.WorkItem
	nextID  int64
	findErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(map[int64]*domain.WorkItem), nextID: 1}
}

func (q *fakeQueue) Enqueue(ctx context.Context, item domain.WorkItem) (*domain.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item.ID = q.nextID
	item.Status = domain.StatusPending
	q.items[item.ID] = &item
	q.nextID++
	stored := item
	return &stored, nil
}

func (q *fakeQueue) Get(ctx context.Context, id int64) (*domain.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (q *fakeQueue) FindPending(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.findErr != nil {
		return nil, q.findErr
	}
	var pending []domain.WorkItem
	for _, item := range q.items {
		if item.Status == domain.StatusPending {
			pending = append(pending, *item)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (q *fakeQueue) Claim(ctx context.Context, id int64) error {
	return q.UpdateStatus(ctx, id, domain.StatusProcessing, "")
}

func (q *fakeQueue) UpdateStatus(ctx context.Context, id int64, status domain.WorkStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	if status == domain.StatusProcessing {
		if item.Status != domain.StatusPending {
			return domain.ErrItemNotFound
		}
		item.Attempts++
	}
	item.Status = status
	item.Error = errMsg
	return nil
}

func (q *fakeQueue) RecoverStale(ctx context.Context) (int64, error) {
	return 0, nil
}

// fakeDiarios implements domain.DiarioRepository in memory.
type fakeDiarios struct {
	mu     sync.Mutex
	byID   map[int64]*domain.Diario
	nextID int64
}

func newFakeDiarios() *fakeDiarios {
	return &fakeDiarios{byID: make(map[int64]*domain.Diario), nextID: 1}
}

func (r *fakeDiarios) Save(ctx context.Context, d *domain.Diario) (*domain.Diario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.SourceCode == d.SourceCode && existing.ReferenceDate.Equal(d.ReferenceDate) {
			cp := *existing
			return &cp, nil
		}
	}
	cp := *d
	cp.ID = r.nextID
	r.byID[cp.ID] = &cp
	r.nextID++
	out := cp
	return &out, nil
}

func (r *fakeDiarios) Get(ctx context.Context, id int64) (*domain.Diario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrDiarioNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDiarios) FindBySourceAndDate(ctx context.Context, sourceCode string, date time.Time) (*domain.Diario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byID {
		if d.SourceCode == sourceCode && d.ReferenceDate.Equal(date) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrDiarioNotFound
}

func (r *fakeDiarios) Update(ctx context.Context, d *domain.Diario) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[d.ID]; !ok {
		return domain.ErrDiarioNotFound
	}
	cp := *d
	r.byID[d.ID] = &cp
	return nil
}

// fakeDecisions implements domain.DecisionRepository in memory.
type fakeDecisions struct {
	mu    sync.Mutex
	saved map[int64][]domain.Decision
}

func newFakeDecisions() *fakeDecisions {
	return &fakeDecisions{saved: make(map[int64][]domain.Decision)}
}

func (r *fakeDecisions) SaveAll(ctx context.Context, diarioID int64, decisions []domain.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[diarioID] = append(r.saved[diarioID], decisions...)
	return nil
}

func (r *fakeDecisions) FindByDiario(ctx context.Context, diarioID int64) ([]domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[diarioID], nil
}

// flakyQueue fails the first enqueueFails Enqueue calls, then delegates.
type flakyQueue struct {
	*fakeQueue
	enqueueFails int
}

func (q *flakyQueue) Enqueue(ctx context.Context, item domain.WorkItem) (*domain.WorkItem, error) {
	if q.enqueueFails > 0 {
		q.enqueueFails--
		return nil, errors.New("database is locked")
	}
	return q.fakeQueue.Enqueue(ctx, item)
}

type stubDownloader struct {
	downloadErr error
	archiveErr  error
	downloads   int
}

func (s *stubDownloader) Download(ctx context.Context, d *domain.Diario) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloads++
	d.Filename = "dj.pdf"
	d.MarkDownloaded("/tmp/dj.pdf", "hash")
	return nil
}

func (s *stubDownloader) Archive(ctx context.Context, d *domain.Diario) error {
	if s.archiveErr != nil {
		return s.archiveErr
	}
	d.MarkArchived(d.DefaultArchiveIdentifier())
	return nil
}

type stubAnalyzer struct {
	decisions []domain.Decision
	err       error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, d *domain.Diario) ([]domain.Decision, error) {
	return s.decisions, s.err
}

func testRegistry(dl *stubDownloader, an *stubAnalyzer) *source.Registry {
	reg := source.NewRegistry()
	reg.Register("tjro", func() *source.Adapter {
		return &source.Adapter{
			Code: "tjro",
			Discovery: source.NewTemplateDiscovery(source.TemplateConfig{
				Code:        "tjro",
				URLTemplate: "https://tjro.jus.br/dj/{date}.pdf",
			}, nil),
			Downloader: dl,
			Analyzer:   an,
		}
	})
	return reg
}

func downloadItem(q *fakeQueue, date string) *domain.WorkItem {
	item, _ := q.Enqueue(context.Background(), domain.WorkItem{
		Reference: "https://tjro.jus.br/dj/" + date + ".pdf",
		Metadata: domain.Metadata{
			domain.MetaSource: "tjro",
			domain.MetaDate:   date,
			domain.MetaURL:    "https://tjro.jus.br/dj/" + date + ".pdf",
		},
	})
	return item
}

func TestDownloadProcessorHappyPath(t *testing.T) {
	downloadQ := newFakeQueue()
	analysisQ := newFakeQueue()
	diarios := newFakeDiarios()
	reg := testRegistry(&stubDownloader{}, &stubAnalyzer{})

	downloadItem(downloadQ, "2026-08-20")

	proc := NewDownloadProcessor(downloadQ, analysisQ, diarios, reg, 3, discardLogger())
	res, err := queue.NewRunner(proc, discardLogger()).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result: %+v", res)
	}

	d, err := diarios.FindBySourceAndDate(context.Background(), "tjro",
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("diario not saved: %v", err)
	}
	if d.Status != domain.DiarioDownloaded {
		t.Errorf("diario status = %s, want downloaded", d.Status)
	}

	next, _ := analysisQ.FindPending(context.Background(), 10)
	if len(next) != 1 {
		t.Fatalf("analysis queue has %d items, want 1", len(next))
	}
	if next[0].Metadata[domain.MetaDiarioID] != strconv.FormatInt(d.ID, 10) {
		t.Errorf("analysis item metadata: %v", next[0].Metadata)
	}
}

func TestDownloadProcessorRetriesTransientFailure(t *testing.T) {
	downloadQ := newFakeQueue()
	reg := testRegistry(&stubDownloader{downloadErr: errors.New("connection reset")}, &stubAnalyzer{})

	item := downloadItem(downloadQ, "2026-08-20")

	proc := NewDownloadProcessor(downloadQ, newFakeQueue(), newFakeDiarios(), reg, 3, discardLogger())
	runner := queue.NewRunner(proc, discardLogger())

	res, err := runner.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Retried != 1 {
		t.Fatalf("result: %+v", res)
	}
	got, _ := downloadQ.Get(context.Background(), item.ID)
	if got.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestDownloadProcessorUnknownSourceEventuallyFails(t *testing.T) {
	downloadQ := newFakeQueue()
	reg := source.NewRegistry() // nothing registered

	item, _ := downloadQ.Enqueue(context.Background(), domain.WorkItem{
		Reference: "https://x.jus.br/dj.pdf",
		Metadata: domain.Metadata{
			domain.MetaSource: "tjxx",
			domain.MetaDate:   "2026-08-20",
			domain.MetaURL:    "https://x.jus.br/dj.pdf",
		},
	})

	proc := NewDownloadProcessor(downloadQ, newFakeQueue(), newFakeDiarios(), reg, 2, discardLogger())
	runner := queue.NewRunner(proc, discardLogger())
	for i := 0; i < 2; i++ {
		if _, err := runner.RunBatch(context.Background(), 10); err != nil {
			t.Fatalf("RunBatch: %v", err)
		}
	}

	got, _ := downloadQ.Get(context.Background(), item.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestDownloadProcessorValidatesMetadata(t *testing.T) {
	downloadQ := newFakeQueue()
	downloadQ.Enqueue(context.Background(), domain.WorkItem{
		Reference: "no-metadata",
		Metadata:  domain.Metadata{},
	})

	proc := NewDownloadProcessor(downloadQ, newFakeQueue(), newFakeDiarios(),
		testRegistry(&stubDownloader{}, &stubAnalyzer{}), 3, discardLogger())
	res, err := queue.NewRunner(proc, discardLogger()).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Retried != 1 {
		t.Errorf("validation error should follow the retry policy: %+v", res)
	}
}

func TestDownloadProcessorRetriesAnalysisEnqueue(t *testing.T) {
	downloadQ := newFakeQueue()
	analysisQ := &flakyQueue{fakeQueue: newFakeQueue(), enqueueFails: 1}
	diarios := newFakeDiarios()
	dl := &stubDownloader{}
	reg := testRegistry(dl, &stubAnalyzer{})

	item := downloadItem(downloadQ, "2026-08-20")

	proc := NewDownloadProcessor(downloadQ, analysisQ, diarios, reg, 3, discardLogger())
	runner := queue.NewRunner(proc, discardLogger())

	// First attempt: download persists, the analysis enqueue fails, the
	// item goes back to pending.
	res, err := runner.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Retried != 1 {
		t.Fatalf("result: %+v", res)
	}
	d, err := diarios.FindBySourceAndDate(context.Background(), "tjro",
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("diario not saved: %v", err)
	}
	if d.Status != domain.DiarioDownloaded {
		t.Fatalf("diario status = %s, want downloaded", d.Status)
	}

	// Second attempt resumes at the enqueue without downloading again.
	res, err = runner.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result: %+v", res)
	}
	if dl.downloads != 1 {
		t.Errorf("downloads = %d, want 1", dl.downloads)
	}

	got, _ := downloadQ.Get(context.Background(), item.ID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("item status = %s, want completed", got.Status)
	}
	next, _ := analysisQ.FindPending(context.Background(), 10)
	if len(next) != 1 {
		t.Fatalf("analysis queue has %d items, want 1", len(next))
	}
	if next[0].Metadata[domain.MetaDiarioID] != strconv.FormatInt(d.ID, 10) {
		t.Errorf("analysis item metadata: %v", next[0].Metadata)
	}
}

func TestAnalysisProcessorAnalyzesAndArchives(t *testing.T) {
	analysisQ := newFakeQueue()
	diarios := newFakeDiarios()
	decisions := newFakeDecisions()

	d, _ := diarios.Save(context.Background(), domain.NewDiario("tjro",
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), "https://tjro.jus.br/dj.pdf"))
	d.MarkDownloaded("/tmp/dj.pdf", "hash")
	diarios.Update(context.Background(), d)

	analysisQ.Enqueue(context.Background(), domain.WorkItem{
		Reference: d.URL,
		Metadata: domain.Metadata{
			domain.MetaSource:   "tjro",
			domain.MetaDiarioID: strconv.FormatInt(d.ID, 10),
		},
	})

	extracted := []domain.Decision{{Payload: []byte(`{"case":"0001"}`)}}
	proc := NewAnalysisProcessor(analysisQ, diarios, decisions,
		testRegistry(&stubDownloader{}, &stubAnalyzer{decisions: extracted}), 3, discardLogger())

	res, err := queue.NewRunner(proc, discardLogger()).RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("result: %+v", res)
	}

	got, _ := diarios.Get(context.Background(), d.ID)
	if got.Status != domain.DiarioArchived {
		t.Errorf("diario status = %s, want archived", got.Status)
	}
	if got.ArchiveIdentifier != "tjro-2026-08-20" {
		t.Errorf("identifier = %q", got.ArchiveIdentifier)
	}

	saved, _ := decisions.FindByDiario(context.Background(), d.ID)
	if len(saved) != 1 {
		t.Errorf("saved %d decisions, want 1", len(saved))
	}
}

func TestAnalysisProcessorResumesAfterArchiveFailure(t *testing.T) {
	analysisQ := newFakeQueue()
	diarios := newFakeDiarios()
	decisions := newFakeDecisions()

	d, _ := diarios.Save(context.Background(), domain.NewDiario("tjro",
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), "https://tjro.jus.br/dj.pdf"))
	d.MarkDownloaded("/tmp/dj.pdf", "hash")
	diarios.Update(context.Background(), d)

	analysisQ.Enqueue(context.Background(), domain.WorkItem{
		Reference: d.URL,
		Metadata:  domain.Metadata{domain.MetaDiarioID: strconv.FormatInt(d.ID, 10)},
	})

	dl := &stubDownloader{archiveErr: errors.New("archive unavailable")}
	proc := NewAnalysisProcessor(analysisQ, diarios, decisions,
		testRegistry(dl, &stubAnalyzer{}), 3, discardLogger())
	runner := queue.NewRunner(proc, discardLogger())

	// First attempt: analysis succeeds, archive fails, item retries.
	res, err := runner.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Retried != 1 {
		t.Fatalf("result: %+v", res)
	}
	got, _ := diarios.Get(context.Background(), d.ID)
	if got.Status != domain.DiarioAnalyzed {
		t.Fatalf("diario status = %s, want analyzed", got.Status)
	}

	// Second attempt resumes at the archive step only.
	dl.archiveErr = nil
	if _, err := runner.RunBatch(context.Background(), 10); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	got, _ = diarios.Get(context.Background(), d.ID)
	if got.Status != domain.DiarioArchived {
		t.Errorf("diario status = %s, want archived", got.Status)
	}
}

func TestFetchRangeSkipsMissingEditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The 21st has no published edition.
		if r.URL.Path == "/dj/2026-08-21.pdf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("pdf"))
	}))
	defer srv.Close()

	diarios := newFakeDiarios()
	reg := source.NewRegistry()
	reg.Register("tjro", func() *source.Adapter {
		return &source.Adapter{
			Code: "tjro",
			Discovery: source.NewTemplateDiscovery(source.TemplateConfig{
				Code:        "tjro",
				URLTemplate: srv.URL + "/dj/{date}.pdf",
			}, srv.Client()),
			Downloader: &stubDownloader{},
		}
	})

	f := NewFetcher(reg, diarios, 2, discardLogger())
	f.headClient = srv.Client()

	from := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	res, err := f.FetchRange(context.Background(), "tjro", from, to)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if res.Total != 3 || res.Succeeded != 2 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("result: %+v", res)
	}
}

func TestFetchRangeUnknownSource(t *testing.T) {
	f := NewFetcher(source.NewRegistry(), newFakeDiarios(), 2, discardLogger())
	_, err := f.FetchRange(context.Background(), "tjxx", time.Now(), time.Now())
	var unknown *domain.UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Errorf("err = %v, want UnknownSourceError", err)
	}
}

func TestPollContinuesPastFailingQueue(t *testing.T) {
	downloadQ := newFakeQueue()
	downloadQ.findErr = errors.New("disk I/O error")

	analysisQ := newFakeQueue()
	diarios := newFakeDiarios()
	decisions := newFakeDecisions()
	reg := testRegistry(&stubDownloader{}, &stubAnalyzer{})

	d, _ := diarios.Save(context.Background(), domain.NewDiario("tjro",
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), "https://tjro.jus.br/dj.pdf"))
	d.MarkDownloaded("/tmp/dj.pdf", "hash")
	diarios.Update(context.Background(), d)
	item, _ := analysisQ.Enqueue(context.Background(), domain.WorkItem{
		Reference: d.URL,
		Metadata:  domain.Metadata{domain.MetaDiarioID: strconv.FormatInt(d.ID, 10)},
	})

	download := queue.NewRunner(NewDownloadProcessor(downloadQ, analysisQ, diarios, reg, 3, discardLogger()), discardLogger())
	analysis := queue.NewRunner(NewAnalysisProcessor(analysisQ, diarios, decisions, reg, 3, discardLogger()), discardLogger())
	w := New(download, analysis, time.Minute, 10, discardLogger())

	// The download queue's fetch error must not keep the analysis queue
	// from getting its batch in the same tick.
	w.poll(context.Background())

	got, _ := analysisQ.Get(context.Background(), item.ID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("analysis item status = %s, want completed", got.Status)
	}
}

func TestWorkerRunDrainsQueuesUntilCancelled(t *testing.T) {
	downloadQ := newFakeQueue()
	diarios := newFakeDiarios()
	reg := testRegistry(&stubDownloader{}, &stubAnalyzer{})
	for i := 0; i < 3; i++ {
		downloadItem(downloadQ, fmt.Sprintf("2026-08-%02d", 18+i))
	}

	analysisQ := newFakeQueue()
	download := queue.NewRunner(NewDownloadProcessor(downloadQ, analysisQ, diarios, reg, 3, discardLogger()), discardLogger())
	analysis := queue.NewRunner(NewAnalysisProcessor(analysisQ, diarios, newFakeDecisions(), reg, 3, discardLogger()), discardLogger())

	w := New(download, analysis, 10*time.Millisecond, 10, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		items, _ := downloadQ.FindPending(context.Background(), 10)
		if len(items) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("download queue never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
