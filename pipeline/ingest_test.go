package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"newskeep/ai"
	"newskeep/store"
	"newskeep/types"
)

type fakeStore struct {
	mu sync.Mutex

	article      *types.Article
	claimOutcome store.ClaimOutcome

	retryCount   int
	finalizeErr  error
	resolvedID   int64
	resolveErr   error
	failedReason string
	finalized    *types.Article
	retried      []string
	resolved     bool
}

func (f *fakeStore) Claim(_ context.Context, id int64) (*types.Article, store.ClaimOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimOutcome != store.Claimed {
		return nil, f.claimOutcome, nil
	}
	copied := *f.article
	return &copied, store.Claimed, nil
}

func (f *fakeStore) RecordRetry(_ context.Context, id int64, reason string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryCount++
	f.retried = append(f.retried, reason)
	return f.retryCount, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedReason = reason
	return nil
}

func (f *fakeStore) FinalizeFetch(_ context.Context, a *types.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	copied := *a
	f.finalized = &copied
	return nil
}

func (f *fakeStore) ResolveDuplicate(_ context.Context, dup *types.Article) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return 0, f.resolveErr
	}
	f.resolved = true
	return f.resolvedID, nil
}

type fakeFetcher struct {
	result types.FetchResult
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) types.FetchResult {
	f.calls++
	return f.result
}

type fakeQueue struct {
	mu               sync.Mutex
	ingested         []int64
	delayed          []int64
	profileRefreshes []int64
}

func (q *fakeQueue) EnqueueIngest(articleID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ingested = append(q.ingested, articleID)
	return nil
}

func (q *fakeQueue) EnqueueIngestAfter(articleID int64, _ time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, articleID)
}

func (q *fakeQueue) EnqueueProfileRefresh(userID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.profileRefreshes = append(q.profileRefreshes, userID)
	return nil
}

type fakeEnricher struct {
	summary *ai.Summary
	err     error
}

func (e *fakeEnricher) Summarize(_ context.Context, title, content string) (*ai.Summary, error) {
	return e.summary, e.err
}

type fakeEmbedder struct {
	vec []float32
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake-embed" }

type fakeArchiver struct {
	archived []int64
}

func (a *fakeArchiver) Archive(_ context.Context, art *types.Article) error {
	a.archived = append(a.archived, art.ID)
	return nil
}

func pendingArticle() *types.Article {
	return &types.Article{
		ID:     42,
		UserID: 7,
		URL:    "https://n.news.naver.com/mnews/article/001/0012345678",
		Status: types.StatusProcessing,
	}
}

func TestProcessCompletedArticle(t *testing.T) {
	published := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{article: pendingArticle(), claimOutcome: store.Claimed}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:      types.FetchSuccess,
		Title:       "반도체 수출 사상 최대",
		Content:     strings.Repeat("본문 ", 200),
		Publisher:   "연합뉴스",
		PublishedAt: &published,
		SourceOID:   "001",
		SourceAID:   "0012345678",
		CrawledAt:   time.Now(),
	}}
	queue := &fakeQueue{}
	archiver := &fakeArchiver{}
	enricher := &fakeEnricher{summary: &ai.Summary{Summary: "요약", Tags: []string{"경제", "반도체"}}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}

	ing := NewIngestor(st, fetcher, enricher, embedder, queue, archiver)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if st.finalized == nil {
		t.Fatal("expected FinalizeFetch to be called")
	}
	got := st.finalized
	if got.Status != types.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
	if got.Title != "반도체 수출 사상 최대" {
		t.Errorf("title not applied: %q", got.Title)
	}
	if got.Summary != "요약" || len(got.Tags) != 2 {
		t.Errorf("enrichment not applied: summary=%q tags=%v", got.Summary, got.Tags)
	}
	if len(got.Vector) != 3 {
		t.Errorf("embedding not applied: %v", got.Vector)
	}
	if got.SourceOID != "001" || got.SourceAID != "0012345678" {
		t.Errorf("identity not applied: %s/%s", got.SourceOID, got.SourceAID)
	}
	if len(queue.profileRefreshes) != 1 || queue.profileRefreshes[0] != 7 {
		t.Errorf("expected one profile refresh for user 7, got %v", queue.profileRefreshes)
	}
	if len(archiver.archived) != 1 || archiver.archived[0] != 42 {
		t.Errorf("expected article 42 archived, got %v", archiver.archived)
	}
}

func TestProcessSoftSuccessBecomesPartial(t *testing.T) {
	st := &fakeStore{article: pendingArticle(), claimOutcome: store.Claimed}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:       types.FetchSoftSuccess,
		Title:        "짧은 기사",
		Content:      "본문이 너무 짧다",
		FailedReason: types.ReasonContentTooShort,
		CrawledAt:    time.Now(),
	}}
	queue := &fakeQueue{}

	ing := NewIngestor(st, fetcher, nil, nil, queue, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if st.finalized == nil {
		t.Fatal("expected FinalizeFetch to be called")
	}
	if st.finalized.Status != types.StatusPartial {
		t.Errorf("status = %s, want PARTIAL", st.finalized.Status)
	}
	if st.finalized.FailedReason != types.ReasonContentTooShort {
		t.Errorf("failed reason = %q, want %q", st.finalized.FailedReason, types.ReasonContentTooShort)
	}
	if len(queue.profileRefreshes) != 0 {
		t.Errorf("PARTIAL article must not refresh the profile, got %v", queue.profileRefreshes)
	}
}

func TestProcessSkipsFinalizedClaim(t *testing.T) {
	st := &fakeStore{claimOutcome: store.AlreadyFinalized}
	fetcher := &fakeFetcher{}

	ing := NewIngestor(st, fetcher, nil, nil, &fakeQueue{}, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch must not run for a finalized article, ran %d times", fetcher.calls)
	}
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	st := &fakeStore{article: pendingArticle(), claimOutcome: store.Claimed}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:       types.FetchFailed,
		FailedReason: types.ReasonFetchTimeout,
	}}
	queue := &fakeQueue{}

	ing := NewIngestor(st, fetcher, nil, nil, queue, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(st.retried) != 1 {
		t.Fatalf("expected one recorded retry, got %d", len(st.retried))
	}
	if len(queue.delayed) != 1 || queue.delayed[0] != 42 {
		t.Errorf("expected delayed re-enqueue of article 42, got %v", queue.delayed)
	}
	if st.failedReason != "" {
		t.Errorf("article must not be failed while retries remain, got %q", st.failedReason)
	}
}

func TestProcessExhaustsRetries(t *testing.T) {
	st := &fakeStore{article: pendingArticle(), claimOutcome: store.Claimed}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:       types.FetchFailed,
		FailedReason: types.ReasonFetchTimeout,
	}}
	queue := &fakeQueue{}
	ing := NewIngestor(st, fetcher, nil, nil, queue, nil)

	for i := 0; i < 4; i++ {
		if err := ing.Process(context.Background(), 42); err != nil {
			t.Fatalf("Process returned error on attempt %d: %v", i+1, err)
		}
	}

	if !strings.HasPrefix(st.failedReason, types.ReasonMaxRetries) {
		t.Errorf("failed reason = %q, want %s prefix", st.failedReason, types.ReasonMaxRetries)
	}
	if len(queue.delayed) != 3 {
		t.Errorf("expected 3 delayed re-enqueues before giving up, got %d", len(queue.delayed))
	}
}

func TestProcessPermanentFailureSkipsRetry(t *testing.T) {
	st := &fakeStore{article: pendingArticle(), claimOutcome: store.Claimed}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:       types.FetchFailed,
		FailedReason: types.ReasonAccessDenied + "(404)",
		HTTPStatus:   404,
	}}
	queue := &fakeQueue{}

	ing := NewIngestor(st, fetcher, nil, nil, queue, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(st.retried) != 0 || len(queue.delayed) != 0 {
		t.Errorf("permanent failure must not retry: retried=%v delayed=%v", st.retried, queue.delayed)
	}
	if st.failedReason != types.ReasonAccessDenied+"(404)" {
		t.Errorf("failed reason = %q", st.failedReason)
	}
}

func TestIsRetryableHTTPStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{429, true}, {500, true}, {502, true}, {503, true}, {504, true},
		{403, false}, {404, false}, {410, false},
	}
	for _, tc := range cases {
		if got := isRetryable(types.FetchResult{HTTPStatus: tc.status}); got != tc.want {
			t.Errorf("isRetryable(HTTP %d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestProcessResolvesDuplicateIdentity(t *testing.T) {
	st := &fakeStore{
		article:      pendingArticle(),
		claimOutcome: store.Claimed,
		finalizeErr:  store.ErrDuplicateIdentity,
		resolvedID:   7,
	}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:    types.FetchSuccess,
		Title:     "중복 기사",
		Content:   strings.Repeat("가", 300),
		SourceOID: "001",
		SourceAID: "0012345678",
		CrawledAt: time.Now(),
	}}
	queue := &fakeQueue{}

	ing := NewIngestor(st, fetcher, nil, nil, queue, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if !st.resolved {
		t.Fatal("expected ResolveDuplicate to be called")
	}
	if len(queue.profileRefreshes) != 1 {
		t.Errorf("merged COMPLETED duplicate should refresh the profile, got %v", queue.profileRefreshes)
	}
}

func TestProcessDuplicateRowGone(t *testing.T) {
	st := &fakeStore{
		article:      pendingArticle(),
		claimOutcome: store.Claimed,
		finalizeErr:  store.ErrDuplicateIdentity,
		resolveErr:   store.ErrDuplicateRowGone,
	}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:    types.FetchSuccess,
		Title:     "중복 기사",
		Content:   strings.Repeat("가", 300),
		SourceOID: "001",
		SourceAID: "0012345678",
		CrawledAt: time.Now(),
	}}

	ing := NewIngestor(st, fetcher, nil, nil, &fakeQueue{}, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if st.failedReason != types.ReasonDuplicateNotFound {
		t.Errorf("failed reason = %q, want %q", st.failedReason, types.ReasonDuplicateNotFound)
	}
}

func TestProcessDuplicateWithoutIdentity(t *testing.T) {
	st := &fakeStore{
		article:      pendingArticle(),
		claimOutcome: store.Claimed,
		finalizeErr:  store.ErrDuplicateIdentity,
	}
	fetcher := &fakeFetcher{result: types.FetchResult{
		Status:    types.FetchSuccess,
		Title:     "식별자 없는 기사",
		Content:   strings.Repeat("가", 300),
		CrawledAt: time.Now(),
	}}

	ing := NewIngestor(st, fetcher, nil, nil, &fakeQueue{}, nil)
	if err := ing.Process(context.Background(), 42); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if st.resolved {
		t.Error("ResolveDuplicate must not run without a parsed identity")
	}
	if st.failedReason != types.ReasonDuplicateNoIdent {
		t.Errorf("failed reason = %q, want %q", st.failedReason, types.ReasonDuplicateNoIdent)
	}
}
