package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"newskeep/ai"
	"newskeep/config"
	"newskeep/store"
	"newskeep/types"
)

// ArticleStore is the persistence surface the ingestion worker needs.
type ArticleStore interface {
	Claim(ctx context.Context, id int64) (*types.Article, store.ClaimOutcome, error)
	RecordRetry(ctx context.Context, id int64, reason string) (int, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
	FinalizeFetch(ctx context.Context, a *types.Article) error
	ResolveDuplicate(ctx context.Context, dup *types.Article) (int64, error)
}

// Fetcher pulls and parses one source article.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) types.FetchResult
}

// Summarizer is the slice of the enrichment client the worker uses.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (*ai.Summary, error)
}

// Requeuer schedules follow-up jobs for an article's owner.
type Requeuer interface {
	EnqueueIngest(articleID int64) error
	EnqueueIngestAfter(articleID int64, delay time.Duration)
	EnqueueProfileRefresh(userID int64) error
}

// Archiver snapshots a finished article to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, a *types.Article) error
}

// retryableHTTPStatuses are transient source-side failures worth retrying.
var retryableHTTPStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Ingestor drives one article through claim, fetch, enrichment and finalize.
type Ingestor struct {
	store    ArticleStore
	fetcher  Fetcher
	enricher Summarizer            // nil disables summarization
	embedder ai.EmbeddingsProvider // nil disables embeddings
	queue    Requeuer
	archiver Archiver // nil disables archival

	maxRetries int
	retryDelay time.Duration
}

func NewIngestor(st ArticleStore, fetcher Fetcher, enricher Summarizer, embedder ai.EmbeddingsProvider, queue Requeuer, archiver Archiver) *Ingestor {
	return &Ingestor{
		store:      st,
		fetcher:    fetcher,
		enricher:   enricher,
		embedder:   embedder,
		queue:      queue,
		archiver:   archiver,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}
}

// Process handles one ingest job. It returns an error only for infrastructure
// failures; article-level failures are recorded on the row and swallowed so
// the message is marked.
func (in *Ingestor) Process(ctx context.Context, articleID int64) error {
	article, outcome, err := in.store.Claim(ctx, articleID)
	if err != nil {
		return fmt.Errorf("claim article %d: %w", articleID, err)
	}
	switch outcome {
	case store.AlreadyFinalized:
		log.Printf("[pipeline] article %d already finalized, skipping", articleID)
		return nil
	case store.AlreadyProcessing:
		// Another worker holds the claim. If it dies the stale sweep
		// fails the row and the requeue loop picks it back up.
		log.Printf("[pipeline] article %d claimed elsewhere, skipping", articleID)
		return nil
	case store.ClaimNotFound:
		log.Printf("[pipeline] article %d not found, skipping", articleID)
		return nil
	}

	result := in.fetcher.Fetch(ctx, article.URL)

	if result.Status == types.FetchFailed {
		return in.handleFetchFailure(ctx, article, result)
	}

	in.applyFetch(article, result)
	in.enrich(ctx, article)

	if err := in.store.FinalizeFetch(ctx, article); err != nil {
		if errors.Is(err, store.ErrDuplicateIdentity) {
			return in.handleDuplicate(ctx, article)
		}
		return fmt.Errorf("finalize article %d: %w", articleID, err)
	}

	log.Printf("[pipeline] ✅ article %d finalized as %s", article.ID, article.Status)
	in.afterFinalize(ctx, article)
	return nil
}

// handleFetchFailure records the failure and schedules a retry when the
// reason looks transient.
func (in *Ingestor) handleFetchFailure(ctx context.Context, article *types.Article, result types.FetchResult) error {
	reason := result.FailedReason
	if reason == "" {
		reason = types.ReasonFetchRequestError
	}

	if !isRetryable(result) {
		if err := in.store.MarkFailed(ctx, article.ID, reason); err != nil {
			return fmt.Errorf("mark article %d failed: %w", article.ID, err)
		}
		log.Printf("[pipeline] article %d failed permanently: %s", article.ID, reason)
		return nil
	}

	count, err := in.store.RecordRetry(ctx, article.ID, reason)
	if err != nil {
		return fmt.Errorf("record retry for article %d: %w", article.ID, err)
	}
	if count > in.maxRetries {
		final := fmt.Sprintf("%s: %s", types.ReasonMaxRetries, reason)
		if err := in.store.MarkFailed(ctx, article.ID, final); err != nil {
			return fmt.Errorf("mark article %d failed: %w", article.ID, err)
		}
		log.Printf("[pipeline] article %d exhausted retries (%d): %s", article.ID, count, reason)
		return nil
	}

	log.Printf("[pipeline] article %d retry %d/%d in %s: %s",
		article.ID, count, in.maxRetries, in.retryDelay, reason)
	in.queue.EnqueueIngestAfter(article.ID, in.retryDelay)
	return nil
}

// isRetryable classifies transient fetch failures: timeouts, generic request
// errors, and throttling or server-side HTTP statuses.
func isRetryable(result types.FetchResult) bool {
	if strings.HasPrefix(result.FailedReason, types.ReasonFetchTimeout) ||
		strings.HasPrefix(result.FailedReason, types.ReasonFetchRequestError) {
		return true
	}
	return retryableHTTPStatuses[result.HTTPStatus]
}

// applyFetch merges fetched fields onto the claimed row. Fetched values win,
// but an empty fetch field never blanks data already on the row.
func (in *Ingestor) applyFetch(article *types.Article, result types.FetchResult) {
	if result.Title != "" {
		article.Title = result.Title
	}
	if result.Content != "" {
		article.Content = result.Content
	}
	if result.Publisher != "" {
		article.Publisher = result.Publisher
	}
	if result.ImageURL != "" {
		article.ImageURL = result.ImageURL
	}
	if result.PublishedAt != nil {
		article.PublishedAt = result.PublishedAt
	}
	if result.SourceOID != "" && result.SourceAID != "" {
		article.SourceOID = result.SourceOID
		article.SourceAID = result.SourceAID
	}
	if result.NormalizedURL != "" {
		article.URL = result.NormalizedURL
	}
	crawled := result.CrawledAt
	article.CrawledAt = &crawled

	if result.Status == types.FetchSuccess {
		article.Status = types.StatusCompleted
		article.FailedReason = ""
	} else {
		article.Status = types.StatusPartial
		article.FailedReason = result.FailedReason
	}
}

// enrich adds a summary, tags and an embedding. Both steps are best-effort:
// enrichment failures never change the article's status.
func (in *Ingestor) enrich(ctx context.Context, article *types.Article) {
	if in.enricher != nil && article.Status == types.StatusCompleted {
		summary, err := in.enricher.Summarize(ctx, article.Title, article.Content)
		if err != nil {
			log.Printf("[pipeline] summarize article %d failed: %v", article.ID, err)
		} else if summary != nil {
			article.Summary = summary.Summary
			article.Tags = summary.Tags
		}
	}

	text := strings.TrimSpace(article.Title + "\n" + article.Content)
	if vec := ai.EmbedText(ctx, in.embedder, text); vec != nil {
		article.Vector = vec
	}
}

// handleDuplicate resolves an identity collision by merging this row into the
// surviving row for the same (user, source) identity.
func (in *Ingestor) handleDuplicate(ctx context.Context, article *types.Article) error {
	if !article.HasIdentity() {
		if err := in.store.MarkFailed(ctx, article.ID, types.ReasonDuplicateNoIdent); err != nil {
			return fmt.Errorf("mark article %d failed: %w", article.ID, err)
		}
		return nil
	}

	existingID, err := in.store.ResolveDuplicate(ctx, article)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRowGone) {
			if err := in.store.MarkFailed(ctx, article.ID, types.ReasonDuplicateNotFound); err != nil {
				return fmt.Errorf("mark article %d failed: %w", article.ID, err)
			}
			return nil
		}
		return fmt.Errorf("resolve duplicate of article %d: %w", article.ID, err)
	}

	log.Printf("[pipeline] article %d merged into %d", article.ID, existingID)
	if article.Status == types.StatusCompleted {
		in.refreshProfile(article.UserID)
	}
	return nil
}

// afterFinalize fires the follow-up work a completed article triggers.
func (in *Ingestor) afterFinalize(ctx context.Context, article *types.Article) {
	if article.Status != types.StatusCompleted {
		return
	}
	in.refreshProfile(article.UserID)
	if in.archiver != nil {
		if err := in.archiver.Archive(ctx, article); err != nil {
			log.Printf("[pipeline] archive of article %d failed: %v", article.ID, err)
		}
	}
}

func (in *Ingestor) refreshProfile(userID int64) {
	if err := in.queue.EnqueueProfileRefresh(userID); err != nil {
		log.Printf("[pipeline] profile refresh enqueue for user %d failed: %v", userID, err)
	}
}
