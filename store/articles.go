package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newskeep/types"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// ClaimOutcome tells the pipeline what happened at the claim step.
type ClaimOutcome int

const (
	Claimed ClaimOutcome = iota
	AlreadyFinalized
	AlreadyProcessing
	ClaimNotFound
)

// Retry endpoint outcomes.
var (
	ErrStillProcessing = errors.New("article is processing")
	ErrNotRetryable    = errors.New("article status does not allow retry")
	ErrNotRecommended  = errors.New("article is not a recommendation")
)

const articleColumns = `id, user_id, url, source_oid, source_aid, title, content, summary,
	tags, embedding, publisher, published_at, image_url, status, recommendation_kind,
	failed_reason, retry_count, crawled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*types.Article, error) {
	var (
		a         types.Article
		oid, aid  *string
		kind      *string
		embedding *pgvector.Vector
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.URL, &oid, &aid, &a.Title, &a.Content, &a.Summary,
		&a.Tags, &embedding, &a.Publisher, &a.PublishedAt, &a.ImageURL, &a.Status, &kind,
		&a.FailedReason, &a.RetryCount, &a.CrawledAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if oid != nil {
		a.SourceOID = *oid
	}
	if aid != nil {
		a.SourceAID = *aid
	}
	if kind != nil {
		a.RecommendationKind = types.RecommendationKind(*kind)
	}
	if embedding != nil {
		a.Vector = embedding.Slice()
	}
	return &a, nil
}

func collectArticles(rows pgx.Rows) ([]types.Article, error) {
	defer rows.Close()
	var out []types.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// nullable turns empty strings into SQL NULLs for identity columns, so the
// partial uniqueness index only fires on real identities.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableKind(k types.RecommendationKind) *string {
	if k == "" {
		return nil
	}
	s := string(k)
	return &s
}

func vectorParam(vec []float32) any {
	if vec == nil {
		return nil
	}
	return pgvector.NewVector(vec)
}

func tagsParam(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// GetOwned returns an article by id scoped to its owner.
func (s *Postgres) GetOwned(ctx context.Context, userID, id int64) (*types.Article, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1 AND user_id = $2`, id, userID)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// CreatePending records a user submission as a PENDING row. When the same
// URL is already queued or in flight for this user the existing row is
// reused instead of stacking duplicate work.
func (s *Postgres) CreatePending(ctx context.Context, userID int64, url string) (*types.Article, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE user_id = $1 AND url = $2 AND status IN ('PENDING', 'PROCESSING')
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, userID, url)
	existing, err := scanArticle(row)
	if err == nil {
		return existing, true, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	row = tx.QueryRow(ctx, `INSERT INTO articles (user_id, url, status)
		VALUES ($1, $2, 'PENDING') RETURNING `+articleColumns, userID, url)
	created, err := scanArticle(row)
	if err != nil {
		return nil, false, fmt.Errorf("insert pending article: %w", err)
	}
	return created, false, tx.Commit(ctx)
}

// ListOptions filter the owner-scoped listing.
type ListOptions struct {
	Status   types.Status
	Query    string
	Ordering string
	Limit    int
}

var allowedOrderings = map[string]string{
	"created_at":    "created_at ASC",
	"-created_at":   "created_at DESC",
	"published_at":  "published_at ASC",
	"-published_at": "published_at DESC",
	"updated_at":    "updated_at ASC",
	"-updated_at":   "updated_at DESC",
}

// List returns the user's articles with optional status filter and
// substring search over title, publisher, summary and content.
func (s *Postgres) List(ctx context.Context, userID int64, opts ListOptions) ([]types.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE user_id = $1`
	args := []any{userID}

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if opts.Query != "" {
		args = append(args, "%"+opts.Query+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (title ILIKE $%d OR publisher ILIKE $%d OR summary ILIKE $%d OR content ILIKE $%d)", n, n, n, n)
	}

	ordering, ok := allowedOrderings[opts.Ordering]
	if !ok {
		ordering = allowedOrderings["-created_at"]
	}
	query += " ORDER BY " + ordering

	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectArticles(rows)
}

// Claim takes the exclusive processing claim on an article. The row lock
// plus the status guard totally orders claim/process/finalize across
// concurrent workers: at most one proceeds, the rest observe a non-claimable
// status. The lock is released (commit) before any network call happens.
func (s *Postgres) Claim(ctx context.Context, id int64) (*types.Article, ClaimOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, ClaimNotFound, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1 FOR UPDATE`, id)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ClaimNotFound, nil
	}
	if err != nil {
		return nil, ClaimNotFound, err
	}

	if a.Status.Terminal() {
		return a, AlreadyFinalized, nil
	}
	if a.Status == types.StatusProcessing {
		return a, AlreadyProcessing, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE articles SET status = 'PROCESSING', updated_at = now() WHERE id = $1`, id); err != nil {
		return nil, ClaimNotFound, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, ClaimNotFound, err
	}

	a.Status = types.StatusProcessing
	return a, Claimed, nil
}

// RecordRetry bumps the retry counter and notes the transient reason for
// operational visibility. Returns the new counter value.
func (s *Postgres) RecordRetry(ctx context.Context, id int64, reason string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `UPDATE articles
		SET retry_count = retry_count + 1, failed_reason = $2, updated_at = now()
		WHERE id = $1 RETURNING retry_count`, id, "RETRYING: "+reason).Scan(&count)
	return count, err
}

// MarkFailed finalizes an article as FAILED with a human-readable reason.
func (s *Postgres) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE articles
		SET status = 'FAILED', failed_reason = $2, updated_at = now() WHERE id = $1`, id, reason)
	return err
}

// FinalizeFetch persists the merged fetch+enrichment outcome. Returns
// ErrDuplicateIdentity when the row's source identity collides with another
// row of the same user.
func (s *Postgres) FinalizeFetch(ctx context.Context, a *types.Article) error {
	_, err := s.pool.Exec(ctx, `UPDATE articles SET
			url = $2, source_oid = $3, source_aid = $4, title = $5, content = $6,
			summary = $7, tags = $8, embedding = $9, publisher = $10, published_at = $11,
			image_url = $12, status = $13, failed_reason = $14, crawled_at = $15,
			updated_at = now()
		WHERE id = $1`,
		a.ID, a.URL, nullable(a.SourceOID), nullable(a.SourceAID), a.Title, a.Content,
		a.Summary, tagsParam(a.Tags), vectorParam(a.Vector), a.Publisher, a.PublishedAt,
		a.ImageURL, string(a.Status), a.FailedReason, a.CrawledAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateIdentity
	}
	return err
}

// ResolveDuplicate runs the merge procedure after a uniqueness conflict:
// the pre-existing row for the identity is located under lock, empty
// enrichable fields are filled from the duplicate, its status is upgraded
// (never downgraded), and the duplicate row is finalized as FAILED with a
// DUPLICATE_OF diagnostic. The duplicate row is kept for auditability.
// Returns the surviving row's id.
func (s *Postgres) ResolveDuplicate(ctx context.Context, dup *types.Article) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE user_id = $1 AND source_oid = $2 AND source_aid = $3 AND id <> $4
		ORDER BY updated_at DESC LIMIT 1 FOR UPDATE`,
		dup.UserID, dup.SourceOID, dup.SourceAID, dup.ID)
	existing, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicateRowGone
	}
	if err != nil {
		return 0, err
	}

	if MergeDuplicate(existing, dup) {
		if _, err := tx.Exec(ctx, `UPDATE articles SET
				title = $2, content = $3, summary = $4, tags = $5, embedding = $6,
				publisher = $7, published_at = $8, image_url = $9, status = $10,
				updated_at = now()
			WHERE id = $1`,
			existing.ID, existing.Title, existing.Content, existing.Summary,
			tagsParam(existing.Tags), vectorParam(existing.Vector), existing.Publisher,
			existing.PublishedAt, existing.ImageURL, string(existing.Status),
		); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE articles
		SET status = 'FAILED', failed_reason = $2, updated_at = now() WHERE id = $1`,
		dup.ID, fmt.Sprintf("%s:%d", types.ReasonDuplicateOf, existing.ID)); err != nil {
		return 0, err
	}

	return existing.ID, tx.Commit(ctx)
}

// ResetForRetry puts a FAILED/PARTIAL/PENDING article back to PENDING on the
// user's request. PROCESSING rows are refused.
func (s *Postgres) ResetForRetry(ctx context.Context, userID, id int64) (*types.Article, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case types.StatusProcessing:
		return nil, ErrStillProcessing
	case types.StatusFailed, types.StatusPartial, types.StatusPending:
	default:
		return nil, ErrNotRetryable
	}

	if _, err := tx.Exec(ctx, `UPDATE articles
		SET status = 'PENDING', failed_reason = '', updated_at = now() WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	a.Status = types.StatusPending
	a.FailedReason = ""
	return a, nil
}

// ConvertRecommendation turns a RECOMMENDED row into a regular PENDING
// article so the pipeline fetches its full content. The recommendation kind
// and score diagnostic are cleared; the fetch fills in the real publisher.
func (s *Postgres) ConvertRecommendation(ctx context.Context, userID, id int64) (*types.Article, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if a.Status != types.StatusRecommended {
		return nil, ErrNotRecommended
	}

	if _, err := tx.Exec(ctx, `UPDATE articles
		SET status = 'PENDING', recommendation_kind = NULL, failed_reason = '',
			updated_at = now() WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	a.Status = types.StatusPending
	a.RecommendationKind = ""
	a.FailedReason = ""
	return a, nil
}

// SweepStale force-fails articles stuck in PENDING/PROCESSING past the
// watermark, recovering from crashed workers. Safe to call repeatedly.
func (s *Postgres) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE articles
		SET status = 'FAILED', failed_reason = $1, updated_at = now()
		WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < now() - $2::interval`,
		types.ReasonStaleProcessing, olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RequeueFailed resets FAILED articles under the retry cap back to PENDING
// and returns their ids so the caller can re-enqueue them.
func (s *Postgres) RequeueFailed(ctx context.Context, retryCap int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `UPDATE articles
		SET status = 'PENDING', updated_at = now()
		WHERE status = 'FAILED' AND retry_count < $1
			AND failed_reason NOT LIKE 'DUPLICATE_OF:%'
		RETURNING id`, retryCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OwnsURL reports whether the user already has any row for this URL.
func (s *Postgres) OwnsURL(ctx context.Context, userID int64, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE user_id = $1 AND url = $2)`,
		userID, url).Scan(&exists)
	return exists, err
}

// InsertRecommended persists a recommendation pick, re-checking URL
// ownership at save time so a race with ingestion cannot duplicate the row.
// Returns false when the row was skipped.
func (s *Postgres) InsertRecommended(ctx context.Context, a *types.Article) (bool, error) {
	tag, err := s.pool.Exec(ctx, `INSERT INTO articles
			(user_id, url, source_oid, source_aid, title, content, summary, tags,
			 embedding, publisher, published_at, image_url, status,
			 recommendation_kind, failed_reason)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'RECOMMENDED', $13, $14
		WHERE NOT EXISTS (SELECT 1 FROM articles WHERE user_id = $1 AND url = $2)`,
		a.UserID, a.URL, nullable(a.SourceOID), nullable(a.SourceAID), a.Title, a.Content,
		a.Summary, tagsParam(a.Tags), vectorParam(a.Vector), a.Publisher, a.PublishedAt,
		a.ImageURL, nullableKind(a.RecommendationKind), a.FailedReason,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompletedSince returns the user's COMPLETED articles created after the
// cutoff, newest first. A zero cutoff means "all time".
func (s *Postgres) CompletedSince(ctx context.Context, userID int64, since time.Time, limit int) ([]types.Article, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE user_id = $1 AND status = 'COMPLETED' AND created_at >= $2
		ORDER BY created_at DESC LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	return collectArticles(rows)
}

// NearestCompleted returns the k COMPLETED, embedded articles closest (by
// cosine distance) to the probe vector within the window.
func (s *Postgres) NearestCompleted(ctx context.Context, userID int64, probe []float32, since time.Time, k int) ([]types.Article, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE user_id = $1 AND status = 'COMPLETED' AND embedding IS NOT NULL
			AND created_at >= $2
		ORDER BY embedding <=> $3 LIMIT $4`,
		userID, since, pgvector.NewVector(probe), k)
	if err != nil {
		return nil, err
	}
	return collectArticles(rows)
}

// RecentEmbedded returns the most recently created COMPLETED articles that
// carry an embedding, for the interest-vector recompute.
func (s *Postgres) RecentEmbedded(ctx context.Context, userID int64, limit int) ([]types.Article, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE user_id = $1 AND status = 'COMPLETED' AND embedding IS NOT NULL
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectArticles(rows)
}

// ExistingTitles returns recent non-empty titles across all of the user's
// rows, used by the exploratory recommender's title dedup.
func (s *Postgres) ExistingTitles(ctx context.Context, userID int64, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT title FROM articles
		WHERE user_id = $1 AND title <> ''
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}
