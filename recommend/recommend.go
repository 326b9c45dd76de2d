package recommend

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"newskeep/ai"
	"newskeep/config"
	"newskeep/seen"
	"newskeep/source"
	"newskeep/types"
)

// Store is the persistence surface both recommenders need.
type Store interface {
	InterestVector(ctx context.Context, userID int64) ([]float32, error)
	CompletedSince(ctx context.Context, userID int64, since time.Time, limit int) ([]types.Article, error)
	NearestCompleted(ctx context.Context, userID int64, probe []float32, since time.Time, k int) ([]types.Article, error)
	ExistingTitles(ctx context.Context, userID int64, limit int) ([]string, error)
	OwnsURL(ctx context.Context, userID int64, url string) (bool, error)
	InsertRecommended(ctx context.Context, a *types.Article) (bool, error)
}

// Searcher queries the external candidate index for one keyword.
type Searcher interface {
	Search(ctx context.Context, keyword string, limit int) ([]types.SearchItem, error)
}

// Enricher is the slice of the LLM client the recommenders use.
type Enricher interface {
	KeywordsFromContext(ctx context.Context, shortTerm, longTerm string) ([]string, error)
	ExplorationKeywords(ctx context.Context, strong, weak []string) ([]string, error)
}

// Engine runs both recommendation strategies against one user at a time.
// All scoring is pure; runs for different users may execute concurrently.
type Engine struct {
	store    Store
	search   Searcher
	enricher Enricher
	embedder ai.EmbeddingsProvider
	seen     seen.Filter // nil disables the seen-URL fast path
	portal   source.Portal

	titleRatioCutoff float64
	jaccardCutoff    float64
	now              func() time.Time
}

func NewEngine(st Store, search Searcher, enricher Enricher, embedder ai.EmbeddingsProvider, seenFilter seen.Filter, cfg config.Config) *Engine {
	return &Engine{
		store:            st,
		search:           search,
		enricher:         enricher,
		embedder:         embedder,
		seen:             seenFilter,
		portal:           source.DefaultPortal(),
		titleRatioCutoff: cfg.TitleSimilarityCutoff,
		jaccardCutoff:    cfg.TitleJaccardCutoff,
		now:              time.Now,
	}
}

// candidate is one scored search result. Scoring components are kept for the
// diagnostic breakdown persisted with each pick.
type candidate struct {
	keyword   string
	title     string
	summary   string
	url       string
	oid, aid  string
	published time.Time
	vector    []float32

	similarity   float64
	recency      float64
	keywordMatch float64
	novelty      float64
	final        float64
}

// gather turns raw search results for one keyword into validated candidates:
// the link must parse to a source identity, and the normalized URL must not
// be owned by the user, already seen, or already collected in this run.
func (e *Engine) gather(ctx context.Context, userID int64, keyword string, seenRun map[string]bool) []candidate {
	items, err := e.search.Search(ctx, keyword, config.SearchResultLimit)
	if err != nil {
		log.Printf("[recommend] search %q failed: %v", keyword, err)
		return nil
	}

	var out []candidate
	for _, item := range items {
		ident := e.portal.ParseIdentity(item.Link)
		if ident == nil {
			ident = e.portal.ParseIdentity(item.OriginalLink)
		}
		if ident == nil {
			continue
		}
		url := ident.NormalizedURL
		if seenRun[url] {
			continue
		}
		seenRun[url] = true

		if owned, err := e.store.OwnsURL(ctx, userID, url); err != nil {
			log.Printf("[recommend] ownership check for %s failed: %v", url, err)
			continue
		} else if owned {
			continue
		}
		if e.seen != nil {
			if was, err := e.seen.Seen(ctx, userID, url); err != nil {
				log.Printf("[recommend] seen check for %s failed: %v", url, err)
			} else if was {
				continue
			}
		}

		out = append(out, candidate{
			keyword:   keyword,
			title:     item.Title,
			summary:   item.Description,
			url:       url,
			oid:       ident.OID,
			aid:       ident.AID,
			published: item.PubDate,
		})
	}
	return out
}

// embedCandidates batch-embeds title+description and drops candidates whose
// embedding failed, without failing the rest of the batch.
func (e *Engine) embedCandidates(ctx context.Context, cands []candidate) []candidate {
	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.title + "\n" + c.summary
	}
	vecs := ai.EmbedBatch(ctx, e.embedder, texts)

	out := cands[:0]
	for i, c := range cands {
		if vecs[i] == nil {
			continue
		}
		c.vector = vecs[i]
		out = append(out, c)
	}
	return out
}

// persist saves picks as RECOMMENDED rows, re-checking URL ownership at save
// time to stay safe against a concurrent ingest of the same article.
func (e *Engine) persist(ctx context.Context, userID int64, picks []candidate, kind types.RecommendationKind, marker string) int {
	inserted := 0
	for _, c := range picks {
		if owned, err := e.store.OwnsURL(ctx, userID, c.url); err != nil || owned {
			continue
		}

		a := &types.Article{
			UserID:             userID,
			URL:                c.url,
			SourceOID:          c.oid,
			SourceAID:          c.aid,
			Title:              c.title,
			Summary:            c.summary,
			Publisher:          marker,
			Status:             types.StatusRecommended,
			RecommendationKind: kind,
			FailedReason:       c.diagnostic(kind),
			Vector:             c.vector,
		}
		if !c.published.IsZero() {
			pub := c.published
			a.PublishedAt = &pub
		}

		ok, err := e.store.InsertRecommended(ctx, a)
		if err != nil {
			log.Printf("[recommend] insert of %s failed: %v", c.url, err)
			continue
		}
		if !ok {
			continue
		}
		inserted++
		if e.seen != nil {
			if err := e.seen.MarkSeen(ctx, userID, c.url); err != nil {
				log.Printf("[recommend] mark-seen of %s failed: %v", c.url, err)
			}
		}
	}
	return inserted
}

// diagnostic renders the score breakdown stored alongside a pick.
func (c candidate) diagnostic(kind types.RecommendationKind) string {
	if kind == types.RecommendationExplore {
		return fmt.Sprintf("final=%.3f novelty=%.3f recency=%.3f sim=%.3f keyword=%q",
			c.final, c.novelty, c.recency, c.similarity, c.keyword)
	}
	return fmt.Sprintf("final=%.3f sim=%.3f recency=%.3f kw=%.1f keyword=%q",
		c.final, c.similarity, c.recency, c.keywordMatch, c.keyword)
}

func sortByFinal(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].final > cands[j].final
	})
}
