package recommend

import (
	"context"
	"fmt"
	"log"
	"time"

	"newskeep/ai"
	"newskeep/config"
	"newskeep/types"
)

// RecommendExplore produces up to 3 EXPLORE recommendations that bridge the
// user's strong categories toward their weak ones. Candidates must land in
// the similarity band (floor, ceil]: familiar enough to bridge from current
// taste, novel enough to teach something.
func (e *Engine) RecommendExplore(ctx context.Context, userID int64) (int, error) {
	interest, err := e.store.InterestVector(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load interest vector for user %d: %w", userID, err)
	}
	if interest == nil {
		log.Printf("[recommend] user %d has no interest vector yet, skipping explore run", userID)
		return 0, nil
	}

	now := e.now()
	history, err := e.store.CompletedSince(ctx, userID, now.AddDate(-1, 0, 0), 200)
	if err != nil {
		return 0, fmt.Errorf("load tag history for user %d: %w", userID, err)
	}
	var tags []string
	for _, a := range history {
		tags = append(tags, a.Tags...)
	}
	strong, weak := StrongWeakCategories(tags)

	keywords := e.exploreKeywords(ctx, strong, weak)
	if len(keywords) == 0 {
		log.Printf("[recommend] no exploration keywords for user %d, skipping explore run", userID)
		return 0, nil
	}

	existing, err := e.store.ExistingTitles(ctx, userID, 200)
	if err != nil {
		return 0, fmt.Errorf("load existing titles for user %d: %w", userID, err)
	}

	oldest := now.Add(-config.ExploreMaxAge)
	seenRun := make(map[string]bool)
	var accepted []candidate
	for _, kw := range keywords {
		for _, c := range e.gather(ctx, userID, kw, seenRun) {
			if c.published.IsZero() || c.published.Before(oldest) {
				continue
			}
			if jaccardTooClose(c.title, existing, accepted, e.jaccardCutoff) {
				continue
			}
			accepted = append(accepted, c)
		}
	}
	if len(accepted) == 0 {
		log.Printf("[recommend] no exploration candidates for user %d this cycle", userID)
		return 0, nil
	}

	embedded := e.embedCandidates(ctx, accepted)
	scored := embedded[:0]
	for _, c := range embedded {
		c.similarity = CosineSimilarity(interest, c.vector)
		if c.similarity <= config.ExploreSimilarityFloor || c.similarity > config.ExploreSimilarityCeil {
			continue
		}
		c.novelty = 1 - c.similarity
		c.recency = exploreRecency(now, c.published)
		c.final = config.ExploreNoveltyWeight*c.novelty +
			config.ExploreRecencyWeight*c.recency +
			config.ExploreSimilarityWeight*c.similarity
		scored = append(scored, c)
	}
	if len(scored) == 0 {
		log.Printf("[recommend] no candidates in the novelty band for user %d", userID)
		return 0, nil
	}

	sortByFinal(scored)
	if len(scored) > config.ExplorePickCount {
		scored = scored[:config.ExplorePickCount]
	}

	inserted := e.persist(ctx, userID, scored, types.RecommendationExplore, config.ExplorePublisherMarker)
	log.Printf("[recommend] 🧭 user %d: %d explore pick(s) (strong=%v weak=%v)", userID, inserted, strong, weak)
	return inserted, nil
}

// exploreKeywords asks the LLM for bridge and wildcard keywords, falling back
// to the starter keywords on failure.
func (e *Engine) exploreKeywords(ctx context.Context, strong, weak []Category) []string {
	if e.enricher == nil {
		return ai.DefaultExploreKeywords
	}
	keywords, err := e.enricher.ExplorationKeywords(ctx, categoryNames(strong), categoryNames(weak))
	if err != nil {
		log.Printf("[recommend] exploration keyword generation failed: %v", err)
		return ai.DefaultExploreKeywords
	}
	if len(keywords) == 0 {
		return ai.DefaultExploreKeywords
	}
	return keywords
}

// jaccardTooClose rejects a title overlapping any stored title or any title
// accepted earlier in this run.
func jaccardTooClose(title string, existing []string, accepted []candidate, cutoff float64) bool {
	for _, t := range existing {
		if JaccardTokens(title, t) > cutoff {
			return true
		}
	}
	for _, a := range accepted {
		if JaccardTokens(title, a.title) > cutoff {
			return true
		}
	}
	return false
}

// exploreRecency is gentler than the personal step function: exploration can
// surface older in-depth pieces, so the decay floors at 0.3.
func exploreRecency(now, published time.Time) float64 {
	hours := now.Sub(published).Hours()
	switch {
	case hours < 6:
		return 1.0
	case hours < 24:
		return 0.8
	}
	v := 0.7 - 0.1*(hours/24)
	if v < 0.3 {
		return 0.3
	}
	return v
}

func categoryNames(cats []Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
