package recommend

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"newskeep/ai"
	"newskeep/config"
	"newskeep/types"
)

// RecommendPersonal produces up to 5 PERSONAL recommendations anchored on the
// user's interest vector. Every stage degrades to an empty result instead of
// erroring, so a thin reading history simply yields nothing this cycle.
func (e *Engine) RecommendPersonal(ctx context.Context, userID int64) (int, error) {
	interest, err := e.store.InterestVector(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load interest vector for user %d: %w", userID, err)
	}
	if interest == nil {
		log.Printf("[recommend] user %d has no interest vector yet, skipping personal run", userID)
		return 0, nil
	}

	shortTerm, longTerm, err := e.readingContext(ctx, userID, interest)
	if err != nil {
		return 0, err
	}
	if shortTerm == "" && longTerm == "" {
		log.Printf("[recommend] user %d has no reading context, skipping personal run", userID)
		return 0, nil
	}

	keywords := e.personalKeywords(ctx, shortTerm, longTerm)
	if len(keywords) == 0 {
		log.Printf("[recommend] no keywords for user %d, skipping personal run", userID)
		return 0, nil
	}

	seenRun := make(map[string]bool)
	var accepted []candidate
	for _, kw := range keywords {
		for _, c := range e.gather(ctx, userID, kw, seenRun) {
			if nearDuplicateTitle(c.title, accepted, e.titleRatioCutoff) {
				continue
			}
			accepted = append(accepted, c)
		}
	}
	if len(accepted) == 0 {
		log.Printf("[recommend] no candidates for user %d this cycle", userID)
		return 0, nil
	}

	scored := e.embedCandidates(ctx, accepted)
	now := e.now()
	for i := range scored {
		c := &scored[i]
		c.similarity = CosineSimilarity(interest, c.vector)
		c.recency = personalRecency(now, c.published)
		if containsFold(c.title, c.keyword) {
			c.keywordMatch = 1
		}
		c.final = config.PersonalSimilarityWeight*c.similarity +
			config.PersonalRecencyWeight*c.recency +
			config.PersonalKeywordWeight*c.keywordMatch
	}
	sortByFinal(scored)

	picks := selectWithQuota(scored, config.PersonalPickCount, config.PersonalPerKeywordQuota)
	inserted := e.persist(ctx, userID, picks, types.RecommendationPersonal, config.PersonalPublisherMarker)
	log.Printf("[recommend] 🎯 user %d: %d personal pick(s) from %d candidate(s)", userID, inserted, len(scored))
	return inserted, nil
}

// readingContext builds the two prompt contexts: recent titles for the
// short-term trend, and frequent tags plus interest-nearest titles for the
// long-term taste.
func (e *Engine) readingContext(ctx context.Context, userID int64, interest []float32) (string, string, error) {
	now := e.now()

	recent, err := e.store.CompletedSince(ctx, userID, now.Add(-config.ShortTermWindow), 5)
	if err != nil {
		return "", "", fmt.Errorf("load short-term context for user %d: %w", userID, err)
	}
	shortTerm := joinTitles(recent)

	window, err := e.store.CompletedSince(ctx, userID, now.Add(-config.LongTermWindow), 100)
	if err != nil {
		return "", "", fmt.Errorf("load long-term context for user %d: %w", userID, err)
	}
	nearest, err := e.store.NearestCompleted(ctx, userID, interest, now.Add(-config.LongTermWindow), 3)
	if err != nil {
		return "", "", fmt.Errorf("load nearest articles for user %d: %w", userID, err)
	}

	var parts []string
	if tags := topTags(window, 5); len(tags) > 0 {
		parts = append(parts, "관심 태그: "+strings.Join(tags, ", "))
	}
	if titles := joinTitles(nearest); titles != "" {
		parts = append(parts, "대표 기사: "+titles)
	}
	return shortTerm, strings.Join(parts, "\n"), nil
}

// personalKeywords asks the LLM for exactly 3 keywords, padding a short
// answer with defaults. An empty answer aborts the run.
func (e *Engine) personalKeywords(ctx context.Context, shortTerm, longTerm string) []string {
	if e.enricher == nil {
		return ai.DefaultPersonalKeywords
	}
	keywords, err := e.enricher.KeywordsFromContext(ctx, shortTerm, longTerm)
	if err != nil {
		log.Printf("[recommend] keyword generation failed: %v", err)
		return nil
	}
	if len(keywords) == 0 {
		return nil
	}
	for _, d := range ai.DefaultPersonalKeywords {
		if len(keywords) >= 3 {
			break
		}
		if !containsString(keywords, d) {
			keywords = append(keywords, d)
		}
	}
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	return keywords
}

// selectWithQuota takes up to pickCount candidates in score order, capping
// picks per driving keyword, then backfills past the cap if the quota left
// slots empty.
func selectWithQuota(sorted []candidate, pickCount, perKeyword int) []candidate {
	picks := make([]candidate, 0, pickCount)
	var capped []candidate
	counts := make(map[string]int)

	for _, c := range sorted {
		if len(picks) == pickCount {
			break
		}
		if counts[c.keyword] >= perKeyword {
			capped = append(capped, c)
			continue
		}
		picks = append(picks, c)
		counts[c.keyword]++
	}
	for _, c := range capped {
		if len(picks) == pickCount {
			break
		}
		picks = append(picks, c)
	}
	return picks
}

// nearDuplicateTitle reports whether the title is too close to any already
// accepted candidate's title.
func nearDuplicateTitle(title string, accepted []candidate, cutoff float64) bool {
	for _, a := range accepted {
		if TitleRatio(title, a.title) > cutoff {
			return true
		}
	}
	return false
}

// personalRecency is a step function of hours since publish, flattening into
// a linear day-based decay after the first day.
func personalRecency(now, published time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	hours := now.Sub(published).Hours()
	switch {
	case hours < 1:
		return 1.0
	case hours < 6:
		return 0.9
	case hours < 12:
		return 0.8
	case hours < 24:
		return 0.6
	}
	v := 0.5 - 0.15*(hours/24)
	if v < 0 {
		return 0
	}
	return v
}

func joinTitles(articles []types.Article) string {
	var titles []string
	for _, a := range articles {
		if a.Title != "" {
			titles = append(titles, a.Title)
		}
	}
	return strings.Join(titles, " / ")
}

// topTags returns the n most frequent tags, ties broken alphabetically for
// determinism.
func topTags(articles []types.Article, n int) []string {
	freq := make(map[string]int)
	for _, a := range articles {
		for _, t := range a.Tags {
			freq[t]++
		}
	}
	tags := make([]string, 0, len(freq))
	for t := range freq {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if freq[tags[i]] != freq[tags[j]] {
			return freq[tags[i]] > freq[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
