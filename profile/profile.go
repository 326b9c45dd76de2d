package profile

import (
	"context"
	"fmt"
	"log"
	"time"

	"newskeep/config"
	"newskeep/types"
)

// Store is the persistence surface the profile maintainer needs.
type Store interface {
	RecentEmbedded(ctx context.Context, userID int64, limit int) ([]types.Article, error)
	SaveInterestVector(ctx context.Context, userID int64, vec []float32) error
}

// Maintainer recomputes per-user interest vectors from reading history.
type Maintainer struct {
	store      Store
	sampleSize int
	decay      float64
	now        func() time.Time
}

func NewMaintainer(store Store) *Maintainer {
	return &Maintainer{
		store:      store,
		sampleSize: config.ProfileSampleSize,
		decay:      config.ProfileDecayPerDay,
		now:        time.Now,
	}
}

// Refresh recomputes the user's interest vector as the time-decayed weighted
// mean of their most recent embedded articles. Newer reads count more:
// weight = 1 / (1 + decay * age_days). With no embedded history the stored
// vector is left untouched.
func (m *Maintainer) Refresh(ctx context.Context, userID int64) error {
	articles, err := m.store.RecentEmbedded(ctx, userID, m.sampleSize)
	if err != nil {
		return fmt.Errorf("load embedded articles for user %d: %w", userID, err)
	}
	if len(articles) == 0 {
		log.Printf("[profile] user %d has no embedded history, keeping profile", userID)
		return nil
	}

	vec := m.weightedMean(articles)
	if vec == nil {
		return nil
	}
	if err := m.store.SaveInterestVector(ctx, userID, vec); err != nil {
		return fmt.Errorf("save interest vector for user %d: %w", userID, err)
	}
	log.Printf("[profile] user %d interest vector rebuilt from %d article(s)", userID, len(articles))
	return nil
}

func (m *Maintainer) weightedMean(articles []types.Article) []float32 {
	now := m.now()
	var (
		sum   []float64
		total float64
	)
	for _, a := range articles {
		if len(a.Vector) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(a.Vector))
		}
		if len(a.Vector) != len(sum) {
			log.Printf("[profile] skipping article %d: dimension %d != %d", a.ID, len(a.Vector), len(sum))
			continue
		}

		w := m.weightAt(now, a)
		for i, v := range a.Vector {
			sum[i] += float64(v) * w
		}
		total += w
	}
	if sum == nil || total == 0 {
		return nil
	}

	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = float32(v / total)
	}
	return out
}

// weightAt decays by article age in days, anchored on row creation time.
func (m *Maintainer) weightAt(now time.Time, a types.Article) float64 {
	ageDays := now.Sub(a.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + m.decay*ageDays)
}
