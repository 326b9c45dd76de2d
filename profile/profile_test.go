package profile

import (
	"context"
	"math"
	"testing"
	"time"

	"newskeep/types"
)

type fakeProfileStore struct {
	articles []types.Article
	saved    []float32
	savedFor int64
}

func (f *fakeProfileStore) RecentEmbedded(_ context.Context, userID int64, limit int) ([]types.Article, error) {
	if len(f.articles) > limit {
		return f.articles[:limit], nil
	}
	return f.articles, nil
}

func (f *fakeProfileStore) SaveInterestVector(_ context.Context, userID int64, vec []float32) error {
	f.savedFor = userID
	f.saved = vec
	return nil
}

func embeddedAt(created time.Time, vec []float32) types.Article {
	return types.Article{Vector: vec, CreatedAt: created, Status: types.StatusCompleted}
}

func TestRefreshWeightedMean(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &fakeProfileStore{articles: []types.Article{
		embeddedAt(now, []float32{1, 0}),                    // age 0d, weight 1
		embeddedAt(now.Add(-24*time.Hour), []float32{0, 1}), // age 1d, weight 1/1.1
		embeddedAt(now.Add(-48*time.Hour), []float32{1, 1}), // age 2d, weight 1/1.2
	}}

	m := NewMaintainer(st)
	m.now = func() time.Time { return now }

	if err := m.Refresh(context.Background(), 7); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if st.savedFor != 7 {
		t.Fatalf("saved for user %d, want 7", st.savedFor)
	}

	w0, w1, w2 := 1.0, 1/1.1, 1/1.2
	total := w0 + w1 + w2
	want := []float64{(w0 + w2) / total, (w1 + w2) / total}
	for i, w := range want {
		if math.Abs(float64(st.saved[i])-w) > 1e-6 {
			t.Errorf("dim %d = %f, want %f", i, st.saved[i], w)
		}
	}
}

func TestRefreshKeepsProfileWithoutHistory(t *testing.T) {
	st := &fakeProfileStore{saved: []float32{0.5, 0.5}}
	m := NewMaintainer(st)

	if err := m.Refresh(context.Background(), 7); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if st.savedFor != 0 {
		t.Error("empty history must not overwrite the stored vector")
	}
}

func TestRefreshSkipsMismatchedDimensions(t *testing.T) {
	now := time.Now()
	st := &fakeProfileStore{articles: []types.Article{
		embeddedAt(now, []float32{1, 0}),
		embeddedAt(now, []float32{1, 2, 3}), // wrong dimension, ignored
	}}
	m := NewMaintainer(st)

	if err := m.Refresh(context.Background(), 7); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(st.saved) != 2 {
		t.Fatalf("saved vector has %d dims, want 2", len(st.saved))
	}
	if math.Abs(float64(st.saved[0])-1) > 1e-6 || math.Abs(float64(st.saved[1])) > 1e-6 {
		t.Errorf("saved = %v, want [1 0]", st.saved)
	}
}
