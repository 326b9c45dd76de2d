package store

import (
	"testing"
	"time"

	"newskeep/types"
)

func TestMergeDuplicateFillsEmptyFields(t *testing.T) {
	published := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	existing := &types.Article{
		Title:  "기존 제목",
		Status: types.StatusPartial,
	}
	dup := &types.Article{
		Title:       "중복 제목",
		Content:     "본문",
		Summary:     "요약",
		Tags:        []string{"경제"},
		Vector:      []float32{0.1, 0.2},
		Publisher:   "연합뉴스",
		ImageURL:    "https://img.example.com/1.jpg",
		PublishedAt: &published,
		Status:      types.StatusCompleted,
	}

	if !MergeDuplicate(existing, dup) {
		t.Fatal("merge should report a change")
	}

	if existing.Title != "기존 제목" {
		t.Errorf("non-empty title was overwritten: %q", existing.Title)
	}
	if existing.Content != "본문" || existing.Summary != "요약" {
		t.Errorf("empty fields not filled: content=%q summary=%q", existing.Content, existing.Summary)
	}
	if len(existing.Tags) != 1 || existing.Vector == nil {
		t.Errorf("tags/vector not filled: %v %v", existing.Tags, existing.Vector)
	}
	if existing.PublishedAt == nil || !existing.PublishedAt.Equal(published) {
		t.Errorf("published_at not filled: %v", existing.PublishedAt)
	}
	if existing.Status != types.StatusCompleted {
		t.Errorf("status = %s, want upgrade to COMPLETED", existing.Status)
	}
}

func TestMergeDuplicateNeverDowngradesStatus(t *testing.T) {
	existing := &types.Article{Title: "t", Content: "c", Status: types.StatusCompleted}
	dup := &types.Article{Title: "t2", Content: "c2", Status: types.StatusPartial}

	changed := MergeDuplicate(existing, dup)
	if existing.Status != types.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED preserved", existing.Status)
	}
	if changed {
		t.Error("nothing should have changed")
	}
}

func TestMergeDuplicateNoOpOnFullRow(t *testing.T) {
	published := time.Now()
	full := &types.Article{
		Title: "t", Content: "c", Summary: "s",
		Tags: []string{"x"}, Vector: []float32{1},
		Publisher: "p", ImageURL: "i", PublishedAt: &published,
		Status: types.StatusCompleted,
	}
	dup := &types.Article{
		Title: "other", Content: "other", Summary: "other",
		Tags: []string{"y"}, Vector: []float32{2},
		Publisher: "other", ImageURL: "other", PublishedAt: &published,
		Status: types.StatusCompleted,
	}
	before := *full

	if MergeDuplicate(full, dup) {
		t.Error("merge into a full row should be a no-op")
	}
	if full.Title != before.Title || full.Content != before.Content {
		t.Error("full row fields were modified")
	}
}

func TestStatusPriorityOrdering(t *testing.T) {
	if !types.StatusCompleted.HigherPriority(types.StatusPartial) {
		t.Error("COMPLETED must outrank PARTIAL")
	}
	if !types.StatusPartial.HigherPriority(types.StatusFailed) {
		t.Error("PARTIAL must outrank FAILED")
	}
	if types.StatusFailed.HigherPriority(types.StatusPending) {
		t.Error("FAILED must not outrank PENDING")
	}
	if types.StatusCompleted.HigherPriority(types.StatusCompleted) {
		t.Error("equal statuses must not outrank each other")
	}
}
