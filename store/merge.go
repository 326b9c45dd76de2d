package store

import "newskeep/types"

// MergeDuplicate folds a duplicate row into the pre-existing row for the
// same source identity. Enrichable fields empty on the existing row are
// filled from the duplicate, and the status is upgraded when the duplicate
// reached a higher-priority state (COMPLETED > PARTIAL > the rest), never
// downgraded. Reports whether the existing row changed.
func MergeDuplicate(existing, dup *types.Article) bool {
	changed := false

	if existing.Title == "" && dup.Title != "" {
		existing.Title = dup.Title
		changed = true
	}
	if existing.Content == "" && dup.Content != "" {
		existing.Content = dup.Content
		changed = true
	}
	if existing.Summary == "" && dup.Summary != "" {
		existing.Summary = dup.Summary
		changed = true
	}
	if len(existing.Tags) == 0 && len(dup.Tags) > 0 {
		existing.Tags = dup.Tags
		changed = true
	}
	if existing.Vector == nil && dup.Vector != nil {
		existing.Vector = dup.Vector
		changed = true
	}
	if existing.Publisher == "" && dup.Publisher != "" {
		existing.Publisher = dup.Publisher
		changed = true
	}
	if existing.ImageURL == "" && dup.ImageURL != "" {
		existing.ImageURL = dup.ImageURL
		changed = true
	}
	if existing.PublishedAt == nil && dup.PublishedAt != nil {
		existing.PublishedAt = dup.PublishedAt
		changed = true
	}

	if dup.Status.HigherPriority(existing.Status) {
		existing.Status = dup.Status
		changed = true
	}

	return changed
}
