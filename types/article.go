package types

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an article row.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusProcessing  Status = "PROCESSING"
	StatusCompleted   Status = "COMPLETED"
	StatusPartial     Status = "PARTIAL"
	StatusFailed      Status = "FAILED"
	StatusRecommended Status = "RECOMMENDED"
)

// Terminal reports whether the pipeline must never reprocess this row.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// statusPriority orders statuses for duplicate-merge resolution:
// COMPLETED > PARTIAL > everything else.
func statusPriority(s Status) int {
	switch s {
	case StatusCompleted:
		return 2
	case StatusPartial:
		return 1
	default:
		return 0
	}
}

// HigherPriority reports whether s outranks other in the merge ordering.
func (s Status) HigherPriority(other Status) bool {
	return statusPriority(s) > statusPriority(other)
}

// RecommendationKind tags RECOMMENDED rows with their origin.
type RecommendationKind string

const (
	RecommendationPersonal RecommendationKind = "PERSONAL"
	RecommendationExplore  RecommendationKind = "EXPLORE"
)

// Article is one ingested or candidate article, owned by exactly one user.
// (user, source_oid, source_aid) uniquely identifies a source article per
// user; both identity parts are empty when the identity is unknown.
type Article struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	URL    string `json:"url"`

	SourceOID string `json:"source_oid,omitempty"`
	SourceAID string `json:"source_aid,omitempty"`

	Title   string    `json:"title"`
	Content string    `json:"content"`
	Summary string    `json:"summary"`
	Tags    []string  `json:"tags,omitempty"`
	Vector  []float32 `json:"-"`

	Publisher   string     `json:"publisher"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`

	Status             Status             `json:"status"`
	RecommendationKind RecommendationKind `json:"recommendation_kind,omitempty"`
	FailedReason       string             `json:"failed_reason,omitempty"`
	RetryCount         int                `json:"retry_count"`

	CrawledAt *time.Time `json:"crawled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasIdentity reports whether the article carries a parsed source identity.
func (a *Article) HasIdentity() bool {
	return a.SourceOID != "" && a.SourceAID != ""
}

func (a *Article) String() string {
	if a.Title != "" {
		return fmt.Sprintf("[%s] %s", a.Publisher, a.Title)
	}
	return a.URL
}
