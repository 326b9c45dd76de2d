package config

import "time"

// Ingestion Pipeline Constants
const (
	// MaxRetries caps transient-failure retries per article.
	MaxRetries = 3

	// RetryDelay is the wait before a transient failure is re-enqueued.
	RetryDelay = 60 * time.Second

	// MinContentLength is the minimum body length for a full SUCCESS fetch.
	MinContentLength = 200

	// StaleProcessingAfter is the watermark past which a stuck
	// PENDING/PROCESSING article is force-failed by the sweep.
	StaleProcessingAfter = 10 * time.Minute
)

// Interest Profile Constants
const (
	// ProfileSampleSize is how many recent completed articles feed the
	// interest vector.
	ProfileSampleSize = 50

	// ProfileDecayPerDay is the time-decay slope: weight = 1/(1+decay*days).
	ProfileDecayPerDay = 0.1

	// EmbeddingDimensions matches the embedding model output.
	EmbeddingDimensions = 1536
)

// Personalized Recommendation Constants
const (
	// PersonalPickCount is the number of PERSONAL recommendations per run.
	PersonalPickCount = 5

	// PersonalPerKeywordQuota caps picks sharing one driving keyword before
	// backfill kicks in.
	PersonalPerKeywordQuota = 2

	// SearchResultLimit is how many candidates each keyword search returns.
	SearchResultLimit = 100

	// ShortTermWindow bounds the short-term reading context.
	ShortTermWindow = 24 * time.Hour

	// LongTermWindow bounds the long-term reading context.
	LongTermWindow = 30 * 24 * time.Hour

	// PersonalSimilarityWeight, PersonalRecencyWeight and
	// PersonalKeywordWeight combine into the final score.
	PersonalSimilarityWeight = 0.7
	PersonalRecencyWeight    = 0.2
	PersonalKeywordWeight    = 0.1
)

// Exploratory Recommendation Constants
const (
	// ExplorePickCount is the number of EXPLORE recommendations per run.
	ExplorePickCount = 3

	// ExploreMaxAge rejects candidates published longer ago than this.
	ExploreMaxAge = 6 * 30 * 24 * time.Hour

	// ExploreSimilarityFloor and ExploreSimilarityCeil bound the useful
	// novelty band: below the floor there is no bridge value, above the
	// ceiling no learning value. Candidates are kept in (floor, ceil].
	ExploreSimilarityFloor = 0.15
	ExploreSimilarityCeil  = 0.85

	ExploreNoveltyWeight    = 0.45
	ExploreRecencyWeight    = 0.35
	ExploreSimilarityWeight = 0.20
)

// Recommendation publisher markers shown in place of a real outlet name.
const (
	PersonalPublisherMarker = "AI Recommend"
	ExplorePublisherMarker  = "AI Explore"
)
