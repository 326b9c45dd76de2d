package types

import "time"

// UserProfile holds the per-user interest vector: the time-decay-weighted
// mean embedding of the user's most recent completed articles. The vector is
// nil until the first refresh and is always overwritten as a whole, never
// patched incrementally.
type UserProfile struct {
	UserID         int64     `json:"user_id"`
	InterestVector []float32 `json:"-"`
	LastUpdated    time.Time `json:"last_updated"`
}
