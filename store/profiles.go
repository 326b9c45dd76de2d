package store

import (
	"context"
	"errors"

	"newskeep/types"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// Profile returns the user's profile. A missing row is reported as
// ErrNotFound; callers decide whether that means "no taste yet".
func (s *Postgres) Profile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	var (
		p   types.UserProfile
		vec *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, interest_vector, last_updated FROM user_profiles WHERE user_id = $1`,
		userID).Scan(&p.UserID, &vec, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if vec != nil {
		p.InterestVector = vec.Slice()
	}
	return &p, nil
}

// InterestVector returns the user's interest vector, or nil when the
// profile does not exist or has not been computed yet.
func (s *Postgres) InterestVector(ctx context.Context, userID int64) ([]float32, error) {
	p, err := s.Profile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.InterestVector, nil
}

// SaveInterestVector overwrites the user's interest vector, creating the
// profile row on first write.
func (s *Postgres) SaveInterestVector(ctx context.Context, userID int64, vec []float32) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_profiles (user_id, interest_vector, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET interest_vector = EXCLUDED.interest_vector, last_updated = now()`,
		userID, pgvector.NewVector(vec))
	return err
}
