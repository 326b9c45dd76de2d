package seen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Filter records which candidate URLs have already been surfaced to a user,
// so repeated recommendation runs do not re-offer the same articles. False
// positives only suppress a candidate, never corrupt data.
type Filter interface {
	Seen(ctx context.Context, userID int64, rawURL string) (bool, error)
	MarkSeen(ctx context.Context, userID int64, rawURL string) error
}

// BloomConfig configures the RedisBloom connection and key layout.
type BloomConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
	Capacity  int
	ErrorRate float64
}

// RedisBloom is a per-user Bloom filter backed by RedisBloom commands.
type RedisBloom struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	capacity  int
	errorRate float64
}

// NewRedisBloom connects to Redis and verifies connectivity.
func NewRedisBloom(cfg BloomConfig) (*RedisBloom, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "newskeep:seen"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100000
	}
	if cfg.ErrorRate <= 0 {
		cfg.ErrorRate = 0.001
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisBloom{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		capacity:  cfg.Capacity,
		errorRate: cfg.ErrorRate,
	}, nil
}

// Close closes the underlying Redis client.
func (r *RedisBloom) Close() error {
	return r.client.Close()
}

func (r *RedisBloom) key(userID int64) string {
	return fmt.Sprintf("%s:%d", r.keyPrefix, userID)
}

// Seen checks the user's filter with BF.EXISTS.
func (r *RedisBloom) Seen(ctx context.Context, userID int64, rawURL string) (bool, error) {
	res, err := r.client.Do(ctx, "BF.EXISTS", r.key(userID), hashURL(rawURL)).Result()
	if err != nil {
		return false, err
	}
	switch v := res.(type) {
	case int64:
		return v == 1, nil
	case string:
		return v == "1", nil
	default:
		return false, fmt.Errorf("unexpected BF.EXISTS response type %T: %v", res, res)
	}
}

// MarkSeen inserts the URL with BF.ADD, reserving the user's filter on first
// use and sliding the key TTL so the filter expires only after real idleness.
func (r *RedisBloom) MarkSeen(ctx context.Context, userID int64, rawURL string) error {
	key := r.key(userID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err == nil && exists == 0 {
		// Best-effort; BF.ADD auto-creates when RedisBloom allows it.
		_ = r.client.Do(ctx, "BF.RESERVE", key, fmt.Sprintf("%f", r.errorRate), r.capacity).Err()
	}

	if err := r.client.Do(ctx, "BF.ADD", key, hashURL(rawURL)).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, r.ttl).Err()
}

// hashURL normalizes a URL (lowercased host, no fragment, tracking params
// stripped) and returns its SHA-256 hex digest.
func hashURL(raw string) string {
	h := sha256.Sum256([]byte(normalizeURL(raw)))
	return hex.EncodeToString(h[:])
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return strings.TrimRight(u.String(), "/")
}
