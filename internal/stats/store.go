package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Junith-K/guess-the-imposter/internal/game"
)

// Store keeps per-user career counters in Redis hashes. Counters are
// monotonic; there is no TTL because careers outlive sessions.
type Store struct{ rdb *redis.Client }

// NewStore connects using a redis:// URL and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewStoreWithClient wraps an existing client; used by tests.
func NewStoreWithClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyUser(userID string) string { return "imposter:stats:user:" + strings.TrimSpace(userID) }

// UserStats is one player's career line.
type UserStats struct {
	Name   string
	Games  int64
	Wins   int64
	Points int64
}

// Apply folds one finished session into every participant's counters.
func (s *Store) Apply(ctx context.Context, results []game.PlayerResult) error {
	if s == nil || s.rdb == nil || len(results) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, r := range results {
		key := s.keyUser(r.ID)
		pipe.HSet(ctx, key, "name", r.Name)
		pipe.HIncrBy(ctx, key, "games", 1)
		pipe.HIncrBy(ctx, key, "points", int64(r.Points))
		if r.Winner {
			pipe.HIncrBy(ctx, key, "wins", 1)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// User loads one player's career counters. A user with no history returns
// zeroes, not an error.
func (s *Store) User(ctx context.Context, userID string) (UserStats, error) {
	var out UserStats
	if s == nil || s.rdb == nil {
		return out, nil
	}
	m, err := s.rdb.HGetAll(ctx, s.keyUser(userID)).Result()
	if err != nil {
		return out, err
	}
	out.Name = m["name"]
	out.Games = parseCounter(m["games"])
	out.Wins = parseCounter(m["wins"])
	out.Points = parseCounter(m["points"])
	return out, nil
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
