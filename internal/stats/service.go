package stats

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/game"
	"github.com/Junith-K/guess-the-imposter/internal/obslog"
)

// Service fans finished-session results out to the career counters and the
// session archive. Either backend may be absent; recording stays best effort.
type Service struct {
	store *Store
	repo  *Repository
}

func NewService(store *Store, repo *Repository) *Service {
	return &Service{store: store, repo: repo}
}

// RecordSession implements game.Recorder.
func (s *Service) RecordSession(ctx context.Context, room string, rounds int, results []game.PlayerResult) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.store != nil {
		if err := s.store.Apply(ctx, results); err != nil {
			obslog.L().Warn("stats_counters_failed", zap.String("room", room), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveStandings(ctx, room, rounds, results); err != nil {
			obslog.L().Warn("stats_archive_failed", zap.String("room", room), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// User proxies career lookups to the counter store.
func (s *Service) User(ctx context.Context, userID string) (UserStats, error) {
	if s == nil || s.store == nil {
		return UserStats{}, nil
	}
	return s.store.User(ctx, userID)
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		obslog.L().Warn("stats_store_close_failed", zap.Error(err))
	}
	if err := s.repo.Close(); err != nil {
		obslog.L().Warn("stats_repo_close_failed", zap.Error(err))
	}
}
