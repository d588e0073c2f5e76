package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"leaderboardAPI/internal/config"
	"leaderboardAPI/internal/kvstore"
	"leaderboardAPI/internal/types/leaderboard"
)

const (
	leaderboardKey = "leaderboard"
	bestTimesKey   = "best_times"

	DefaultLimit = 4
	// rivalsLimit is the size of the leaderboard returned after a submission.
	rivalsLimit = 4
	minFetch    = 12
)

var ErrInvalidPayload = errors.New("invalid payload")

// Store is the subset of the key-value store the leaderboard needs.
type Store interface {
	ZRangeWithScores(ctx context.Context, key string, start, stop int) ([]kvstore.ScoredMember, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	MultiExec(ctx context.Context, cmds ...kvstore.Command) ([]json.RawMessage, error)
}

type LeaderboardService struct {
	store Store
	cfg   config.Leaderboard
	now   func() time.Time
}

func NewLeaderboardService(store Store, cfg config.Leaderboard) *LeaderboardService {
	return &LeaderboardService{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// GetLeaderboard returns up to limit fastest runs, skipping excludeName, and
// the personal best of queryName when one is given.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, limit int, excludeName, queryName string) (*leaderboard.Leaderboard, error) {
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	entries, err := s.topEntries(ctx, limit, excludeName)
	if err != nil {
		return nil, err
	}

	best, err := s.bestTime(ctx, queryName)
	if err != nil {
		return nil, err
	}

	return &leaderboard.Leaderboard{
		Entries:  entries,
		BestTime: best,
	}, nil
}

// SubmitScore records a run and returns the player's best time along with
// the leaderboard of everyone else.
//
// The best-time write and the leaderboard insert are separate store calls
// unless AtomicSubmit is set. If the insert fails after the best-time write
// succeeded, best_times keeps the new value and the error is returned as is.
func (s *LeaderboardService) SubmitScore(ctx context.Context, name string, runTime float64) (*leaderboard.Submission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPayload)
	}
	if math.IsNaN(runTime) || math.IsInf(runTime, 0) || runTime < 0 {
		return nil, fmt.Errorf("%w: time must be a finite non-negative number", ErrInvalidPayload)
	}

	previous, err := s.bestTime(ctx, name)
	if err != nil {
		return nil, err
	}
	isNewBest := previous == nil || runTime < *previous

	writeBest := isNewBest || s.cfg.BestTimePolicy != config.PolicyKeepBest
	member := leaderboard.MemberKey(name, s.now().UnixMilli())

	if err := s.record(ctx, name, runTime, member, writeBest); err != nil {
		return nil, err
	}

	best, err := s.bestTime(ctx, name)
	if err != nil {
		return nil, err
	}

	rivals, err := s.topEntries(ctx, rivalsLimit, name)
	if err != nil {
		return nil, err
	}

	return &leaderboard.Submission{
		BestTime:    best,
		IsNewBest:   isNewBest,
		Leaderboard: rivals,
	}, nil
}

func (s *LeaderboardService) record(ctx context.Context, name string, runTime float64, member string, writeBest bool) error {
	score := kvstore.FormatScore(runTime)

	if s.cfg.AtomicSubmit {
		var cmds []kvstore.Command
		if writeBest {
			cmds = append(cmds, kvstore.HSetCommand(bestTimesKey, name, score))
		}
		cmds = append(cmds, kvstore.ZAddCommand(leaderboardKey, runTime, member))
		if _, err := s.store.MultiExec(ctx, cmds...); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		return nil
	}

	if writeBest {
		if err := s.store.HSet(ctx, bestTimesKey, name, score); err != nil {
			return fmt.Errorf("failed to update best time: %w", err)
		}
	}
	if err := s.store.ZAdd(ctx, leaderboardKey, runTime, member); err != nil {
		return fmt.Errorf("failed to add leaderboard entry: %w", err)
	}
	return nil
}

func (s *LeaderboardService) topEntries(ctx context.Context, limit int, excludeName string) ([]leaderboard.ScoreEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	fetch := max(limit*3, minFetch)

	members, err := s.store.ZRangeWithScores(ctx, leaderboardKey, 0, fetch-1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}

	entries := make([]leaderboard.ScoreEntry, 0, min(limit, len(members)))
	for _, m := range members {
		name := leaderboard.NameFromMember(m.Member)
		if excludeName != "" && name == excludeName {
			continue
		}
		entries = append(entries, leaderboard.ScoreEntry{Name: name, Time: m.Score})
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (s *LeaderboardService) bestTime(ctx context.Context, name string) (*float64, error) {
	if name == "" {
		return nil, nil
	}

	v, ok, err := s.store.HGet(ctx, bestTimesKey, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get best time: %w", err)
	}
	if !ok {
		return nil, nil
	}

	best, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid best time %q for %s: %w", v, name, err)
	}
	return &best, nil
}
