// Package similarity implements player similarity search and alias detection
// over aggregated round activity. All candidate work runs through a bounded
// number of bulk queries; nothing here scales query count with result count.
package similarity

import (
	"context"
	"fmt"
	"time"

	"github.com/ernie/scout-tools/internal/domain"
)

const (
	// DefaultLimit is used when the caller does not specify a result count.
	DefaultLimit = 10
	// MaxLimit caps how many results one request may ask for.
	MaxLimit = 50
	// overFetchFactor controls how many candidates the heuristic pre-ranking
	// keeps for full scoring, as a multiple of the requested limit.
	overFetchFactor = 5
)

// Store is the data access the engine needs. *storage.Store satisfies it.
type Store interface {
	AggregatePlayerActivity(ctx context.Context, playerName string, now time.Time) (*domain.PlayerActivitySummary, error)
	FindCandidates(ctx context.Context, target *domain.PlayerActivitySummary, max int, mode domain.SimilarityMode, now time.Time) ([]*domain.PlayerActivitySummary, error)
	SessionOverlaps(ctx context.Context, targetName string, candidates []string, now time.Time) (map[string]domain.OverlapStat, error)
	ResolveServerNames(ctx context.Context, ids []int64) (map[int64]string, error)
	ComparePlayerHours(ctx context.Context, player1, player2 string, now time.Time) (*domain.HoursComparison, error)
}

// Engine runs similarity searches against a Store.
type Engine struct {
	store Store
	now   func() time.Time
}

// New creates an Engine backed by the given store.
func New(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// FindSimilarPlayers scores players who shared servers with the target and
// returns the top matches for the given mode. A target with no recorded
// activity yields an empty response with a nil Target, not an error.
func (e *Engine) FindSimilarPlayers(ctx context.Context, targetName string, limit int, mode domain.SimilarityMode) (*domain.SimilarResponse, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	now := e.now()

	resp := &domain.SimilarResponse{Mode: mode, Results: []domain.SimilarityResult{}}

	target, err := e.store.AggregatePlayerActivity(ctx, targetName, now)
	if err != nil {
		return nil, fmt.Errorf("aggregating target activity: %w", err)
	}
	if target == nil {
		return resp, nil
	}

	candidates, err := e.store.FindCandidates(ctx, target, limit*overFetchFactor, mode, now)
	if err != nil {
		return nil, fmt.Errorf("finding candidates: %w", err)
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.PlayerName
	}
	overlaps, err := e.store.SessionOverlaps(ctx, targetName, names, now)
	if err != nil {
		return nil, fmt.Errorf("computing session overlaps: %w", err)
	}
	targetRecent := overlaps[targetName].RecentMinutes

	scored := make([]domain.SimilarityResult, 0, len(candidates))
	summaries := make(map[string]*domain.PlayerActivitySummary, len(candidates))
	for _, c := range candidates {
		stat := overlaps[c.PlayerName]
		candidate := &domain.SimilarityCandidate{
			PlayerActivitySummary: *c,
			OverlapMinutes:        stat.OverlapMinutes,
			RecentMinutes:         stat.RecentMinutes,
		}
		score, reasons := scoreCandidate(target, candidate, targetRecent, mode)
		scored = append(scored, domain.SimilarityResult{
			ActivityStats:  domain.ActivityStats{PlayerName: c.PlayerName},
			OverlapMinutes: stat.OverlapMinutes,
			Score:          score,
			Reasons:        reasons,
		})
		summaries[c.PlayerName] = c
	}
	rankResults(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	// Resolve every server ID the response will mention in one batch, then
	// build the display structs.
	ids := collectServerIDs(target)
	for _, r := range scored {
		ids = appendServerIDs(ids, summaries[r.PlayerName])
	}
	serverNames, err := e.store.ResolveServerNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving server names: %w", err)
	}

	targetStats := displayStats(target, serverNames)
	resp.Target = &targetStats
	for i := range scored {
		scored[i].ActivityStats = displayStats(summaries[scored[i].PlayerName], serverNames)
	}
	resp.Results = scored
	return resp, nil
}

// CompareActivityHours returns hour-of-day playtime histograms for two
// players, scoped to their common servers when they share any.
func (e *Engine) CompareActivityHours(ctx context.Context, player1, player2 string) (*domain.HoursComparison, error) {
	cmp, err := e.store.ComparePlayerHours(ctx, player1, player2, e.now())
	if err != nil {
		return nil, fmt.Errorf("comparing activity hours: %w", err)
	}
	return cmp, nil
}

// PlayerActivity returns the resolved display form of one player's activity
// summary, or nil when the player has no recorded rounds.
func (e *Engine) PlayerActivity(ctx context.Context, playerName string) (*domain.ActivityStats, error) {
	summary, err := e.store.AggregatePlayerActivity(ctx, playerName, e.now())
	if err != nil {
		return nil, fmt.Errorf("aggregating player activity: %w", err)
	}
	if summary == nil {
		return nil, nil
	}
	serverNames, err := e.store.ResolveServerNames(ctx, collectServerIDs(summary))
	if err != nil {
		return nil, fmt.Errorf("resolving server names: %w", err)
	}
	stats := displayStats(summary, serverNames)
	return &stats, nil
}

func collectServerIDs(s *domain.PlayerActivitySummary) []int64 {
	return appendServerIDs(nil, s)
}

func appendServerIDs(ids []int64, s *domain.PlayerActivitySummary) []int64 {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(s.FavoriteServerID)
	for _, id := range s.ActiveServerIDs {
		add(id)
	}
	for id := range s.ServerPings {
		add(id)
	}
	return ids
}

func serverDisplayName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("server %d", id)
}

// displayStats converts an internal summary to its API shape, swapping every
// server ID for a display name.
func displayStats(s *domain.PlayerActivitySummary, serverNames map[int64]string) domain.ActivityStats {
	stats := domain.ActivityStats{
		PlayerName:            s.PlayerName,
		TotalKills:            s.TotalKills,
		TotalDeaths:           s.TotalDeaths,
		TotalPlaytime:         s.TotalPlaytime,
		KDRatio:               s.KDRatio,
		FavoriteServerMinutes: s.FavoriteServerMinutes,
		Games:                 s.Games,
		TypicalHours:          s.TypicalHours,
		MapDominance:          s.MapDominance,
		ActiveServers:         []string{},
	}
	if s.FavoriteServerID != 0 {
		stats.FavoriteServer = serverDisplayName(serverNames, s.FavoriteServerID)
	}
	for _, id := range s.ActiveServerIDs {
		stats.ActiveServers = append(stats.ActiveServers, serverDisplayName(serverNames, id))
	}
	if len(s.ServerPings) > 0 {
		stats.ServerPings = make(map[string]float64, len(s.ServerPings))
		for id, ping := range s.ServerPings {
			stats.ServerPings[serverDisplayName(serverNames, id)] = ping
		}
	}
	return stats
}
