package storage

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ernie/scout-tools/internal/domain"
)

const (
	// activityWindowDays bounds aggregation and candidate search.
	activityWindowDays = 180
	// overlapWindowDays bounds session-overlap math to recent habits.
	overlapWindowDays = 90
	// pingWindowDays bounds ping averaging; older samples reflect routes
	// that may no longer exist.
	pingWindowDays = 30
	// minPingSamples is the floor below which a server's ping average is
	// too noisy to keep.
	minPingSamples = 10
	// activeServerMinutes is the minimum in-window playtime before a server
	// counts as part of a player's active set.
	activeServerMinutes = 5.0
	// candidateFloorMinutes filters drive-by players out of candidate search.
	candidateFloorMinutes = 30.0
	// dominanceFloorMinutes is the minimum per-map playtime before a
	// dominance rating is meaningful.
	dominanceFloorMinutes = 60.0
	// typicalHourFraction marks an hour as typical when its playtime reaches
	// this fraction of the 95th-percentile hour.
	typicalHourFraction = 0.5
)

func kdRatio(kills, deaths uint64) float64 {
	if deaths == 0 {
		return float64(kills)
	}
	return float64(kills) / float64(deaths)
}

// typicalHours reduces an hour-of-day playtime histogram to the hours the
// player habitually occupies: those within typicalHourFraction of the 95th
// percentile hour.
func typicalHours(histogram map[int]float64) []int {
	totals := make([]float64, 0, len(histogram))
	for _, minutes := range histogram {
		if minutes > 0 {
			totals = append(totals, minutes)
		}
	}
	if len(totals) == 0 {
		return nil
	}
	sort.Float64s(totals)
	idx := int(math.Ceil(0.95*float64(len(totals)))) - 1
	threshold := totals[idx] * typicalHourFraction

	var hours []int
	for hour, minutes := range histogram {
		if minutes >= threshold && minutes > 0 {
			hours = append(hours, hour)
		}
	}
	sort.Ints(hours)
	return hours
}

// AggregatePlayerActivity rolls up one player's statistics over the activity
// window ending at now. Returns (nil, nil) when the player has no human
// rounds in the window. Runs a fixed number of queries regardless of data
// volume.
func (s *Store) AggregatePlayerActivity(ctx context.Context, playerName string, now time.Time) (*domain.PlayerActivitySummary, error) {
	sinceTS := formatTimestamp(now.AddDate(0, 0, -activityWindowDays))

	// Totals and game list in one pass
	rows, err := s.db.QueryContext(ctx, `
		SELECT game, SUM(kills), SUM(deaths), SUM(playtime_minutes)
		FROM rounds
		WHERE player_name = ? AND is_bot = FALSE AND started_at >= ?
		GROUP BY game
	`, playerName, sinceTS)
	if err != nil {
		return nil, err
	}
	summary := &domain.PlayerActivitySummary{PlayerName: playerName}
	found := false
	for rows.Next() {
		var game string
		var kills, deaths uint64
		var minutes float64
		if err := rows.Scan(&game, &kills, &deaths, &minutes); err != nil {
			rows.Close()
			return nil, err
		}
		found = true
		summary.TotalKills += kills
		summary.TotalDeaths += deaths
		summary.TotalPlaytime += minutes
		if game != "" {
			summary.Games = append(summary.Games, game)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	sort.Strings(summary.Games)
	summary.KDRatio = kdRatio(summary.TotalKills, summary.TotalDeaths)

	// Per-server playtime: favorite server and active set
	rows, err = s.db.QueryContext(ctx, `
		SELECT server_id, SUM(playtime_minutes)
		FROM rounds
		WHERE player_name = ? AND is_bot = FALSE AND started_at >= ?
		GROUP BY server_id
	`, playerName, sinceTS)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var serverID int64
		var minutes float64
		if err := rows.Scan(&serverID, &minutes); err != nil {
			rows.Close()
			return nil, err
		}
		if minutes > summary.FavoriteServerMinutes {
			summary.FavoriteServerID = serverID
			summary.FavoriteServerMinutes = minutes
		}
		if minutes > activeServerMinutes {
			summary.ActiveServerIDs = append(summary.ActiveServerIDs, serverID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(summary.ActiveServerIDs, func(i, j int) bool {
		return summary.ActiveServerIDs[i] < summary.ActiveServerIDs[j]
	})

	// Hour-of-day histogram -> typical hours
	histogram, err := s.playerHourHistograms(ctx, []string{playerName}, sinceTS, nil)
	if err != nil {
		return nil, err
	}
	summary.TypicalHours = typicalHours(histogram[playerName])

	// Ping averages, recent window only
	pings, err := s.playerServerPings(ctx, []string{playerName}, now)
	if err != nil {
		return nil, err
	}
	summary.ServerPings = pings[playerName]

	// Map dominance against the population on the player's active servers
	dominance, err := s.playerMapDominance(ctx, []string{playerName}, sinceTS, summary.ActiveServerIDs)
	if err != nil {
		return nil, err
	}
	summary.MapDominance = dominance[playerName]

	return summary, nil
}

// playerHourHistograms returns per-player hour-of-day playtime histograms in
// one query. serverIDs, when non-empty, scopes the histogram to those servers.
func (s *Store) playerHourHistograms(ctx context.Context, players []string, sinceTS string, serverIDs []int64) (map[string]map[int]float64, error) {
	out := make(map[string]map[int]float64, len(players))
	if len(players) == 0 {
		return out, nil
	}

	playerPH, args := placeholderArgs(players)
	query := `
		SELECT player_name, CAST(strftime('%H', started_at) AS INTEGER) AS hour, SUM(playtime_minutes)
		FROM rounds
		WHERE player_name IN (` + playerPH + `) AND is_bot = FALSE AND started_at >= ?`
	args = append(args, sinceTS)
	if len(serverIDs) > 0 {
		serverPH, serverArgs := placeholderArgs(serverIDs)
		query += ` AND server_id IN (` + serverPH + `)`
		args = append(args, serverArgs...)
	}
	query += ` GROUP BY player_name, hour`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var hour int
		var minutes float64
		if err := rows.Scan(&name, &hour, &minutes); err != nil {
			return nil, err
		}
		if out[name] == nil {
			out[name] = make(map[int]float64)
		}
		out[name][hour] = minutes
	}
	return out, rows.Err()
}

// playerServerPings returns per-player, per-server average pings over the
// ping window, dropping servers with too few samples.
func (s *Store) playerServerPings(ctx context.Context, players []string, now time.Time) (map[string]map[int64]float64, error) {
	out := make(map[string]map[int64]float64, len(players))
	if len(players) == 0 {
		return out, nil
	}

	since := formatTimestamp(now.AddDate(0, 0, -pingWindowDays))
	placeholders, args := placeholderArgs(players)
	args = append(args, since, minPingSamples)
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_name, server_id, AVG(ping)
		FROM ping_metrics
		WHERE player_name IN (`+placeholders+`) AND recorded_at >= ?
			AND ping > 0 AND ping < 1000
		GROUP BY player_name, server_id
		HAVING COUNT(*) >= ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var serverID int64
		var avg float64
		if err := rows.Scan(&name, &serverID, &avg); err != nil {
			return nil, err
		}
		if out[name] == nil {
			out[name] = make(map[int64]float64)
		}
		out[name][serverID] = avg
	}
	return out, rows.Err()
}

// playerMapDominance computes, per player and map, how that player's kill and
// score rates compare to everyone else on the given servers. A value of 1.0
// means population-average performance. Maps with under an hour of the
// player's time are skipped.
func (s *Store) playerMapDominance(ctx context.Context, players []string, sinceTS string, serverIDs []int64) (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64, len(players))
	if len(players) == 0 || len(serverIDs) == 0 {
		return out, nil
	}

	serverPH, serverArgs := placeholderArgs(serverIDs)

	// Population rates per map, bots excluded
	type rates struct {
		killRate  float64
		scoreRate float64
	}
	popArgs := append([]interface{}{}, serverArgs...)
	popArgs = append(popArgs, sinceTS)
	rows, err := s.db.QueryContext(ctx, `
		SELECT map_name, SUM(kills), SUM(score), SUM(playtime_minutes)
		FROM rounds
		WHERE server_id IN (`+serverPH+`) AND is_bot = FALSE AND started_at >= ?
		GROUP BY map_name
	`, popArgs...)
	if err != nil {
		return nil, err
	}
	population := make(map[string]rates)
	for rows.Next() {
		var mapName string
		var kills, score int64
		var minutes float64
		if err := rows.Scan(&mapName, &kills, &score, &minutes); err != nil {
			rows.Close()
			return nil, err
		}
		if minutes > 0 {
			population[mapName] = rates{
				killRate:  float64(kills) / minutes,
				scoreRate: float64(score) / minutes,
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Per-player rates on the same maps
	playerPH, playerArgs := placeholderArgs(players)
	args := append(playerArgs, serverArgs...)
	args = append(args, sinceTS, dominanceFloorMinutes)
	rows, err = s.db.QueryContext(ctx, `
		SELECT player_name, map_name, SUM(kills), SUM(score), SUM(playtime_minutes)
		FROM rounds
		WHERE player_name IN (`+playerPH+`) AND server_id IN (`+serverPH+`)
			AND is_bot = FALSE AND started_at >= ?
		GROUP BY player_name, map_name
		HAVING SUM(playtime_minutes) >= ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, mapName string
		var kills, score int64
		var minutes float64
		if err := rows.Scan(&name, &mapName, &kills, &score, &minutes); err != nil {
			return nil, err
		}
		pop, ok := population[mapName]
		if !ok || minutes <= 0 {
			continue
		}
		killRatio := 1.0
		if pop.killRate > 0 {
			killRatio = (float64(kills) / minutes) / pop.killRate
		}
		scoreRatio := 1.0
		if pop.scoreRate > 0 {
			scoreRatio = (float64(score) / minutes) / pop.scoreRate
		}
		if out[name] == nil {
			out[name] = make(map[string]float64)
		}
		out[name][mapName] = (killRatio + scoreRatio) / 2
	}
	return out, rows.Err()
}

// FindCandidates returns up to max candidate summaries for players who shared
// servers with the target in the window. One grouped query builds the base
// summaries; a bounded number of batch queries enriches the survivors. The
// enrichment set depends on the similarity mode.
func (s *Store) FindCandidates(ctx context.Context, target *domain.PlayerActivitySummary, max int, mode domain.SimilarityMode, now time.Time) ([]*domain.PlayerActivitySummary, error) {
	if len(target.ActiveServerIDs) == 0 || max <= 0 {
		return nil, nil
	}
	sinceTS := formatTimestamp(now.AddDate(0, 0, -activityWindowDays))

	serverPH, serverArgs := placeholderArgs(target.ActiveServerIDs)
	args := append(serverArgs, target.PlayerName, sinceTS)
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_name, server_id, SUM(kills), SUM(deaths), SUM(playtime_minutes)
		FROM rounds
		WHERE server_id IN (`+serverPH+`) AND player_name != ?
			AND is_bot = FALSE AND started_at >= ?
		GROUP BY player_name, server_id
	`, args...)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*domain.PlayerActivitySummary)
	for rows.Next() {
		var name string
		var serverID int64
		var kills, deaths uint64
		var minutes float64
		if err := rows.Scan(&name, &serverID, &kills, &deaths, &minutes); err != nil {
			rows.Close()
			return nil, err
		}
		c := byName[name]
		if c == nil {
			c = &domain.PlayerActivitySummary{PlayerName: name}
			byName[name] = c
		}
		c.TotalKills += kills
		c.TotalDeaths += deaths
		c.TotalPlaytime += minutes
		if minutes > c.FavoriteServerMinutes {
			c.FavoriteServerID = serverID
			c.FavoriteServerMinutes = minutes
		}
		if minutes > activeServerMinutes {
			c.ActiveServerIDs = append(c.ActiveServerIDs, serverID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	candidates := make([]*domain.PlayerActivitySummary, 0, len(byName))
	for _, c := range byName {
		if c.TotalPlaytime < candidateFloorMinutes {
			continue
		}
		c.KDRatio = kdRatio(c.TotalKills, c.TotalDeaths)
		sort.Slice(c.ActiveServerIDs, func(i, j int) bool {
			return c.ActiveServerIDs[i] < c.ActiveServerIDs[j]
		})
		candidates = append(candidates, c)
	}

	// Cheap pre-ranking before the expensive enrichment: shared favorite
	// server first, then closeness of K/D, then name for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aFav := a.FavoriteServerID == target.FavoriteServerID
		bFav := b.FavoriteServerID == target.FavoriteServerID
		if aFav != bFav {
			return aFav
		}
		da := math.Abs(a.KDRatio - target.KDRatio)
		db := math.Abs(b.KDRatio - target.KDRatio)
		if da != db {
			return da < db
		}
		return a.PlayerName < b.PlayerName
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.PlayerName
	}

	histograms, err := s.playerHourHistograms(ctx, names, sinceTS, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		c.TypicalHours = typicalHours(histograms[c.PlayerName])
	}

	if mode == domain.ModeAliasDetection {
		pings, err := s.playerServerPings(ctx, names, now)
		if err != nil {
			return nil, err
		}
		dominance, err := s.playerMapDominance(ctx, names, sinceTS, target.ActiveServerIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			c.ServerPings = pings[c.PlayerName]
			c.MapDominance = dominance[c.PlayerName]
		}
	}

	return candidates, nil
}

// SessionOverlaps computes, for each candidate, the total minutes their
// sessions overlapped the target's on the same server within the overlap
// window, plus each player's own recent playtime. The returned map also
// carries an entry for the target itself (overlap zero, recent minutes filled
// in). Two queries total, independent of candidate count.
func (s *Store) SessionOverlaps(ctx context.Context, targetName string, candidates []string, now time.Time) (map[string]domain.OverlapStat, error) {
	stats := make(map[string]domain.OverlapStat, len(candidates)+1)
	if len(candidates) == 0 {
		return stats, nil
	}
	sinceTS := formatTimestamp(now.AddDate(0, 0, -overlapWindowDays))

	placeholders, candidateArgs := placeholderArgs(candidates)
	args := append([]interface{}{targetName}, candidateArgs...)
	args = append(args, sinceTS, sinceTS)
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.player_name,
			SUM((MIN(julianday(c.ended_at), julianday(t.ended_at)) -
			     MAX(julianday(c.started_at), julianday(t.started_at))) * 1440.0)
		FROM rounds c
		JOIN rounds t ON t.player_name = ?
			AND t.server_id = c.server_id
			AND c.started_at < t.ended_at
			AND t.started_at < c.ended_at
		WHERE c.player_name IN (`+placeholders+`)
			AND c.is_bot = FALSE AND t.is_bot = FALSE
			AND c.started_at >= ? AND t.started_at >= ?
		GROUP BY c.player_name
	`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		var overlap float64
		if err := rows.Scan(&name, &overlap); err != nil {
			rows.Close()
			return nil, err
		}
		stats[name] = domain.OverlapStat{OverlapMinutes: overlap}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentPH, recentArgs := placeholderArgs(append([]string{targetName}, candidates...))
	recentArgs = append(recentArgs, sinceTS)
	rows, err = s.db.QueryContext(ctx, `
		SELECT player_name, SUM(playtime_minutes)
		FROM rounds
		WHERE player_name IN (`+recentPH+`) AND is_bot = FALSE AND started_at >= ?
		GROUP BY player_name
	`, recentArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var minutes float64
		if err := rows.Scan(&name, &minutes); err != nil {
			return nil, err
		}
		stat := stats[name]
		stat.RecentMinutes = minutes
		stats[name] = stat
	}
	return stats, rows.Err()
}

// ComparePlayerHours builds per-hour playtime histograms for two players.
// When the players share servers, both histograms are scoped to the shared
// set so the comparison reflects time they could actually have crossed paths.
func (s *Store) ComparePlayerHours(ctx context.Context, player1, player2 string, now time.Time) (*domain.HoursComparison, error) {
	sinceTS := formatTimestamp(now.AddDate(0, 0, -activityWindowDays))

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name FROM servers s WHERE s.id IN (
			SELECT server_id FROM rounds
			WHERE player_name = ? AND is_bot = FALSE AND started_at >= ?
			INTERSECT
			SELECT server_id FROM rounds
			WHERE player_name = ? AND is_bot = FALSE AND started_at >= ?
		) ORDER BY s.name
	`, player1, sinceTS, player2, sinceTS)
	if err != nil {
		return nil, err
	}
	var commonIDs []int64
	var commonNames []string
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, err
		}
		commonIDs = append(commonIDs, id)
		commonNames = append(commonNames, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histograms, err := s.playerHourHistograms(ctx, []string{player1, player2}, sinceTS, commonIDs)
	if err != nil {
		return nil, err
	}

	cmp := &domain.HoursComparison{
		Player1:       player1,
		Player2:       player2,
		CommonServers: commonNames,
	}
	for hour, minutes := range histograms[player1] {
		cmp.Player1Hours[hour] = minutes
	}
	for hour, minutes := range histograms[player2] {
		cmp.Player2Hours[hour] = minutes
	}
	return cmp, nil
}
