package domain

// PlayerActivitySummary holds a player's rolled-up statistics over a lookback
// window. Server references are raw database IDs; the similarity engine
// resolves them to display names when building API results. Computed fresh
// per request, never persisted.
type PlayerActivitySummary struct {
	PlayerName            string
	TotalKills            uint64
	TotalDeaths           uint64
	TotalPlaytime         float64 // minutes
	KDRatio               float64 // kills/deaths, or kills if deaths = 0
	FavoriteServerID      int64
	FavoriteServerMinutes float64
	Games                 []string
	TypicalHours          []int               // hours of day (0-23)
	ServerPings           map[int64]float64   // server ID -> avg ping (>=10 samples, last 30 days)
	MapDominance          map[string]float64  // map name -> dominance score
	ActiveServerIDs       []int64             // >5 minutes played in-window
}

// HasActiveServer reports whether the given server is in the player's
// active-server set.
func (s *PlayerActivitySummary) HasActiveServer(serverID int64) bool {
	for _, id := range s.ActiveServerIDs {
		if id == serverID {
			return true
		}
	}
	return false
}

// SimilarityCandidate is a candidate player's summary plus the temporal
// overlap data computed against the target.
type SimilarityCandidate struct {
	PlayerActivitySummary
	OverlapMinutes float64 // session-time overlap with the target, last 3 months
	RecentMinutes  float64 // candidate's own playtime in the overlap window
}

// OverlapStat is the per-candidate output of the bulk session-overlap query.
type OverlapStat struct {
	OverlapMinutes float64 `json:"overlap_minutes"`
	RecentMinutes  float64 `json:"recent_minutes"`
}

// ActivityStats is the display form of a player's aggregated activity, with
// every server identifier resolved to its display name. Built once, after
// name resolution.
type ActivityStats struct {
	PlayerName            string             `json:"player_name"`
	TotalKills            uint64             `json:"total_kills"`
	TotalDeaths           uint64             `json:"total_deaths"`
	TotalPlaytime         float64            `json:"total_playtime_minutes"`
	KDRatio               float64            `json:"kd_ratio"`
	FavoriteServer        string             `json:"favorite_server"`
	FavoriteServerMinutes float64            `json:"favorite_server_minutes"`
	Games                 []string           `json:"games,omitempty"`
	TypicalHours          []int              `json:"typical_hours,omitempty"`
	ServerPings           map[string]float64 `json:"server_pings,omitempty"`
	MapDominance          map[string]float64 `json:"map_dominance,omitempty"`
	ActiveServers         []string           `json:"active_servers"`
}

// SimilarityResult is one scored candidate in a similarity search response.
type SimilarityResult struct {
	ActivityStats
	OverlapMinutes float64  `json:"overlap_minutes"`
	Score          float64  `json:"score"`
	Reasons        []string `json:"reasons"`
}

// SimilarResponse is the full output of a similarity search. Target is nil
// when the target player has no recorded activity in the lookback window;
// that is an expected outcome, not an error.
type SimilarResponse struct {
	Target  *ActivityStats     `json:"target"`
	Mode    SimilarityMode     `json:"mode"`
	Results []SimilarityResult `json:"results"`
}

// HoursComparison is the per-hour playtime breakdown for two players,
// scoped to their common servers when any exist.
type HoursComparison struct {
	Player1       string      `json:"player1"`
	Player2       string      `json:"player2"`
	Player1Hours  [24]float64 `json:"player1_hours"`
	Player2Hours  [24]float64 `json:"player2_hours"`
	CommonServers []string    `json:"common_servers,omitempty"`
}
