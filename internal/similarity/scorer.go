package similarity

import (
	"math"
	"sort"

	"github.com/ernie/scout-tools/internal/domain"
)

// Sub-score thresholds above which a human-readable reason is attached.
const (
	reasonPlaytime  = 0.7
	reasonKDR       = 0.5
	reasonKillRate  = 0.5
	reasonHours     = 0.5
	reasonNoOverlap = 0.7
	reasonPing      = 0.7
	reasonMaps      = 0.7
)

// playtimeSimilarity compares total playtime as relative difference.
func playtimeSimilarity(a, b float64) float64 {
	max := math.Max(a, b)
	if max == 0 {
		return 1.0
	}
	return math.Max(0, 1-math.Abs(a-b)/max)
}

// kdrSimilarity decays exponentially with K/D distance: a full point of
// difference halves the score.
func kdrSimilarity(a, b float64) float64 {
	return math.Pow(0.5, math.Abs(a-b))
}

// killRateSimilarity decays twice as fast as kdrSimilarity since kills per
// minute differences are small numbers.
func killRateSimilarity(a, b float64) float64 {
	return math.Pow(0.5, 2*math.Abs(a-b))
}

func killRate(s *domain.PlayerActivitySummary) float64 {
	if s.TotalPlaytime <= 0 {
		return 0
	}
	return float64(s.TotalKills) / s.TotalPlaytime
}

// hourOverlapSimilarity is the Jaccard index of two typical-hour sets. When
// either side has no hour data the comparison gets half credit rather than a
// verdict in either direction.
func hourOverlapSimilarity(a, b []int) (score float64, known bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0.5, false
	}
	set := make(map[int]bool, len(a))
	for _, h := range a {
		set[h] = true
	}
	intersection := 0
	for _, h := range b {
		if set[h] {
			intersection++
		}
	}
	union := len(set) + len(b) - intersection
	return float64(intersection) / float64(union), true
}

// nonOverlapSimilarity rewards candidates who were online when the target was
// not. The overlap is normalized by the smaller of the two players' recent
// playtimes, the most either could have overlapped. Half credit when either
// player has no recent activity to compare.
func nonOverlapSimilarity(overlapMinutes, targetRecent, candidateRecent float64) (score float64, known bool) {
	maxComparable := math.Min(targetRecent, candidateRecent)
	if maxComparable <= 0 {
		return 0.5, false
	}
	return 1 - math.Min(1, overlapMinutes/maxComparable), true
}

// pingBucketScore maps a ping difference in milliseconds to a similarity
// value. Players behind the same connection land within a couple of
// milliseconds of each other.
func pingBucketScore(diff float64) float64 {
	switch {
	case diff <= 1:
		return 1.0
	case diff <= 2:
		return 0.9
	case diff <= 3:
		return 0.7
	case diff <= 5:
		return 0.4
	case diff <= 10:
		return 0.1
	default:
		return 0.0
	}
}

// pingSimilarity averages bucketed ping closeness over servers where both
// players have reliable averages. No shared server means no evidence, which
// scores zero: absence of a ping match is itself a signal in alias hunting.
func pingSimilarity(a, b map[int64]float64) (score float64, shared int) {
	var total float64
	for serverID, pa := range a {
		pb, ok := b[serverID]
		if !ok {
			continue
		}
		total += pingBucketScore(math.Abs(pa - pb))
		shared++
	}
	if shared == 0 {
		return 0.0, 0
	}
	return total / float64(shared), shared
}

// mapDominanceSimilarity compares per-map performance fingerprints. Each
// shared map contributes max(0, 1-|diff|), weighted by how far the pair sits
// from population average: dominating (or struggling on) a map is a stronger
// fingerprint than blending in.
func mapDominanceSimilarity(a, b map[string]float64) (score float64, shared int) {
	var weightedSum, weightTotal float64
	for mapName, da := range a {
		db, ok := b[mapName]
		if !ok {
			continue
		}
		sim := math.Max(0, 1-math.Abs(da-db))
		weight := math.Min(2.0, math.Max(0.5, (da+db)/2))
		weightedSum += sim * weight
		weightTotal += weight
		shared++
	}
	if shared == 0 {
		return 0.0, 0
	}
	return weightedSum / weightTotal, shared
}

// scoreCandidate produces a [0,1] similarity score and the list of reasons
// that crossed their thresholds. Reason order is fixed so identical inputs
// always produce identical output.
func scoreCandidate(target *domain.PlayerActivitySummary, c *domain.SimilarityCandidate, targetRecent float64, mode domain.SimilarityMode) (float64, []string) {
	w := domain.WeightsFor(mode)
	var score float64
	reasons := []string{}

	if w.Playtime > 0 {
		sub := playtimeSimilarity(target.TotalPlaytime, c.TotalPlaytime)
		score += w.Playtime * sub
		if sub > reasonPlaytime {
			reasons = append(reasons, "Similar playtime")
		}
	}

	if w.KDR > 0 {
		sub := kdrSimilarity(target.KDRatio, c.KDRatio)
		score += w.KDR * sub
		if sub > reasonKDR {
			reasons = append(reasons, "Similar KDR")
		}

		// Kill-rate agreement reinforces the K/D signal, scaled as a
		// fraction of the K/D weight. Only meaningful when both players
		// actually get kills.
		tr, cr := killRate(target), killRate(&c.PlayerActivitySummary)
		if w.KillRateBonus > 0 && tr > 0 && cr > 0 {
			sub := killRateSimilarity(tr, cr)
			score += w.KillRateBonus * w.KDR * sub
			if sub > reasonKillRate {
				reasons = append(reasons, "Similar kill rate")
			}
		}
	}

	if w.ServerAffinity > 0 && target.FavoriteServerID != 0 && target.FavoriteServerID == c.FavoriteServerID {
		score += w.ServerAffinity
		reasons = append(reasons, "Plays on same favorite server")
	}

	if w.HourOverlap > 0 {
		sub, known := hourOverlapSimilarity(target.TypicalHours, c.TypicalHours)
		score += w.HourOverlap * sub
		if known && sub > reasonHours {
			reasons = append(reasons, "Active during the same hours")
		}
	}

	if w.NonOverlap > 0 {
		sub, known := nonOverlapSimilarity(c.OverlapMinutes, targetRecent, c.RecentMinutes)
		score += w.NonOverlap * sub
		if known && sub > reasonNoOverlap {
			reasons = append(reasons, "Rarely online at the same time")
		}
	}

	if w.Ping > 0 {
		sub, shared := pingSimilarity(target.ServerPings, c.ServerPings)
		score += w.Ping * sub
		if shared > 0 && sub > reasonPing {
			reasons = append(reasons, "Matching ping profile")
		}
	}

	if w.MapDominance > 0 {
		sub, shared := mapDominanceSimilarity(target.MapDominance, c.MapDominance)
		score += w.MapDominance * sub
		if shared > 0 && sub > reasonMaps {
			reasons = append(reasons, "Similar per-map performance")
		}
	}

	return math.Min(1.0, score), reasons
}

// rankResults orders scored candidates best-first, breaking score ties by
// name so repeated searches return identical orderings.
func rankResults(results []domain.SimilarityResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PlayerName < results[j].PlayerName
	})
}
