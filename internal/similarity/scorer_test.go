package similarity

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/ernie/scout-tools/internal/domain"
)

func summaryFixture(name string) domain.PlayerActivitySummary {
	return domain.PlayerActivitySummary{
		PlayerName:       name,
		TotalKills:       600,
		TotalDeaths:      400,
		TotalPlaytime:    1200,
		KDRatio:          1.5,
		FavoriteServerID: 1,
		TypicalHours:     []int{19, 20, 21},
		ActiveServerIDs:  []int64{1, 2},
	}
}

func TestSubScores(t *testing.T) {
	convey.Convey("Given the similarity sub-score functions", t, func() {
		convey.Convey("Playtime similarity is relative difference", func() {
			convey.So(playtimeSimilarity(100, 100), convey.ShouldAlmostEqual, 1.0)
			convey.So(playtimeSimilarity(50, 100), convey.ShouldAlmostEqual, 0.5)
			convey.So(playtimeSimilarity(0, 100), convey.ShouldAlmostEqual, 0.0)
			convey.So(playtimeSimilarity(0, 0), convey.ShouldAlmostEqual, 1.0)
		})

		convey.Convey("K/D similarity halves per full point of difference", func() {
			convey.So(kdrSimilarity(2.0, 2.0), convey.ShouldAlmostEqual, 1.0)
			convey.So(kdrSimilarity(2.0, 3.0), convey.ShouldAlmostEqual, 0.5)
			convey.So(kdrSimilarity(2.0, 4.0), convey.ShouldAlmostEqual, 0.25)
		})

		convey.Convey("Kill-rate similarity decays twice as fast", func() {
			convey.So(killRateSimilarity(1.0, 1.5), convey.ShouldAlmostEqual, 0.5)
		})

		convey.Convey("Hour overlap is the Jaccard index of typical hours", func() {
			score, known := hourOverlapSimilarity([]int{19, 20, 21}, []int{20, 21, 22})
			convey.So(known, convey.ShouldBeTrue)
			convey.So(score, convey.ShouldAlmostEqual, 0.5)

			score, known = hourOverlapSimilarity([]int{1, 2}, []int{1, 2})
			convey.So(known, convey.ShouldBeTrue)
			convey.So(score, convey.ShouldAlmostEqual, 1.0)
		})

		convey.Convey("Missing hour data gets half credit, not a verdict", func() {
			score, known := hourOverlapSimilarity(nil, []int{20})
			convey.So(known, convey.ShouldBeFalse)
			convey.So(score, convey.ShouldAlmostEqual, 0.5)
		})

		convey.Convey("Non-overlap normalizes by the smaller recent playtime", func() {
			score, known := nonOverlapSimilarity(0, 600, 400)
			convey.So(known, convey.ShouldBeTrue)
			convey.So(score, convey.ShouldAlmostEqual, 1.0)

			score, _ = nonOverlapSimilarity(200, 600, 400)
			convey.So(score, convey.ShouldAlmostEqual, 0.5)

			score, _ = nonOverlapSimilarity(1000, 600, 400)
			convey.So(score, convey.ShouldAlmostEqual, 0.0)
		})

		convey.Convey("Non-overlap gets half credit without recent activity", func() {
			score, known := nonOverlapSimilarity(0, 0, 400)
			convey.So(known, convey.ShouldBeFalse)
			convey.So(score, convey.ShouldAlmostEqual, 0.5)
		})

		convey.Convey("Ping closeness is bucketed, not linear", func() {
			convey.So(pingBucketScore(0.5), convey.ShouldEqual, 1.0)
			convey.So(pingBucketScore(1.5), convey.ShouldEqual, 0.9)
			convey.So(pingBucketScore(2.5), convey.ShouldEqual, 0.7)
			convey.So(pingBucketScore(4), convey.ShouldEqual, 0.4)
			convey.So(pingBucketScore(8), convey.ShouldEqual, 0.1)
			convey.So(pingBucketScore(50), convey.ShouldEqual, 0.0)
		})

		convey.Convey("Ping similarity averages shared servers and is zero without evidence", func() {
			a := map[int64]float64{1: 40, 2: 60}
			b := map[int64]float64{1: 40.5, 2: 63}
			score, shared := pingSimilarity(a, b)
			convey.So(shared, convey.ShouldEqual, 2)
			convey.So(score, convey.ShouldAlmostEqual, 0.7) // (1.0 + 0.4) / 2

			score, shared = pingSimilarity(a, map[int64]float64{9: 40})
			convey.So(shared, convey.ShouldEqual, 0)
			convey.So(score, convey.ShouldEqual, 0.0)
		})

		convey.Convey("Map dominance weights shared maps by distance from average", func() {
			a := map[string]float64{"dm17": 2.0, "dm6": 1.0}
			b := map[string]float64{"dm17": 2.0, "dm6": 1.0}
			score, shared := mapDominanceSimilarity(a, b)
			convey.So(shared, convey.ShouldEqual, 2)
			convey.So(score, convey.ShouldAlmostEqual, 1.0)

			score, shared = mapDominanceSimilarity(a, map[string]float64{"q3tourney": 1.0})
			convey.So(shared, convey.ShouldEqual, 0)
			convey.So(score, convey.ShouldEqual, 0.0)
		})
	})
}

func TestScoreCandidate(t *testing.T) {
	convey.Convey("Given a target player", t, func() {
		target := summaryFixture("target")

		convey.Convey("A near-identical player scores high in default mode", func() {
			c := &domain.SimilarityCandidate{PlayerActivitySummary: summaryFixture("twin")}
			score, reasons := scoreCandidate(&target, c, 600, domain.ModeDefault)

			convey.So(score, convey.ShouldBeGreaterThanOrEqualTo, 0.8)
			convey.So(score, convey.ShouldBeLessThanOrEqualTo, 1.0)
			convey.So(reasons, convey.ShouldContain, "Similar KDR")
			convey.So(reasons, convey.ShouldContain, "Plays on same favorite server")
		})

		convey.Convey("A very different player scores low in default mode", func() {
			c := &domain.SimilarityCandidate{
				PlayerActivitySummary: domain.PlayerActivitySummary{
					PlayerName:       "stranger",
					TotalKills:       10,
					TotalDeaths:      100,
					TotalPlaytime:    40,
					KDRatio:          0.1,
					FavoriteServerID: 9,
					TypicalHours:     []int{3, 4},
				},
			}
			score, _ := scoreCandidate(&target, c, 600, domain.ModeDefault)
			convey.So(score, convey.ShouldBeLessThan, 0.5)
		})

		convey.Convey("Identical output is produced for identical input", func() {
			c := &domain.SimilarityCandidate{PlayerActivitySummary: summaryFixture("twin")}
			s1, r1 := scoreCandidate(&target, c, 600, domain.ModeDefault)
			s2, r2 := scoreCandidate(&target, c, 600, domain.ModeDefault)
			convey.So(s1, convey.ShouldEqual, s2)
			convey.So(r1, convey.ShouldResemble, r2)
		})

		convey.Convey("In alias mode", func() {
			target.ServerPings = map[int64]float64{1: 42, 2: 55}
			target.MapDominance = map[string]float64{"dm17": 1.8}

			convey.Convey("A disjoint-schedule candidate with matching fingerprints scores high", func() {
				alias := summaryFixture("alt")
				alias.ServerPings = map[int64]float64{1: 42.4, 2: 55.6}
				alias.MapDominance = map[string]float64{"dm17": 1.75}
				c := &domain.SimilarityCandidate{
					PlayerActivitySummary: alias,
					OverlapMinutes:        0,
					RecentMinutes:         500,
				}
				score, reasons := scoreCandidate(&target, c, 600, domain.ModeAliasDetection)

				convey.So(score, convey.ShouldBeGreaterThan, 0.8)
				convey.So(reasons, convey.ShouldContain, "Rarely online at the same time")
				convey.So(reasons, convey.ShouldContain, "Matching ping profile")
				convey.So(reasons, convey.ShouldContain, "Similar per-map performance")
			})

			convey.Convey("Heavy session overlap drags the alias score down", func() {
				alias := summaryFixture("regular")
				alias.ServerPings = map[int64]float64{1: 42.4}
				c := &domain.SimilarityCandidate{
					PlayerActivitySummary: alias,
					OverlapMinutes:        600,
					RecentMinutes:         600,
				}
				overlapped, reasons := scoreCandidate(&target, c, 600, domain.ModeAliasDetection)
				convey.So(reasons, convey.ShouldNotContain, "Rarely online at the same time")

				c.OverlapMinutes = 0
				disjoint, _ := scoreCandidate(&target, c, 600, domain.ModeAliasDetection)
				convey.So(disjoint, convey.ShouldBeGreaterThan, overlapped)
			})

			convey.Convey("Missing ping evidence scores zero for the ping factor", func() {
				alias := summaryFixture("noping")
				c := &domain.SimilarityCandidate{PlayerActivitySummary: alias, RecentMinutes: 500}
				_, reasons := scoreCandidate(&target, c, 600, domain.ModeAliasDetection)
				convey.So(reasons, convey.ShouldNotContain, "Matching ping profile")
			})
		})
	})
}
