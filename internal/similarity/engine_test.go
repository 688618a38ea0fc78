package similarity

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/ernie/scout-tools/internal/domain"
)

// fakeStore serves canned data so engine behavior can be tested without a
// database.
type fakeStore struct {
	summaries  map[string]*domain.PlayerActivitySummary
	candidates []*domain.PlayerActivitySummary
	overlaps   map[string]domain.OverlapStat
	names      map[int64]string
	hours      *domain.HoursComparison

	candidateMax int
}

func (f *fakeStore) AggregatePlayerActivity(ctx context.Context, playerName string, now time.Time) (*domain.PlayerActivitySummary, error) {
	return f.summaries[playerName], nil
}

func (f *fakeStore) FindCandidates(ctx context.Context, target *domain.PlayerActivitySummary, max int, mode domain.SimilarityMode, now time.Time) ([]*domain.PlayerActivitySummary, error) {
	f.candidateMax = max
	if len(f.candidates) > max {
		return f.candidates[:max], nil
	}
	return f.candidates, nil
}

func (f *fakeStore) SessionOverlaps(ctx context.Context, targetName string, candidates []string, now time.Time) (map[string]domain.OverlapStat, error) {
	return f.overlaps, nil
}

func (f *fakeStore) ResolveServerNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return f.names, nil
}

func (f *fakeStore) ComparePlayerHours(ctx context.Context, player1, player2 string, now time.Time) (*domain.HoursComparison, error) {
	return f.hours, nil
}

func fixtureWith(name string, kdr float64, favorite int64) *domain.PlayerActivitySummary {
	return &domain.PlayerActivitySummary{
		PlayerName:       name,
		TotalKills:       300,
		TotalDeaths:      200,
		TotalPlaytime:    900,
		KDRatio:          kdr,
		FavoriteServerID: favorite,
		TypicalHours:     []int{20, 21},
		ActiveServerIDs:  []int64{favorite},
	}
}

func TestFindSimilarPlayers(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given an engine over a fake store", t, func() {
		target := fixtureWith("target", 1.5, 1)
		store := &fakeStore{
			summaries: map[string]*domain.PlayerActivitySummary{"target": target},
			candidates: []*domain.PlayerActivitySummary{
				fixtureWith("close", 1.5, 1),
				fixtureWith("far", 4.0, 2),
			},
			overlaps: map[string]domain.OverlapStat{
				"target": {RecentMinutes: 400},
				"close":  {OverlapMinutes: 120, RecentMinutes: 350},
				"far":    {OverlapMinutes: 5, RecentMinutes: 100},
			},
			names: map[int64]string{1: "Hub DM", 2: "EU CTF"},
		}
		engine := New(store)

		convey.Convey("An unknown target yields an empty response, not an error", func() {
			resp, err := engine.FindSimilarPlayers(ctx, "nobody", 10, domain.ModeDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.Target, convey.ShouldBeNil)
			convey.So(resp.Results, convey.ShouldBeEmpty)
		})

		convey.Convey("Results come back scored, ordered, and name-resolved", func() {
			resp, err := engine.FindSimilarPlayers(ctx, "target", 10, domain.ModeDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.Target, convey.ShouldNotBeNil)
			convey.So(resp.Target.FavoriteServer, convey.ShouldEqual, "Hub DM")
			convey.So(len(resp.Results), convey.ShouldEqual, 2)
			convey.So(resp.Results[0].PlayerName, convey.ShouldEqual, "close")
			convey.So(resp.Results[0].Score, convey.ShouldBeGreaterThan, resp.Results[1].Score)
			convey.So(resp.Results[0].OverlapMinutes, convey.ShouldEqual, 120)
			convey.So(resp.Results[1].ActivityStats.FavoriteServer, convey.ShouldEqual, "EU CTF")
		})

		convey.Convey("Equal scores are tie-broken by name for stable output", func() {
			store.candidates = []*domain.PlayerActivitySummary{
				fixtureWith("bravo", 1.5, 1),
				fixtureWith("alpha", 1.5, 1),
			}
			store.overlaps = map[string]domain.OverlapStat{
				"target": {RecentMinutes: 400},
				"alpha":  {OverlapMinutes: 50, RecentMinutes: 300},
				"bravo":  {OverlapMinutes: 50, RecentMinutes: 300},
			}
			resp, err := engine.FindSimilarPlayers(ctx, "target", 10, domain.ModeDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.Results[0].PlayerName, convey.ShouldEqual, "alpha")
			convey.So(resp.Results[1].PlayerName, convey.ShouldEqual, "bravo")
		})

		convey.Convey("The limit caps results and drives candidate over-fetch", func() {
			resp, err := engine.FindSimilarPlayers(ctx, "target", 1, domain.ModeDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(resp.Results), convey.ShouldEqual, 1)
			convey.So(store.candidateMax, convey.ShouldEqual, overFetchFactor)
		})

		convey.Convey("A non-positive limit falls back to the default", func() {
			_, err := engine.FindSimilarPlayers(ctx, "target", 0, domain.ModeDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store.candidateMax, convey.ShouldEqual, DefaultLimit*overFetchFactor)
		})

		convey.Convey("Unresolvable server IDs fall back to a placeholder name", func() {
			store.names = map[int64]string{}
			resp, err := engine.FindSimilarPlayers(ctx, "target", 10, domain.ModeDefault)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.Target.FavoriteServer, convey.ShouldEqual, "server 1")
		})
	})
}

func TestPlayerActivity(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given an engine over a fake store", t, func() {
		store := &fakeStore{
			summaries: map[string]*domain.PlayerActivitySummary{
				"known": fixtureWith("known", 2.0, 7),
			},
			names: map[int64]string{7: "Duel Box"},
		}
		engine := New(store)

		convey.Convey("A known player's summary is resolved for display", func() {
			stats, err := engine.PlayerActivity(ctx, "known")
			convey.So(err, convey.ShouldBeNil)
			convey.So(stats, convey.ShouldNotBeNil)
			convey.So(stats.FavoriteServer, convey.ShouldEqual, "Duel Box")
			convey.So(stats.ActiveServers, convey.ShouldResemble, []string{"Duel Box"})
		})

		convey.Convey("An unknown player yields nil without error", func() {
			stats, err := engine.PlayerActivity(ctx, "ghost")
			convey.So(err, convey.ShouldBeNil)
			convey.So(stats, convey.ShouldBeNil)
		})
	})
}
