package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ernie/scout-tools/internal/domain"
)

func TestUpsertServer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertServer(ctx, "Alpha", "alpha:27960")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same address keeps the same ID and takes the new name
	id2, err := store.UpsertServer(ctx, "Alpha Renamed", "alpha:27960")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert changed ID: %d -> %d", id1, id2)
	}

	names, err := store.ResolveServerNames(ctx, []int64{id1})
	if err != nil {
		t.Fatalf("resolving names: %v", err)
	}
	if names[id1] != "Alpha Renamed" {
		t.Errorf("name = %q, want Alpha Renamed", names[id1])
	}

	// Empty name falls back to the address
	id3, err := store.UpsertServer(ctx, "", "beta:27960")
	if err != nil {
		t.Fatalf("upsert without name: %v", err)
	}
	names, _ = store.ResolveServerNames(ctx, []int64{id3})
	if names[id3] != "beta:27960" {
		t.Errorf("fallback name = %q, want beta:27960", names[id3])
	}
}

func TestResolveServerNamesEmpty(t *testing.T) {
	store := newTestStore(t)

	names, err := store.ResolveServerNames(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty map, got %v", names)
	}
}

func TestInsertRoundIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sid := seedServer(t, store, "Alpha", "alpha:27960")
	round := &domain.Round{
		RoundUUID:       "fixed-uuid",
		PlayerName:      "alice",
		ServerID:        sid,
		MapName:         "dm17",
		Game:            "q3a",
		StartedAt:       now.Add(-time.Hour),
		EndedAt:         now,
		Kills:           10,
		Deaths:          5,
		PlaytimeMinutes: 60,
	}
	if err := store.InsertRound(ctx, round); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Replayed message with the same UUID is a no-op, not an error
	dup := *round
	dup.Kills = 9999
	if err := store.InsertRound(ctx, &dup); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	summary, err := store.AggregatePlayerActivity(ctx, "alice", now)
	if err != nil {
		t.Fatalf("aggregating: %v", err)
	}
	if summary.TotalKills != 10 {
		t.Errorf("kills = %d, want 10 (duplicate must not count)", summary.TotalKills)
	}
}

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateUser(ctx, "admin", "hash1", true); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	if err := store.CreateUser(ctx, "viewer", "hash2", false); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	user, err := store.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if !user.IsAdmin || user.PasswordHash != "hash1" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.LastLogin != nil {
		t.Errorf("fresh user should have no last login")
	}

	if err := store.UpdateUserLastLogin(ctx, user.ID); err != nil {
		t.Fatalf("updating last login: %v", err)
	}
	user, _ = store.GetUserByID(ctx, user.ID)
	if user.LastLogin == nil {
		t.Errorf("last login not recorded")
	}

	if err := store.ResetUserPassword(ctx, user.ID, "temp"); err != nil {
		t.Fatalf("resetting password: %v", err)
	}
	user, _ = store.GetUserByID(ctx, user.ID)
	if !user.PasswordChangeRequired || user.PasswordHash != "temp" {
		t.Errorf("reset not applied: %+v", user)
	}

	if err := store.UpdateUserPassword(ctx, user.ID, "chosen"); err != nil {
		t.Fatalf("updating password: %v", err)
	}
	user, _ = store.GetUserByID(ctx, user.ID)
	if user.PasswordChangeRequired || user.PasswordHash != "chosen" {
		t.Errorf("password change not applied: %+v", user)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("listing users: %v", err)
	}
	if len(users) != 2 || users[0].Username != "admin" || users[1].Username != "viewer" {
		t.Errorf("unexpected user list: %+v", users)
	}

	if err := store.DeleteUser(ctx, "viewer"); err != nil {
		t.Fatalf("deleting user: %v", err)
	}
	if err := store.DeleteUser(ctx, "viewer"); err == nil {
		t.Errorf("deleting a missing user should fail")
	}
	if _, err := store.GetUserByUsername(ctx, "viewer"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}
