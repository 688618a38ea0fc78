package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/scout-tools/internal/domain"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable foreign keys, WAL mode for better performance, and busy timeout for concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// placeholderArgs builds a "?, ?, ..." list and its argument slice for an IN
// clause. All identifiers go through bound parameters, never string
// concatenation of values.
func placeholderArgs[T any](values []T) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

// --- Server methods ---

// UpsertServer creates or updates a server by address and returns its ID
func (s *Store) UpsertServer(ctx context.Context, name, address string) (int64, error) {
	if name == "" {
		name = address
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (name, address)
		VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name
	`, name, address)
	if err != nil {
		return 0, err
	}

	// Always query for the ID (LastInsertId unreliable with ON CONFLICT)
	var id int64
	err = s.db.QueryRowContext(ctx, "SELECT id FROM servers WHERE address = ?", address).Scan(&id)
	return id, err
}

// GetServers returns all registered servers
func (s *Store) GetServers(ctx context.Context) ([]domain.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, created_at FROM servers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []domain.Server
	for rows.Next() {
		var srv domain.Server
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Address, &srv.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// ResolveServerNames maps server IDs to display names in a single query.
// Unknown IDs are simply absent from the result map.
func (s *Store) ResolveServerNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders, args := placeholderArgs(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM servers WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// --- Round methods ---

// InsertRound records a completed round. Duplicate round UUIDs are ignored so
// replayed ingest messages stay idempotent.
func (s *Store) InsertRound(ctx context.Context, r *domain.Round) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (round_uuid, player_name, server_id, map_name, game,
			started_at, ended_at, score, kills, deaths, playtime_minutes, is_bot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(round_uuid) DO NOTHING
	`, r.RoundUUID, r.PlayerName, r.ServerID, r.MapName, r.Game,
		formatTimestamp(r.StartedAt), formatTimestamp(r.EndedAt),
		r.Score, r.Kills, r.Deaths, r.PlaytimeMinutes, r.IsBot)
	if err != nil {
		return err
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// InsertPingSample records one ping observation
func (s *Store) InsertPingSample(ctx context.Context, p *domain.PingSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ping_metrics (player_name, server_id, ping, recorded_at)
		VALUES (?, ?, ?, ?)
	`, p.PlayerName, p.ServerID, p.Ping, formatTimestamp(p.RecordedAt))
	return err
}

// --- User methods ---

// User represents an authenticated dashboard user
type User struct {
	ID                     int64
	Username               string
	PasswordHash           string
	IsAdmin                bool
	PasswordChangeRequired bool
	CreatedAt              time.Time
	LastLogin              *time.Time
}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin,
		&u.PasswordChangeRequired, &u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

// CreateUser creates a new user account
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin)
		VALUES (?, ?, ?)
	`, username, passwordHash, isAdmin)
	return err
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// DeleteUser removes a user by username
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found: %s", username)
	}
	return nil
}

// ListUsers returns all users
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateUserLastLogin updates the last login timestamp
func (s *Store) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?
	`, userID)
	return err
}

// UpdateUserPassword updates a user's password and clears the password_change_required flag
func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = FALSE WHERE id = ?
	`, newPasswordHash, userID)
	return err
}

// ResetUserPassword sets a new temporary password (admin action)
func (s *Store) ResetUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = TRUE WHERE id = ?
	`, newPasswordHash, userID)
	return err
}
