package domain

import "time"

// Round is one play session record: a player on a server/map for a
// continuous interval with final score/kills/deaths.
type Round struct {
	ID              int64     `json:"id"`
	RoundUUID       string    `json:"round_uuid"`
	PlayerName      string    `json:"player_name"`
	ServerID        int64     `json:"server_id"`
	MapName         string    `json:"map_name"`
	Game            string    `json:"game,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Score           int64     `json:"score"`
	Kills           int64     `json:"kills"`
	Deaths          int64     `json:"deaths"`
	PlaytimeMinutes float64   `json:"playtime_minutes"`
	IsBot           bool      `json:"is_bot"`
}

// PingSample is one per-observation ping reading for a player on a server.
type PingSample struct {
	PlayerName string    `json:"player_name"`
	ServerID   int64     `json:"server_id"`
	Ping       int       `json:"ping"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Server is a registered game server
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestRound is the wire form of a completed round as published by
// game-server agents. Agents identify servers by address, not database ID;
// the consumer resolves or registers the server on receipt.
type IngestRound struct {
	RoundUUID       string    `json:"round_uuid,omitempty"`
	PlayerName      string    `json:"player_name"`
	ServerAddress   string    `json:"server_address"`
	ServerName      string    `json:"server_name,omitempty"`
	MapName         string    `json:"map_name"`
	Game            string    `json:"game,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Score           int64     `json:"score"`
	Kills           int64     `json:"kills"`
	Deaths          int64     `json:"deaths"`
	PlaytimeMinutes float64   `json:"playtime_minutes,omitempty"`
	IsBot           bool      `json:"is_bot"`
}

// IngestPing is the wire form of a ping observation.
type IngestPing struct {
	PlayerName    string    `json:"player_name"`
	ServerAddress string    `json:"server_address"`
	Ping          int       `json:"ping"`
	RecordedAt    time.Time `json:"recorded_at"`
}
