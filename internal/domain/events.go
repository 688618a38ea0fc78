package domain

import "time"

// Event types for the websocket activity feed
const (
	EventRoundRecorded = "round_recorded"
	EventPingRecorded  = "ping_recorded"
	EventServerUpdate  = "server_update"
)

// Event is a real-time notification broadcast to dashboard clients.
type Event struct {
	Type      string      `json:"event"`
	ServerID  int64       `json:"server_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// RoundRecordedEvent is sent when an ingested round has been stored.
type RoundRecordedEvent struct {
	PlayerName      string  `json:"player_name"`
	MapName         string  `json:"map_name"`
	Kills           int64   `json:"kills"`
	Deaths          int64   `json:"deaths"`
	PlaytimeMinutes float64 `json:"playtime_minutes"`
}

// ServerUpdateEvent is sent when the status poller has refreshed a server.
type ServerUpdateEvent struct {
	Address     string `json:"address"`
	Map         string `json:"map,omitempty"`
	PlayerCount int    `json:"player_count"`
}
