// Package ingest consumes round and ping reports published by game-server
// agents over NATS and writes them to storage.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ernie/scout-tools/internal/domain"
	"github.com/ernie/scout-tools/internal/storage"
)

// NATS subjects the consumer subscribes to.
const (
	SubjectRoundCompleted = "rounds.completed"
	SubjectPing           = "rounds.ping"
)

// Consumer subscribes to ingest subjects and persists incoming reports.
type Consumer struct {
	store     *storage.Store
	conn      *nats.Conn
	subs      []*nats.Subscription
	broadcast func(domain.Event)
}

// NewConsumer connects to the NATS server at url. The broadcast callback, if
// non-nil, receives an event for every stored record.
func NewConsumer(url string, store *storage.Store, broadcast func(domain.Event)) (*Consumer, error) {
	conn, err := nats.Connect(url,
		nats.Name("scout-ingest"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &Consumer{store: store, conn: conn, broadcast: broadcast}, nil
}

// Start subscribes to the ingest subjects.
func (c *Consumer) Start() error {
	roundSub, err := c.conn.Subscribe(SubjectRoundCompleted, c.handleRound)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", SubjectRoundCompleted, err)
	}
	c.subs = append(c.subs, roundSub)

	pingSub, err := c.conn.Subscribe(SubjectPing, c.handlePing)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", SubjectPing, err)
	}
	c.subs = append(c.subs, pingSub)

	log.Printf("Ingest consumer subscribed to %s, %s", SubjectRoundCompleted, SubjectPing)
	return nil
}

// Stop drains in-flight messages and closes the connection.
func (c *Consumer) Stop() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("Error draining nats connection: %v", err)
	}
}

func validateRound(r *domain.IngestRound) error {
	switch {
	case r.PlayerName == "":
		return fmt.Errorf("missing player_name")
	case r.ServerAddress == "":
		return fmt.Errorf("missing server_address")
	case r.MapName == "":
		return fmt.Errorf("missing map_name")
	case r.StartedAt.IsZero() || r.EndedAt.IsZero():
		return fmt.Errorf("missing round interval")
	case !r.EndedAt.After(r.StartedAt):
		return fmt.Errorf("round ends before it starts")
	case r.Kills < 0 || r.Deaths < 0:
		return fmt.Errorf("negative kill or death count")
	}
	return nil
}

func (c *Consumer) handleRound(msg *nats.Msg) {
	var in domain.IngestRound
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		log.Printf("Dropping malformed round message: %v", err)
		return
	}
	if err := validateRound(&in); err != nil {
		log.Printf("Dropping invalid round from %q: %v", in.ServerAddress, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverID, err := c.store.UpsertServer(ctx, in.ServerName, in.ServerAddress)
	if err != nil {
		log.Printf("Error upserting server %q: %v", in.ServerAddress, err)
		return
	}

	round := &domain.Round{
		RoundUUID:       in.RoundUUID,
		PlayerName:      in.PlayerName,
		ServerID:        serverID,
		MapName:         in.MapName,
		Game:            in.Game,
		StartedAt:       in.StartedAt,
		EndedAt:         in.EndedAt,
		Score:           in.Score,
		Kills:           in.Kills,
		Deaths:          in.Deaths,
		PlaytimeMinutes: in.PlaytimeMinutes,
		IsBot:           in.IsBot,
	}
	if round.RoundUUID == "" {
		round.RoundUUID = uuid.NewString()
	}
	if round.PlaytimeMinutes <= 0 {
		round.PlaytimeMinutes = in.EndedAt.Sub(in.StartedAt).Minutes()
	}

	if err := c.store.InsertRound(ctx, round); err != nil {
		log.Printf("Error storing round %s: %v", round.RoundUUID, err)
		return
	}

	if c.broadcast != nil {
		c.broadcast(domain.Event{
			Type:      domain.EventRoundRecorded,
			ServerID:  serverID,
			Timestamp: time.Now(),
			Data: domain.RoundRecordedEvent{
				PlayerName:      round.PlayerName,
				MapName:         round.MapName,
				Kills:           round.Kills,
				Deaths:          round.Deaths,
				PlaytimeMinutes: round.PlaytimeMinutes,
			},
		})
	}
}

func (c *Consumer) handlePing(msg *nats.Msg) {
	var in domain.IngestPing
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		log.Printf("Dropping malformed ping message: %v", err)
		return
	}
	if in.PlayerName == "" || in.ServerAddress == "" || in.Ping <= 0 {
		log.Printf("Dropping invalid ping sample from %q", in.ServerAddress)
		return
	}
	if in.RecordedAt.IsZero() {
		in.RecordedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverID, err := c.store.UpsertServer(ctx, "", in.ServerAddress)
	if err != nil {
		log.Printf("Error upserting server %q: %v", in.ServerAddress, err)
		return
	}

	sample := &domain.PingSample{
		PlayerName: in.PlayerName,
		ServerID:   serverID,
		Ping:       in.Ping,
		RecordedAt: in.RecordedAt,
	}
	if err := c.store.InsertPingSample(ctx, sample); err != nil {
		log.Printf("Error storing ping sample for %q: %v", in.PlayerName, err)
		return
	}

	if c.broadcast != nil {
		c.broadcast(domain.Event{
			Type:      domain.EventPingRecorded,
			ServerID:  serverID,
			Timestamp: time.Now(),
		})
	}
}
