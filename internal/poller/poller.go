// Package poller periodically queries configured game servers over UDP and
// records per-player ping samples. These samples feed the ping profile used
// by alias detection.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/ernie/scout-tools/internal/config"
	"github.com/ernie/scout-tools/internal/domain"
	"github.com/ernie/scout-tools/internal/storage"
)

// Poller polls game servers on a fixed interval.
type Poller struct {
	store     *storage.Store
	client    *StatusClient
	servers   []config.GameServer
	interval  time.Duration
	broadcast func(domain.Event)
	stop      chan struct{}
	done      chan struct{}
}

// New creates a Poller for the given servers. The broadcast callback, if
// non-nil, receives a server update event after each successful poll.
func New(store *storage.Store, servers []config.GameServer, interval time.Duration, broadcast func(domain.Event)) *Poller {
	return &Poller{
		store:     store,
		client:    NewStatusClient(),
		servers:   servers,
		interval:  interval,
		broadcast: broadcast,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (p *Poller) Start() {
	go p.run()
}

// Stop halts polling and waits for the current cycle to finish.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Poller) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

func (p *Poller) pollAll() {
	for _, srv := range p.servers {
		p.pollServer(srv)
	}
}

func (p *Poller) pollServer(srv config.GameServer) {
	status, err := p.client.Query(srv.Address)
	if err != nil {
		log.Printf("Error polling %s: %v", srv.Address, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := srv.Name
	if status.Name != "" {
		name = status.Name
	}
	serverID, err := p.store.UpsertServer(ctx, name, srv.Address)
	if err != nil {
		log.Printf("Error upserting server %s: %v", srv.Address, err)
		return
	}

	now := time.Now()
	for _, player := range status.Players {
		// Ping 0 means a bot or a LAN client; neither carries a usable
		// network fingerprint.
		if player.Ping <= 0 || player.Name == "" {
			continue
		}
		sample := &domain.PingSample{
			PlayerName: player.Name,
			ServerID:   serverID,
			Ping:       player.Ping,
			RecordedAt: now,
		}
		if err := p.store.InsertPingSample(ctx, sample); err != nil {
			log.Printf("Error storing ping sample for %q: %v", player.Name, err)
		}
	}

	if p.broadcast != nil {
		p.broadcast(domain.Event{
			Type:      domain.EventServerUpdate,
			ServerID:  serverID,
			Timestamp: now,
			Data: domain.ServerUpdateEvent{
				Address:     srv.Address,
				Map:         status.Map,
				PlayerCount: len(status.Players),
			},
		})
	}
}
