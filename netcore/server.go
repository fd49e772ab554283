// Package netcore wires the transport endpoint, session registry, message
// dispatcher and tick loop into the dungeon server's and client's public
// startup surface — the one place that imports every other internal
// package and hands out a single Run/Stop-shaped handle.
package netcore

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"dungeonnet/internal/audit"
	"dungeonnet/internal/collab"
	"dungeonnet/internal/session"
	"dungeonnet/internal/simloop"
	"dungeonnet/internal/transport"
	"dungeonnet/internal/wire"
)

// ServerConfig bundles what a Server needs at construction.
type ServerConfig struct {
	BindAddress string
	Port        int

	TickHz     int
	SnapshotHz int

	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int

	World   collab.EntityWorld
	Catalog collab.LevelCatalog

	// Audit, if non-nil, receives best-effort session lifecycle events.
	Audit audit.Sink
}

// Server wires the dual-channel transport endpoint, session registry and
// authoritative tick loop together. Construct with NewServer, call Run
// from its own goroutine, and cancel the context passed to Run to shut
// down.
type Server struct {
	ep       *transport.Endpoint
	registry *session.Registry
	loop     *simloop.Loop
	catalog  collab.LevelCatalog

	inbound   chan transport.Inbound
	datagrams chan transport.Datagram
}

// NewServer binds the reliable listener and datagram socket and assembles
// the registry and tick loop around world and catalog. It does not start
// accepting connections — call Run for that.
func NewServer(cfg ServerConfig) (*Server, error) {
	inbound := make(chan transport.Inbound, 256)
	datagrams := make(chan transport.Datagram, 256)

	registry := session.NewRegistry()
	if cfg.Audit != nil {
		registry.SetAuditSink(cfg.Audit)
	}

	s := &Server{
		registry:  registry,
		catalog:   cfg.Catalog,
		inbound:   inbound,
		datagrams: datagrams,
	}

	ep, err := transport.NewServer(cfg.BindAddress, cfg.Port, transport.Config{
		SendQueueSize: cfg.SendQueueSize,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		Inbound:       inbound,
		Datagrams:     datagrams,
		OnClose: func(conn *transport.Conn) {
			if id, ok := registry.DropHandle(conn); ok {
				slog.Info("netcore: session dropped", "clientId", id)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating server transport endpoint: %w", err)
	}
	s.ep = ep

	s.loop = simloop.New(simloop.Config{
		TickHz:     cfg.TickHz,
		SnapshotHz: cfg.SnapshotHz,
		World:      cfg.World,
		Catalog:    cfg.Catalog,
		Sink:       (*serverBroadcaster)(s),
		Registry:   registry,
	})

	return s, nil
}

// Run drives the transport endpoint, the tick loop, and the inbound
// message routers until ctx is canceled or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.ep.Run(gctx)
		close(s.inbound)
		close(s.datagrams)
		return err
	})

	g.Go(func() error {
		return s.loop.Run(gctx)
	})

	g.Go(func() error {
		s.routeInbound()
		return nil
	})

	g.Go(func() error {
		s.routeDatagrams()
		return nil
	})

	return g.Wait()
}

// routeInbound drains reliable messages, performing registry bookkeeping
// directly (safe off the tick thread) and forwarding anything that needs
// the authoritative world onto the tick loop.
func (s *Server) routeInbound() {
	for in := range s.inbound {
		conn, ok := in.Handle.(*transport.Conn)
		if !ok {
			continue
		}
		switch msg := in.Message.(type) {
		case wire.ConnectRequest:
			s.handleConnectRequest(conn, msg)
		case wire.RequestEntitySpawn:
			s.loop.RequestEntitySpawnInfo(conn, msg.EntityName)
		default:
			slog.Debug("netcore: unexpected reliable variant from client", "tag", msg.Tag())
		}
	}
}

func (s *Server) handleConnectRequest(conn *transport.Conn, msg wire.ConnectRequest) {
	id, err := s.registry.Accept(conn, msg.PlayerName)
	if err != nil {
		slog.Info("netcore: connect rejected", "name", msg.PlayerName, "err", err)
		s.ep.SendReliable(conn, wire.ConnectReject{Reason: err.Error()})
		conn.Close()
		return
	}

	slog.Info("netcore: session accepted", "clientId", id, "name", msg.PlayerName)
	s.ep.SendReliable(conn, wire.ConnectAck{ClientID: int64(id)})
	s.registry.Acknowledge(id)

	level := s.catalog.CurrentLevel()
	s.ep.SendReliable(conn, wire.LevelChange{
		LevelName:     level.Name,
		HasSpawnPoint: true,
		SpawnPoint:    wire.Point{X: level.StartPosition.X, Y: level.StartPosition.Y},
	})
}

// routeDatagrams drains datagrams, binding REGISTER_UDP addresses in the
// registry directly and forwarding INPUT onto the tick loop's input queue.
func (s *Server) routeDatagrams() {
	for dg := range s.datagrams {
		switch msg := dg.Message.(type) {
		case wire.RegisterUDP:
			if !s.registry.RegisterDatagram(session.ClientID(msg.ClientID), dg.Addr) {
				slog.Debug("netcore: register_udp for unknown client", "clientId", msg.ClientID)
			}
		case wire.Input:
			if !msg.Action.Valid() {
				slog.Debug("netcore: dropping input with invalid action", "clientId", msg.ClientID)
				continue
			}
			name, ok := s.registry.NameOf(session.ClientID(msg.ClientID))
			if !ok {
				slog.Debug("netcore: input from unregistered client", "clientId", msg.ClientID)
				continue
			}
			s.loop.EnqueueInput(simloop.InputEvent{
				PlayerName: name,
				Action:     msg.Action,
				Point:      collab.Point{X: msg.Point.X, Y: msg.Point.Y},
			})
		default:
			slog.Debug("netcore: unexpected datagram variant from client", "tag", msg.Tag())
		}
	}
}

// serverBroadcaster adapts Server to simloop.Broadcaster. It is a distinct
// named type (rather than methods directly on Server) so the tick loop's
// delivery surface stays visibly separate from Server's own API.
type serverBroadcaster Server

func (b *serverBroadcaster) BroadcastSnapshot(snap wire.Snapshot) {
	peers := b.registry.DatagramPeers()
	addrs := make([]*net.UDPAddr, len(peers))
	for i, p := range peers {
		addrs[i] = p.Addr
	}
	b.ep.BroadcastDatagram(addrs, snap)
}

func (b *serverBroadcaster) BroadcastLevelChange(msg wire.LevelChange) {
	b.broadcastReliable(msg)
}

func (b *serverBroadcaster) BroadcastGameOver() {
	b.broadcastReliable(wire.GameOver{})
}

func (b *serverBroadcaster) broadcastReliable(msg wire.Message) {
	for _, h := range b.registry.Handles() {
		conn, ok := h.(*transport.Conn)
		if !ok {
			continue
		}
		b.ep.SendReliable(conn, msg)
	}
}

func (b *serverBroadcaster) SendEntitySpawnEvent(handle any, msg wire.EntitySpawnEvent) {
	conn, ok := handle.(*transport.Conn)
	if !ok {
		slog.Warn("netcore: spawn info request handle is not a connection, dropping")
		return
	}
	b.ep.SendReliable(conn, msg)
}
