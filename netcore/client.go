package netcore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"dungeonnet/internal/clienthandler"
	"dungeonnet/internal/collab"
	"dungeonnet/internal/dispatch"
	"dungeonnet/internal/lifecycle"
	"dungeonnet/internal/snapshot"
	"dungeonnet/internal/transport"
	"dungeonnet/internal/wire"
)

// ClientConfig bundles what a Client needs at construction.
type ClientConfig struct {
	ServerHost string
	ServerPort int
	PlayerName string

	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int

	RegisterInterval    time.Duration
	RegisterMaxAttempts int
}

// Client wires the client-side transport endpoint and connection handler
// together, and exposes the host's poll-driven entry points.
type Client struct {
	ep         *transport.Endpoint
	handler    *clienthandler.Handler
	dispatcher *dispatch.Dispatcher

	inbound   chan transport.Inbound
	datagrams chan transport.Datagram
}

// NewClient dials the server's reliable stream and datagram socket and
// assembles the handshake handler around them. It does not send
// CONNECT_REQUEST yet — call Run for that.
func NewClient(cfg ClientConfig) (*Client, error) {
	inbound := make(chan transport.Inbound, 64)
	datagrams := make(chan transport.Datagram, 64)

	ep, conn, err := transport.NewClient(cfg.ServerHost, cfg.ServerPort, transport.Config{
		SendQueueSize: cfg.SendQueueSize,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		Inbound:       inbound,
		Datagrams:     datagrams,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client transport endpoint: %w", err)
	}

	dispatcher := dispatch.New()
	handler := clienthandler.New(clienthandler.Config{
		Endpoint:            ep,
		Conn:                conn,
		PlayerName:          cfg.PlayerName,
		Dispatcher:          dispatcher,
		RegisterInterval:    cfg.RegisterInterval,
		RegisterMaxAttempts: cfg.RegisterMaxAttempts,
	})

	return &Client{ep: ep, handler: handler, dispatcher: dispatcher, inbound: inbound, datagrams: datagrams}, nil
}

// Dispatcher exposes the message dispatcher so the host process can
// register handlers (LevelChange, EntitySpawnEvent, Snapshot, GameOver)
// before calling Run.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// AddConnectionListener registers a lifecycle callback invoked from Poll.
func (c *Client) AddConnectionListener(l lifecycle.Listener) {
	c.handler.AddConnectionListener(l)
}

// State returns the current connection state machine value.
func (c *Client) State() lifecycle.ConnectionState { return c.handler.State() }

// ClientID returns the server-assigned ClientId once acknowledged.
func (c *Client) ClientID() (int64, bool) { return c.handler.ClientID() }

// SendInput stamps and sends one input datagram. Refused, with a logged
// warning, until the connection has been acknowledged.
func (c *Client) SendInput(action wire.Action, point wire.Point) {
	c.handler.SendInput(action, point)
}

// RequestEntitySpawn asks the server to (re-)emit an EntitySpawnEvent for
// entityName.
func (c *Client) RequestEntitySpawn(entityName string) {
	c.handler.RequestEntitySpawn(entityName)
}

// SetSnapshotTranslator registers the dispatch handler that applies every
// received Snapshot to mirror via t.Apply, on the poll thread. Call before
// Run; a Client with no translator set simply never mirrors Snapshot
// messages (a host relying solely on EntitySpawnEvent/LevelChange is valid).
func (c *Client) SetSnapshotTranslator(t *snapshot.ClientTranslator, mirror collab.ClientMirror) {
	c.dispatcher.Register(wire.TagSnapshot, func(msg wire.Message) {
		snap, ok := msg.(wire.Snapshot)
		if !ok {
			return
		}
		t.Apply(snap, mirror)
	})
}

// Poll drains lifecycle and message queues and dispatches them. Must be
// called once per frame from the host's game thread, never concurrently
// with itself.
func (c *Client) Poll() {
	c.handler.PollAndDispatch()
}

// Run sends CONNECT_REQUEST and drives the transport endpoint until ctx
// is canceled.
func (c *Client) Run(ctx context.Context) error {
	c.handler.Start(c.inbound, c.datagrams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.ep.Run(gctx)
		close(c.inbound)
		close(c.datagrams)
		return err
	})

	return g.Wait()
}

// Shutdown closes the underlying connection and endpoint immediately.
func (c *Client) Shutdown() {
	c.handler.Shutdown()
}
