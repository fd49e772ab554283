// Package clienthandler implements the client-side connection handshake:
// CONNECT_REQUEST on stream-active, CONNECT_ACK handling, REGISTER_UDP
// retransmission, input stamping/gating, and the poll-and-dispatch entry
// point the host's game thread drives once per frame.
package clienthandler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dungeonnet/internal/dispatch"
	"dungeonnet/internal/lifecycle"
	"dungeonnet/internal/transport"
	"dungeonnet/internal/wire"
)

// Config bundles what Handler needs at construction.
type Config struct {
	Endpoint   *transport.Endpoint
	Conn       *transport.Conn
	PlayerName string
	Dispatcher *dispatch.Dispatcher

	RegisterInterval time.Duration
	RegisterMaxAttempts int
}

// Handler owns one client connection's handshake and inbound plumbing.
type Handler struct {
	ep         *transport.Endpoint
	conn       *transport.Conn
	playerName string
	dispatcher *dispatch.Dispatcher

	registerInterval time.Duration
	registerMax      int

	clientID atomic.Int64
	state    atomic.Int32 // lifecycle.ConnectionState

	lifecycleQueue *lifecycle.Queue[lifecycle.Event]
	messageQueue   *lifecycle.Queue[wire.Message]

	listenersMu sync.Mutex
	listeners   []lifecycle.Listener

	stopRegister chan struct{}
	regOnce      sync.Once
}

// New wires a Handler around an already-dialed client endpoint and
// connection. Call Start to begin the handshake.
func New(cfg Config) *Handler {
	interval := cfg.RegisterInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	maxAttempts := cfg.RegisterMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	h := &Handler{
		ep:               cfg.Endpoint,
		conn:             cfg.Conn,
		playerName:       cfg.PlayerName,
		dispatcher:       cfg.Dispatcher,
		registerInterval: interval,
		registerMax:      maxAttempts,
		lifecycleQueue:   lifecycle.NewQueue[lifecycle.Event](),
		messageQueue:     lifecycle.NewQueue[wire.Message](),
		stopRegister:     make(chan struct{}),
	}
	h.state.Store(int32(lifecycle.Connecting))
	return h
}

// AddConnectionListener registers a callback invoked on the poll thread
// for every lifecycle transition.
func (h *Handler) AddConnectionListener(l lifecycle.Listener) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, l)
}

// State returns the current connection state.
func (h *Handler) State() lifecycle.ConnectionState {
	return lifecycle.ConnectionState(h.state.Load())
}

// ClientID returns the server-assigned ClientId once acknowledged, and
// false beforehand.
func (h *Handler) ClientID() (int64, bool) {
	id := h.clientID.Load()
	if id == 0 {
		return 0, false
	}
	return id, true
}

// Start sends CONNECT_REQUEST and begins routing inbound reliable and
// datagram traffic. Inbound consumption must already be wired by the
// caller's transport.Run goroutine; Start only launches the two fan-in
// goroutines that read from the channels configured on the Endpoint.
func (h *Handler) Start(reliable <-chan transport.Inbound, datagrams <-chan transport.Datagram) {
	h.ep.SendReliable(h.conn, wire.ConnectRequest{PlayerName: h.playerName})

	go h.consumeReliable(reliable)
	go h.consumeDatagrams(datagrams)
}

func (h *Handler) consumeReliable(reliable <-chan transport.Inbound) {
	for in := range reliable {
		switch msg := in.Message.(type) {
		case wire.ConnectAck:
			h.clientID.Store(msg.ClientID)
			h.state.Store(int32(lifecycle.Acknowledged))
			h.lifecycleQueue.Push(lifecycle.EventConnected)
			h.regOnce.Do(func() { go h.retryRegisterUDP() })
		case wire.ConnectReject:
			slog.Warn("clienthandler: connect rejected", "reason", msg.Reason)
			h.state.Store(int32(lifecycle.Disconnected))
			h.lifecycleQueue.Push(lifecycle.EventDisconnected)
			return
		default:
			h.messageQueue.Push(in.Message)
		}
	}
	// Reliable channel closed: the connection is gone.
	h.state.Store(int32(lifecycle.Disconnected))
	h.lifecycleQueue.Push(lifecycle.EventDisconnected)
}

func (h *Handler) consumeDatagrams(datagrams <-chan transport.Datagram) {
	for dg := range datagrams {
		if _, ok := dg.Message.(wire.Snapshot); ok && h.State() == lifecycle.Acknowledged {
			h.state.Store(int32(lifecycle.DatagramRegistered))
			close(h.stopRegister)
		}
		h.messageQueue.Push(dg.Message)
	}
}

// retryRegisterUDP retransmits REGISTER_UDP at the configured interval up
// to the configured attempt budget, stopping early once the server starts
// sending snapshots.
func (h *Handler) retryRegisterUDP() {
	clientID, _ := h.ClientID()
	ticker := time.NewTicker(h.registerInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < h.registerMax; attempt++ {
		h.ep.SendDatagramToServer(wire.RegisterUDP{ClientID: clientID})
		select {
		case <-h.stopRegister:
			return
		case <-ticker.C:
		}
	}
}

// SendInput stamps action/point with the acknowledged ClientId and sends
// it as a datagram. Refuses to send before CONNECT_ACK has been received.
func (h *Handler) SendInput(action wire.Action, point wire.Point) {
	clientID, ok := h.ClientID()
	if !ok {
		slog.Warn("clienthandler: dropping input sent before acknowledgement")
		return
	}
	h.ep.SendDatagramToServer(wire.Input{ClientID: clientID, Action: action, Point: point})
}

// RequestEntitySpawn asks the server to (re-)emit an ENTITY_SPAWN_EVENT
// for entityName over the reliable channel.
func (h *Handler) RequestEntitySpawn(entityName string) {
	h.ep.SendReliable(h.conn, wire.RequestEntitySpawn{EntityName: entityName})
}

// PollAndDispatch drains lifecycle notifications first, then dispatches
// every queued message. Must only be called from the game thread.
func (h *Handler) PollAndDispatch() {
	for _, ev := range h.lifecycleQueue.Drain() {
		h.listenersMu.Lock()
		listeners := append([]lifecycle.Listener(nil), h.listeners...)
		h.listenersMu.Unlock()
		for _, l := range listeners {
			l(ev)
		}
	}

	for _, msg := range h.messageQueue.Drain() {
		h.dispatcher.Dispatch(msg)
	}
}

// Shutdown closes the underlying connection and endpoint.
func (h *Handler) Shutdown() {
	h.conn.Close()
	h.ep.Shutdown()
}
