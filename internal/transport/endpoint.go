// Package transport owns the dual-channel network endpoint: one reliable
// byte-stream listener (or, on the client, one outgoing stream) and one
// UDP datagram socket sharing the same port. I/O goroutines here only
// decode frames and enqueue structured messages — they never touch game
// state directly.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dungeonnet/internal/wire"
)

const (
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 5 * time.Second
	defaultReadTimeout   = 120 * time.Second
)

// Inbound is one decoded reliable-channel message paired with the
// connection it arrived on, handed to whatever layer routes by variant.
// Datagram traffic (REGISTER_UDP, INPUT, SNAPSHOT) arrives as Datagram
// values instead.
type Inbound struct {
	Handle  *Conn
	Message wire.Message
}

// Datagram is one decoded datagram paired with the sender's observed
// address.
type Datagram struct {
	Addr    *net.UDPAddr
	Message wire.Message
}

// Config bundles the parameters an Endpoint needs regardless of mode.
type Config struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration

	// Inbound receives every reliably-decoded message, in arrival order
	// per connection. Delivery blocks the connection's read loop if the
	// channel is unread — callers must keep it drained.
	Inbound chan<- Inbound
	// Datagrams receives every decoded datagram.
	Datagrams chan<- Datagram

	// OnClose, if set, is invoked once a reliable connection's read loop
	// exits, after it is removed from the endpoint's connection set. Used
	// by the server wiring layer to drop the session bound to the handle.
	OnClose func(conn *Conn)
}

func (c *Config) fillDefaults() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
}

// Conn is one reliable-channel connection. It is the opaque Handle used
// throughout the session registry — compared for identity only.
type Conn struct {
	conn         net.Conn
	remoteAddr   string
	sendCh       chan []byte
	closeCh      chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newConn(nc net.Conn, cfg Config) *Conn {
	return &Conn{
		conn:         nc,
		remoteAddr:   nc.RemoteAddr().String(),
		sendCh:       make(chan []byte, cfg.SendQueueSize),
		closeCh:      make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
	}
}

// RemoteAddr returns the connection's remote address string, for logging.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Close shuts down the connection's write pump and underlying socket. Safe
// to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.conn.Close()
	})
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.closeCh:
			return
		case payload, ok := <-c.sendCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("transport: set write deadline failed", "remote", c.remoteAddr, "err", err)
				return
			}
			if err := wire.WriteFrame(c.conn, payload); err != nil {
				slog.Warn("transport: reliable write failed", "remote", c.remoteAddr, "err", err)
				return
			}
		}
	}
}

// Endpoint is the dual-channel network boundary. Construct with
// NewServer or NewClient, then call Run.
type Endpoint struct {
	cfg Config

	listener net.Listener
	udp      *net.UDPConn

	// serverAddr is set in client mode: the logical remote the UDP socket
	// is "connected" to, so writes need no explicit address and the
	// kernel filters foreign senders on read.
	serverAddr *net.UDPAddr

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer binds a reliable listener and a datagram socket to the same
// address:port.
func NewServer(bindAddress string, port int, cfg Config) (*Endpoint, error) {
	cfg.fillDefaults()
	addr := fmt.Sprintf("%s:%d", bindAddress, port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding reliable listener on %s: %w", addr, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("resolving datagram address %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("binding datagram socket on %s: %w", addr, err)
	}

	return &Endpoint{
		cfg:      cfg,
		listener: ln,
		udp:      udpConn,
		conns:    make(map[*Conn]struct{}),
	}, nil
}

// NewClient opens an outgoing reliable stream to host:port and an ephemeral
// datagram socket "connected" to the same address. The returned *Conn is
// the single connection the client uses for sendReliable.
func NewClient(host string, port int, cfg Config) (*Endpoint, *Conn, error) {
	cfg.fillDefaults()
	addr := fmt.Sprintf("%s:%d", host, port)

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing reliable stream %s: %w", addr, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("resolving datagram address %s: %w", addr, err)
	}
	udpConn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("dialing datagram socket to %s: %w", addr, err)
	}

	ep := &Endpoint{
		cfg:        cfg,
		udp:        udpConn,
		serverAddr: udpAddr,
		conns:      make(map[*Conn]struct{}),
	}

	conn := newConn(nc, cfg)
	ep.mu.Lock()
	ep.conns[conn] = struct{}{}
	ep.mu.Unlock()

	return ep, conn, nil
}

// Run drives the endpoint's accept loop (server mode only — a no-op when
// no listener was bound) and the shared datagram read loop, until ctx is
// canceled or, in client mode, the reliable stream closes.
func (e *Endpoint) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if e.listener != nil {
		g.Go(func() error {
			return e.acceptLoop(gctx)
		})
	} else {
		// Client mode: the single dialed connection still needs its
		// read/write pumps.
		e.mu.Lock()
		var only *Conn
		for c := range e.conns {
			only = c
		}
		e.mu.Unlock()
		if only != nil {
			g.Go(func() error {
				go only.writePump()
				e.readLoop(gctx, only)
				// The stream is gone: stop the whole endpoint.
				cancel()
				return nil
			})
		}
	}

	g.Go(func() error {
		e.datagramLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		e.Shutdown()
		return nil
	})

	return g.Wait()
}

func (e *Endpoint) acceptLoop(ctx context.Context) error {
	for {
		nc, err := e.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slog.Error("transport: accept failed", "err", err)
			continue
		}

		if tcpConn, ok := nc.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}

		conn := newConn(nc, e.cfg)
		e.mu.Lock()
		e.conns[conn] = struct{}{}
		e.mu.Unlock()

		go conn.writePump()
		go func() {
			e.readLoop(ctx, conn)
			e.mu.Lock()
			delete(e.conns, conn)
			e.mu.Unlock()
			if e.cfg.OnClose != nil {
				e.cfg.OnClose(conn)
			}
		}()
	}
}

// readLoop decodes reliable frames from conn until it closes or ctx is
// canceled, delivering each decoded message to Inbound.
func (e *Endpoint) readLoop(ctx context.Context, conn *Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.conn.Close()
		case <-done:
		}
	}()

	br := bufio.NewReader(conn.conn)
	for {
		_ = conn.conn.SetReadDeadline(time.Now().Add(e.cfg.ReadTimeout))
		payload, err := wire.ReadFrame(br)
		if err != nil {
			slog.Debug("transport: reliable connection closed", "remote", conn.remoteAddr, "err", err)
			return
		}

		msg, err := wire.DecodeMessage(payload)
		if err != nil {
			slog.Warn("transport: dropping malformed reliable payload", "remote", conn.remoteAddr, "err", err)
			continue
		}

		select {
		case e.cfg.Inbound <- Inbound{Handle: conn, Message: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Endpoint) datagramLoop(ctx context.Context) {
	buf := make([]byte, wire.DatagramReceiveCap)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, addr, err := e.udp.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("transport: datagram read failed", "err", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		msg, err := wire.DecodeDatagram(payload)
		if err != nil {
			slog.Warn("transport: dropping malformed datagram", "addr", addr, "err", err)
			continue
		}

		select {
		case e.cfg.Datagrams <- Datagram{Addr: addr, Message: msg}:
		case <-ctx.Done():
			return
		}
	}
}

// SendReliable enqueues message for delivery over conn's reliable channel.
// Send failures are logged as warnings and never propagated to game code.
func (e *Endpoint) SendReliable(conn *Conn, message wire.Message) {
	payload, err := wire.EncodeMessage(message)
	if err != nil {
		slog.Warn("transport: failed to encode reliable message", "remote", conn.remoteAddr, "err", err)
		return
	}

	select {
	case conn.sendCh <- payload:
	default:
		slog.Warn("transport: reliable send queue full, dropping message", "remote", conn.remoteAddr)
	}
}

// SendDatagram sends message to addr over the shared datagram socket.
// Oversized payloads are dropped with a warning rather than sent.
func (e *Endpoint) SendDatagram(addr *net.UDPAddr, message wire.Message) {
	payload, ok, err := wire.EncodeDatagram(message)
	if err != nil {
		slog.Warn("transport: failed to encode datagram", "addr", addr, "err", err)
		return
	}
	if !ok {
		slog.Warn("transport: datagram payload exceeds send cap, dropping", "addr", addr)
		return
	}
	if _, err := e.udp.WriteToUDP(payload, addr); err != nil {
		slog.Warn("transport: datagram send failed", "addr", addr, "err", err)
	}
}

// SendDatagramToServer sends message to the server address a client
// endpoint "connected" its datagram socket to. It is a caller error to
// call this on a server-mode endpoint.
func (e *Endpoint) SendDatagramToServer(message wire.Message) {
	if e.serverAddr == nil {
		slog.Warn("transport: SendDatagramToServer called on a server-mode endpoint")
		return
	}
	payload, ok, err := wire.EncodeDatagram(message)
	if err != nil {
		slog.Warn("transport: failed to encode datagram", "err", err)
		return
	}
	if !ok {
		slog.Warn("transport: datagram payload exceeds send cap, dropping")
		return
	}
	if _, err := e.udp.Write(payload); err != nil {
		slog.Warn("transport: datagram send to server failed", "err", err)
	}
}

// BroadcastDatagram sends message to every peer in peers, iterating a
// stable copy so the caller's snapshot of bound sessions never races with
// the endpoint's own bookkeeping.
func (e *Endpoint) BroadcastDatagram(peers []*net.UDPAddr, message wire.Message) {
	payload, ok, err := wire.EncodeDatagram(message)
	if err != nil {
		slog.Warn("transport: failed to encode broadcast datagram", "err", err)
		return
	}
	if !ok {
		slog.Warn("transport: broadcast datagram exceeds send cap, dropping")
		return
	}
	for _, addr := range peers {
		if _, err := e.udp.WriteToUDP(payload, addr); err != nil {
			slog.Warn("transport: broadcast datagram send failed", "addr", addr, "err", err)
		}
	}
}

// Shutdown closes the listener, datagram socket, and every open
// connection. Idempotent.
func (e *Endpoint) Shutdown() {
	if e.listener != nil {
		e.listener.Close()
	}
	if e.udp != nil {
		e.udp.Close()
	}

	e.mu.Lock()
	conns := make([]*Conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
