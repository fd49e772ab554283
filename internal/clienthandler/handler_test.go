package clienthandler

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonnet/internal/dispatch"
	"dungeonnet/internal/lifecycle"
	"dungeonnet/internal/transport"
	"dungeonnet/internal/wire"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// newHarness brings up a bare server-side transport.Endpoint (no session
// registry, no simloop — the test drives CONNECT_ACK/REGISTER_UDP/Snapshot
// by hand) and a Handler wired to a real client-side endpoint dialed
// against it.
func newHarness(t *testing.T) (*Handler, *transport.Endpoint, chan transport.Inbound, chan transport.Datagram) {
	t.Helper()
	port := freePort(t)

	serverInbound := make(chan transport.Inbound, 8)
	serverDatagrams := make(chan transport.Datagram, 8)
	server, err := transport.NewServer("127.0.0.1", port, transport.Config{
		Inbound: serverInbound, Datagrams: serverDatagrams,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	clientInbound := make(chan transport.Inbound, 8)
	clientDatagrams := make(chan transport.Datagram, 8)
	clientEp, conn, err := transport.NewClient("127.0.0.1", port, transport.Config{
		Inbound: clientInbound, Datagrams: clientDatagrams,
	})
	require.NoError(t, err)
	go clientEp.Run(ctx)

	h := New(Config{
		Endpoint:            clientEp,
		Conn:                conn,
		PlayerName:          "hero",
		Dispatcher:          dispatch.New(),
		RegisterInterval:    20 * time.Millisecond,
		RegisterMaxAttempts: 50,
	})
	h.Start(clientInbound, clientDatagrams)

	// Drain the CONNECT_REQUEST the Handler just sent so server tests don't
	// have to special-case it.
	select {
	case <-serverInbound:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CONNECT_REQUEST")
	}

	return h, server, serverInbound, serverDatagrams
}

func TestHandler_SendInputRefusedBeforeAck(t *testing.T) {
	h, _, _, serverDatagrams := newHarness(t)

	h.SendInput(wire.ActionMove, wire.Point{X: 1})

	select {
	case <-serverDatagrams:
		t.Fatal("input should not be sent before CONNECT_ACK")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandler_ConnectAckAdvancesStateAndEnablesInput(t *testing.T) {
	h, server, _, serverDatagrams := newHarness(t)

	server.BroadcastDatagram(nil, wire.Snapshot{}) // no-op, just exercises the zero-peer path
	server.SendReliable(h.conn, wire.ConnectAck{ClientID: 7})

	waitFor(t, 2*time.Second, func() bool { return h.State() == lifecycle.Acknowledged })

	id, ok := h.ClientID()
	require.True(t, ok)
	assert.EqualValues(t, 7, id)

	h.SendInput(wire.ActionMove, wire.Point{X: 2, Y: 3})
	timeout := time.After(2 * time.Second)
	for {
		select {
		case dg := <-serverDatagrams:
			// The ACK also starts REGISTER_UDP retransmission on the same
			// datagram channel; skip those to reach the input.
			if _, isReg := dg.Message.(wire.RegisterUDP); isReg {
				continue
			}
			in, ok := dg.Message.(wire.Input)
			require.True(t, ok)
			assert.EqualValues(t, 7, in.ClientID)
			assert.Equal(t, wire.Point{X: 2, Y: 3}, in.Point)
			return
		case <-timeout:
			t.Fatal("timed out waiting for input datagram")
		}
	}
}

func TestHandler_RetriesRegisterUDPUntilSnapshotArrives(t *testing.T) {
	h, server, _, serverDatagrams := newHarness(t)

	server.SendReliable(h.conn, wire.ConnectAck{ClientID: 1})
	waitFor(t, 2*time.Second, func() bool { return h.State() == lifecycle.Acknowledged })

	var peerAddr *net.UDPAddr
	seen := 0
	for seen < 2 {
		select {
		case dg := <-serverDatagrams:
			if _, ok := dg.Message.(wire.RegisterUDP); ok {
				peerAddr = dg.Addr
				seen++
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for repeated REGISTER_UDP")
		}
	}
	require.NotNil(t, peerAddr)

	server.BroadcastDatagram([]*net.UDPAddr{peerAddr}, wire.Snapshot{ServerTick: 1})
	waitFor(t, 2*time.Second, func() bool { return h.State() == lifecycle.DatagramRegistered })
}

func TestHandler_ConnectRejectDisconnects(t *testing.T) {
	h, server, _, _ := newHarness(t)

	server.SendReliable(h.conn, wire.ConnectReject{Reason: "name taken"})

	waitFor(t, 2*time.Second, func() bool { return h.State() == lifecycle.Disconnected })
	_, ok := h.ClientID()
	assert.False(t, ok)
}

func TestHandler_PollAndDispatchDeliversLifecycleAndMessages(t *testing.T) {
	h, server, _, _ := newHarness(t)

	var events []lifecycle.Event
	h.AddConnectionListener(func(ev lifecycle.Event) { events = append(events, ev) })

	var levels []string
	h.dispatcher.Register(wire.TagLevelChange, func(msg wire.Message) {
		levels = append(levels, msg.(wire.LevelChange).LevelName)
	})

	server.SendReliable(h.conn, wire.ConnectAck{ClientID: 3})
	server.SendReliable(h.conn, wire.LevelChange{LevelName: "sewers"})

	waitFor(t, 2*time.Second, func() bool {
		h.PollAndDispatch()
		return len(events) > 0 && len(levels) > 0
	})

	assert.Equal(t, lifecycle.EventConnected, events[0])
	assert.Equal(t, "sewers", levels[0])
}

func TestHandler_RequestEntitySpawnSendsReliableMessage(t *testing.T) {
	h, _, serverInbound, _ := newHarness(t)

	h.RequestEntitySpawn("golem")

	select {
	case in := <-serverInbound:
		req, ok := in.Message.(wire.RequestEntitySpawn)
		require.True(t, ok)
		assert.Equal(t, "golem", req.EntityName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RequestEntitySpawn")
	}
}
