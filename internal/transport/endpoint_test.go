package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestEndpoint_ReliableRoundTrip(t *testing.T) {
	port := freePort(t)

	serverInbound := make(chan Inbound, 8)
	serverDatagrams := make(chan Datagram, 8)
	server, err := NewServer("127.0.0.1", port, Config{Inbound: serverInbound, Datagrams: serverDatagrams})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	clientInbound := make(chan Inbound, 8)
	clientDatagrams := make(chan Datagram, 8)
	client, conn, err := NewClient("127.0.0.1", port, Config{Inbound: clientInbound, Datagrams: clientDatagrams})
	require.NoError(t, err)
	go client.Run(ctx)

	client.SendReliable(conn, wire.ConnectRequest{PlayerName: "hero"})

	select {
	case in := <-serverInbound:
		req, ok := in.Message.(wire.ConnectRequest)
		require.True(t, ok)
		assert.Equal(t, "hero", req.PlayerName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reliable message on server")
	}
}

func TestEndpoint_DatagramRoundTrip(t *testing.T) {
	port := freePort(t)

	serverInbound := make(chan Inbound, 8)
	serverDatagrams := make(chan Datagram, 8)
	server, err := NewServer("127.0.0.1", port, Config{Inbound: serverInbound, Datagrams: serverDatagrams})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	clientInbound := make(chan Inbound, 8)
	clientDatagrams := make(chan Datagram, 8)
	client, _, err := NewClient("127.0.0.1", port, Config{Inbound: clientInbound, Datagrams: clientDatagrams})
	require.NoError(t, err)
	go client.Run(ctx)

	time.Sleep(50 * time.Millisecond) // let the server's datagram socket come up

	client.SendDatagramToServer(wire.RegisterUDP{ClientID: 42})

	select {
	case dg := <-serverDatagrams:
		reg, ok := dg.Message.(wire.RegisterUDP)
		require.True(t, ok)
		assert.EqualValues(t, 42, reg.ClientID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram on server")
	}
}

func TestEndpoint_BroadcastDatagram(t *testing.T) {
	port := freePort(t)

	serverInbound := make(chan Inbound, 8)
	serverDatagrams := make(chan Datagram, 8)
	server, err := NewServer("127.0.0.1", port, Config{Inbound: serverInbound, Datagrams: serverDatagrams})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	clientInbound := make(chan Inbound, 8)
	clientDatagrams := make(chan Datagram, 8)
	client, _, err := NewClient("127.0.0.1", port, Config{Inbound: clientInbound, Datagrams: clientDatagrams})
	require.NoError(t, err)
	go client.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	// The server learns the client's address from an inbound datagram.
	client.SendDatagramToServer(wire.RegisterUDP{ClientID: 1})
	var peerAddr *net.UDPAddr
	select {
	case dg := <-serverDatagrams:
		peerAddr = dg.Addr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for registration datagram")
	}

	server.BroadcastDatagram([]*net.UDPAddr{peerAddr}, wire.Snapshot{ServerTick: 7})

	select {
	case dg := <-clientDatagrams:
		snap, ok := dg.Message.(wire.Snapshot)
		require.True(t, ok)
		assert.EqualValues(t, 7, snap.ServerTick)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast snapshot on client")
	}
}

func TestEndpoint_OversizeDatagramDropped(t *testing.T) {
	port := freePort(t)

	serverInbound := make(chan Inbound, 8)
	serverDatagrams := make(chan Datagram, 8)
	server, err := NewServer("127.0.0.1", port, Config{Inbound: serverInbound, Datagrams: serverDatagrams})
	require.NoError(t, err)
	defer server.Shutdown()

	huge := make([]byte, 2000)
	for i := range huge {
		huge[i] = 'x'
	}
	// A Snapshot with a giant animation string blows past the send cap.
	snap := wire.Snapshot{ServerTick: 1, Entities: []wire.EntityState{
		{Name: "hero", HasAnimation: true, Animation: string(huge)},
	}}

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)

	// SendDatagram must not panic and must not actually put anything on
	// the wire; there's no observer here beyond "it didn't crash".
	server.SendDatagram(addr, snap)
}
