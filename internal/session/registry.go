// Package session implements the server-side session registry:
// ClientId allocation, player-name validation, and the three maps that
// bind a logical client identity to its reliable handle and datagram
// return address.
package session

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"

	"dungeonnet/internal/audit"
)

// processStartNonce seeds correlationTag so tags are stable within one
// server process but unpredictable and unlinkable across restarts — it is
// a log-correlation aid, never a credential.
var processStartNonce = func() [16]byte {
	var b [16]byte
	_, _ = cryptorand.Read(b[:])
	return b
}()

// correlationTag derives a short opaque string from id for pairing log
// lines across the reliable and datagram channels without exposing or
// relying on the raw ClientId as a secret. Not used for authentication.
func correlationTag(id ClientID) string {
	h, _ := blake2b.New(8, nil)
	h.Write(processStartNonce[:])
	_ = binary.Write(h, binary.BigEndian, int64(id))
	return hex.EncodeToString(h.Sum(nil))
}

// ClientID is a server-assigned, strictly positive, monotonically
// increasing identifier, unique for the lifetime of the server process
//.
type ClientID int64

// Handle identifies a reliable-channel connection. It is never dereferenced
// by this package — only compared for map identity — so any comparable
// connection-wrapper type (typically a pointer) works. Keeping it opaque
// avoids an import cycle with the transport package that owns the real
// connection type.
type Handle any

// State is the server-side session state machine.
type State int

const (
	StateAccepted State = iota
	StateAcknowledged
	StateBound
	StateClosed
)

// Session is the server-side binding of ClientId, player name, reliable
// handle and (once registered) datagram return address.
type Session struct {
	ClientID ClientID
	PlayerName string
	Handle Handle
	DatagramAddr *net.UDPAddr // nil until RegisterDatagram succeeds
	State State

	// CorrelationTag is a short opaque log-correlation string, not a
	// credential — see correlationTag.
	CorrelationTag string
}

// Peer is an immutable snapshot of one BOUND session's datagram address,
// as returned by DatagramPeers for broadcast fan-out.
type Peer struct {
	ClientID ClientID
	Addr *net.UDPAddr
}

// Registry is the concurrent session registry. All reads that
// must not race with concurrent mutation take a snapshot copy rather than
// holding a lock across iteration.
type Registry struct {
	nextID atomic.Int64

	mu sync.RWMutex
	byClientID map[ClientID]*Session
	byHandle map[Handle]ClientID
	namesInUse map[string]ClientID

	// sink receives best-effort connect/disconnect notifications. nil by
	// default — audit is an optional deployment concern, never required
	// for the registry to function.
	sink audit.Sink
}

// NewRegistry returns an empty Registry. ClientIds start at 1.
func NewRegistry() *Registry {
	return &Registry{
		byClientID: make(map[ClientID]*Session),
		byHandle: make(map[Handle]ClientID),
		namesInUse: make(map[string]ClientID),
	}
}

// SetAuditSink installs sink as the destination for best-effort session
// lifecycle notifications. Passing nil disables auditing.
func (r *Registry) SetAuditSink(sink audit.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// ValidateName enforces the player-name rule: non-empty, no
// underscore, not already held by a connected session. The underscore
// restriction is reserved for future duplicate-name disambiguation and is
// enforced even though nothing currently emits a suffixed name.
func (r *Registry) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("player name must not be empty")
	}
	if strings.Contains(name, "_") {
		return fmt.Errorf("player name must not contain '_'")
	}

	r.mu.RLock()
	_, taken := r.namesInUse[name]
	r.mu.RUnlock()
	if taken {
		return fmt.Errorf("player name %q is already in use", name)
	}
	return nil
}

// Accept validates playerName and, on success, allocates the next ClientID
// and binds it to (handle, playerName) in state ACCEPTED.
// The caller is responsible for sending CONNECT_ACK/LEVEL_CHANGE on success
// or CONNECT_REJECT+close on error — this method has no I/O side effects.
func (r *Registry) Accept(handle Handle, playerName string) (ClientID, error) {
	if err := r.ValidateName(playerName); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock: ValidateName's read above is
	// advisory only, a concurrent Accept could have taken the name since.
	if _, taken := r.namesInUse[playerName]; taken {
		return 0, fmt.Errorf("player name %q is already in use", playerName)
	}

	id := ClientID(r.nextID.Add(1))
	sess := &Session{
		ClientID: id,
		PlayerName: playerName,
		Handle: handle,
		State: StateAccepted,
		CorrelationTag: correlationTag(id),
	}
	r.byClientID[id] = sess
	r.byHandle[handle] = id
	r.namesInUse[playerName] = id
	sink := r.sink
	if sink != nil {
		sink.Record(audit.Record{ClientID: int64(id), PlayerName: playerName, Event: audit.EventConnected, OccurredAt: time.Now()})
	}
	return id, nil
}

// Acknowledge advances clientID from ACCEPTED to ACKNOWLEDGED. The caller
// invokes this once CONNECT_ACK has actually been sent, so the session's
// State always reflects what the peer has been told rather than what the
// registry alone has decided. Returns false if clientID is unknown.
func (r *Registry) Acknowledge(clientID ClientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byClientID[clientID]
	if !ok {
		return false
	}
	sess.State = StateAcknowledged
	return true
}

// RegisterDatagram binds addr as clientID's datagram return address,
// overwriting any previous address, but only if clientID currently maps to
// an active reliable handle. Returns false when clientID is
// unknown — the caller drops the datagram without further action.
func (r *Registry) RegisterDatagram(clientID ClientID, addr *net.UDPAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byClientID[clientID]
	if !ok {
		return false
	}
	sess.DatagramAddr = addr
	sess.State = StateBound
	return true
}

// DropHandle removes every trace of the session owning handle: the
// handle→clientID reverse map entry, and the clientID's address/name
// bindings. It is a no-op if handle is unknown (already dropped).
func (r *Registry) DropHandle(handle Handle) (ClientID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHandle[handle]
	if !ok {
		return 0, false
	}

	sess := r.byClientID[id]
	delete(r.byHandle, handle)
	delete(r.byClientID, id)
	if sess != nil {
		delete(r.namesInUse, sess.PlayerName)
		if sink := r.sink; sink != nil {
			sink.Record(audit.Record{ClientID: int64(id), PlayerName: sess.PlayerName, Event: audit.EventDisconnected, OccurredAt: time.Now()})
		}
	}
	return id, true
}

// DatagramPeers returns an immutable snapshot of every bound session's
// datagram address, used by the tick loop's snapshot broadcast. A session
// whose reliable channel has since closed never appears here.
func (r *Registry) DatagramPeers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.byClientID))
	for id, sess := range r.byClientID {
		if sess.State == StateBound && sess.DatagramAddr != nil {
			peers = append(peers, Peer{ClientID: id, Addr: sess.DatagramAddr})
		}
	}
	return peers
}

// Handles returns a snapshot of every currently-registered reliable
// handle, regardless of datagram-bound state, for broadcasting
// reliable-channel messages (LEVEL_CHANGE, GAME_OVER) to every connected
// client.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.byHandle))
	for h := range r.byHandle {
		handles = append(handles, h)
	}
	return handles
}

// ClientIDs returns a snapshot of every currently-registered ClientID
// (BOUND or not), used by the tick loop to reconcile session->entity
// bindings.
func (r *Registry) ClientIDs() []ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ClientID, 0, len(r.byClientID))
	for id := range r.byClientID {
		ids = append(ids, id)
	}
	return ids
}

// NameOf returns the player name bound to clientID, or "" if unknown.
func (r *Registry) NameOf(clientID ClientID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byClientID[clientID]
	if !ok {
		return "", false
	}
	return sess.PlayerName, true
}

// HandleOf returns the reliable handle bound to clientID, or nil/false if
// unknown. Used to validate that a REGISTER_UDP's ClientId maps to an
// active session before touching the datagram map.
func (r *Registry) HandleOf(clientID ClientID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byClientID[clientID]
	if !ok {
		return nil, false
	}
	return sess.Handle, true
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClientID)
}
