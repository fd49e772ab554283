// Package dispatch implements the message dispatcher: a
// variant→handler map invoked exclusively from the game-loop thread (the
// tick thread on the server, the host's frame thread on the client).
// Dispatch itself does no synchronization beyond a registration lock —
// callers are responsible for only ever calling Dispatch from the single
// thread that owns game state.
package dispatch

import (
	"log/slog"
	"sync"

	"dungeonnet/internal/wire"
)

// HandlerFunc processes one decoded message. It must not block — long
// work is forbidden inside dispatch.
type HandlerFunc func(msg wire.Message)

// Dispatcher maps each wire.Tag to at most one handler.
type Dispatcher struct {
	mu sync.RWMutex
	handlers map[wire.Tag]HandlerFunc
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[wire.Tag]HandlerFunc)}
}

// Register installs handler for tag, replacing any previous handler for
// the same variant.
func (d *Dispatcher) Register(tag wire.Tag, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[tag] = handler
}

// Dispatch invokes the handler registered for msg's tag. An unhandled
// variant is logged at info level and dropped rather than
// treated as an error — a host that hasn't wired a handler for a variant
// it doesn't care about is a normal configuration, not a bug.
func (d *Dispatcher) Dispatch(msg wire.Message) {
	d.mu.RLock()
	handler, ok := d.handlers[msg.Tag()]
	d.mu.RUnlock()

	if !ok {
		slog.Info("dispatch: no handler registered for variant", "tag", msg.Tag())
		return
	}
	handler(msg)
}
