// Package snapshot implements the snapshot translator: it
// builds a wire.Snapshot from authoritative entity state on the server and
// applies a received wire.Snapshot to a client-side mirror, enforcing the
// monotonic server-tick guard on both ends. It never touches game state
// from an I/O thread — Build runs on the tick thread, Apply runs from the
// client's dispatcher on the game thread.
package snapshot

import (
	"log/slog"
	"sync"

	"dungeonnet/internal/collab"
	"dungeonnet/internal/wire"
)

// ServerTranslator builds periodic snapshots from the authoritative
// EntityWorld.
type ServerTranslator struct {
	mu sync.Mutex
	lastTick int64
	hasEmitted bool
}

// NewServerTranslator returns a translator with no prior emitted tick.
func NewServerTranslator() *ServerTranslator {
	return &ServerTranslator{}
}

// Build produces SNAPSHOT(serverTick, entities) from world, or ok=false if
// serverTick is not strictly newer than the last tick this translator
// emitted.
func (t *ServerTranslator) Build(serverTick int64, world collab.EntityWorld) (wire.Snapshot, bool) {
	t.mu.Lock()
	if t.hasEmitted && !isNewerTick(serverTick, t.lastTick) {
		t.mu.Unlock()
		return wire.Snapshot{}, false
	}
	t.lastTick = serverTick
	t.hasEmitted = true
	t.mu.Unlock()

	names := world.Names()
	entities := make([]wire.EntityState, 0, len(names))
	for _, name := range names {
		obs, ok := world.Observe(name)
		if !ok {
			// No position (or entity vanished between Names() and
			// Observe()) — skip entities without a position.
			continue
		}
		entities = append(entities, wire.EntityState{
			Name: name,
			Position: wire.Point{X: obs.Position.X, Y: obs.Position.Y},
			HasViewDir: obs.HasViewDir,
			ViewDir: wire.ViewDir(obs.ViewDir),
			HasHealth: obs.HasHealth,
			Health: obs.Health,
			MaxHealth: obs.MaxHealth,
			HasAnimation: obs.HasAnimation,
			Animation: obs.Animation,
			HasTint: obs.HasTint,
			Tint: obs.Tint,
		})
	}

	return wire.Snapshot{ServerTick: serverTick, Entities: entities}, true
}

// ClientTranslator applies received snapshots to a local ClientMirror
//.
type ClientTranslator struct {
	mu sync.Mutex
	lastTick int64
	hasApplied bool
}

// NewClientTranslator returns a translator with no prior applied tick.
func NewClientTranslator() *ClientTranslator {
	return &ClientTranslator{}
}

// Apply overwrites mirror state from snap, unless snap.ServerTick is not
// strictly newer than the last tick this translator applied, in which
// case it is dropped. Applying the same
// snapshot twice is therefore a no-op on the second call.
func (t *ClientTranslator) Apply(snap wire.Snapshot, mirror collab.ClientMirror) bool {
	t.mu.Lock()
	if t.hasApplied && !isNewerTick(snap.ServerTick, t.lastTick) {
		t.mu.Unlock()
		return false
	}
	t.lastTick = snap.ServerTick
	t.hasApplied = true
	t.mu.Unlock()

	for _, e := range snap.Entities {
		target, ok := mirror.Resolve(e.Name)
		if !ok {
			slog.Debug("snapshot: unknown entity, skipping", "entity", e.Name)
			continue
		}

		target.SetPosition(collab.Point{X: e.Position.X, Y: e.Position.Y})

		if e.HasViewDir {
			if e.ViewDir.Valid() {
				target.SetViewDir(byte(e.ViewDir))
			} else {
				slog.Debug("snapshot: invalid view direction, field ignored", "entity", e.Name, "dir", e.ViewDir)
			}
		}
		if e.HasAnimation {
			target.SetAnimation(e.Animation)
		}
		if e.HasTint {
			target.SetTint(e.Tint)
		}
		if e.HasHealth {
			target.SetHealth(e.Health, e.MaxHealth)
		}
	}

	return true
}

// LastAppliedTick returns the most recent server tick this translator has
// accepted, for tests and diagnostics.
func (t *ClientTranslator) LastAppliedTick() (tick int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTick, t.hasApplied
}
