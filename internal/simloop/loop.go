// Package simloop drives the authoritative fixed-rate tick loop: it is the
// only goroutine ever allowed to touch the EntityWorld directly, drains
// queued inputs and dispatch-only messages on every tick, advances the
// server tick counter, and periodically hands a freshly built snapshot to
// a broadcast function.
package simloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dungeonnet/internal/collab"
	"dungeonnet/internal/session"
	"dungeonnet/internal/snapshot"
	"dungeonnet/internal/wire"
)

// InputEvent is one queued player input, already resolved to the acting
// player's name by the caller (the server wiring in netcore looks the name
// up from the session registry before enqueueing).
type InputEvent struct {
	PlayerName string
	Action     wire.Action
	Point      collab.Point
}

// Broadcaster delivers a built snapshot, a level-change notice, or a
// game-over notice to every connected peer, and can also deliver a message
// to a single requester. The loop never knows how delivery happens —
// that's the transport endpoint's job.
type Broadcaster interface {
	BroadcastSnapshot(snap wire.Snapshot)
	BroadcastLevelChange(msg wire.LevelChange)
	BroadcastGameOver()

	// SendEntitySpawnEvent delivers msg to the single connection that
	// asked for it. handle is whatever opaque value the caller passed to
	// RequestEntitySpawnInfo.
	SendEntitySpawnEvent(handle any, msg wire.EntitySpawnEvent)
}

// Loop owns the fixed-rate tick goroutine. Construct with New, then call
// Run from its own goroutine and Stop to shut it down.
type Loop struct {
	tickInterval     time.Duration
	snapshotInterval time.Duration

	world    collab.EntityWorld
	catalog  collab.LevelCatalog
	sink     Broadcaster
	registry *session.Registry
	translator *snapshot.ServerTranslator

	mu     sync.Mutex
	inputs []InputEvent

	spawnInfoRequests chan spawnInfoRequest

	// boundNames tracks which world entities this loop spawned to back a
	// session — removed on session drop.
	boundNames map[string]struct{}

	tick     int64
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// spawnInfoRequest is one pending RequestEntitySpawn, carrying the opaque
// handle the answer must be routed back to.
type spawnInfoRequest struct {
	handle     any
	entityName string
}

// Config bundles the fixed parameters a Loop needs at construction.
type Config struct {
	TickHz     int
	SnapshotHz int
	World      collab.EntityWorld
	Catalog    collab.LevelCatalog
	Sink       Broadcaster
	Registry   *session.Registry
}

// New builds a Loop at tick 0. TickHz and SnapshotHz must be positive;
// SnapshotHz need not divide TickHz evenly. Registry may be nil, in which
// case the loop never reconciles session bindings — useful for tests that
// drive the world directly.
func New(cfg Config) *Loop {
	return &Loop{
		tickInterval:     time.Second / time.Duration(cfg.TickHz),
		snapshotInterval: time.Second / time.Duration(cfg.SnapshotHz),
		world:            cfg.World,
		catalog:          cfg.Catalog,
		sink:             cfg.Sink,
		registry:         cfg.Registry,
		translator:       snapshot.NewServerTranslator(),
		spawnInfoRequests: make(chan spawnInfoRequest, 64),
		boundNames:       make(map[string]struct{}),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// EnqueueInput queues one input for processing on the next tick. Safe to
// call from any goroutine.
func (l *Loop) EnqueueInput(ev InputEvent) {
	l.mu.Lock()
	l.inputs = append(l.inputs, ev)
	l.mu.Unlock()
}

// RequestEntitySpawnInfo queues a RequestEntitySpawn answer, processed on
// the tick thread so Observe is never called concurrently with a tick's
// own world mutations. handle is passed back unchanged to
// Broadcaster.SendEntitySpawnEvent.
func (l *Loop) RequestEntitySpawnInfo(handle any, entityName string) {
	select {
	case l.spawnInfoRequests <- spawnInfoRequest{handle: handle, entityName: entityName}:
	default:
		slog.Warn("simloop: spawn info request queue full, dropping", "entity", entityName)
	}
}

// Tick returns the current server tick counter.
func (l *Loop) Tick() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tick
}

// Run drives the tick loop until ctx is canceled or Stop is called. It
// blocks until the loop exits, so callers typically run it in its own
// goroutine.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.doneCh)

	// A single ticker drives both tasks so simulation and snapshot
	// emission always run on the same thread in a fixed order — snapshot
	// emission is accumulated against tick time rather than driven by an
	// independent ticker, so the two can never race to decide which runs
	// first when their periods coincide.
	tickTicker := time.NewTicker(l.tickInterval)
	defer tickTicker.Stop()
	var sinceSnapshot time.Duration

	levelChanges := l.catalog.LevelChanges()
	campaignExhausted := l.catalog.CampaignExhausted()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopCh:
			return nil
		case level := <-levelChanges:
			l.sink.BroadcastLevelChange(wire.LevelChange{
				LevelName:     level.Name,
				HasSpawnPoint: true,
				SpawnPoint:    wire.Point{X: level.StartPosition.X, Y: level.StartPosition.Y},
			})
		case <-campaignExhausted:
			l.sink.BroadcastGameOver()
			campaignExhausted = nil
		case req := <-l.spawnInfoRequests:
			l.answerSpawnInfo(req)
		case <-tickTicker.C:
			l.advance()
			sinceSnapshot += l.tickInterval
			if sinceSnapshot >= l.snapshotInterval {
				sinceSnapshot -= l.snapshotInterval
				l.emitSnapshot()
			}
		}
	}
}

// Stop requests the loop to exit and blocks until Run has returned.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

// advance reconciles session bindings, drains queued inputs against the
// entity world, and increments the tick counter. It runs entirely on the
// tick goroutine, same as the rest of Run's select cases.
func (l *Loop) advance() {
	l.reconcileSessions()

	l.mu.Lock()
	pending := l.inputs
	l.inputs = nil
	l.tick++
	l.mu.Unlock()

	for _, ev := range pending {
		ctrl, ok := l.world.Controller(ev.PlayerName)
		if !ok {
			slog.Debug("simloop: input for unknown entity, dropping", "player", ev.PlayerName)
			continue
		}
		switch ev.Action {
		case wire.ActionMove:
			ctrl.Move(ev.Point)
		case wire.ActionMovePath:
			ctrl.MovePath(ev.Point)
		case wire.ActionCastSkill:
			ctrl.CastSkill(ev.Point)
		case wire.ActionInteract:
			ctrl.Interact(ev.Point)
		default:
			slog.Warn("simloop: unrecognized action, dropping", "player", ev.PlayerName, "action", ev.Action)
		}
	}
}

// reconcileSessions spawns a world entity for every session that doesn't
// have one yet and removes entities backing sessions that dropped since
// the last tick. It is a no-op when no Registry was configured.
func (l *Loop) reconcileSessions() {
	if l.registry == nil {
		return
	}

	level := l.catalog.CurrentLevel()
	want := make(map[string]struct{})
	for _, id := range l.registry.ClientIDs() {
		name, ok := l.registry.NameOf(id)
		if !ok {
			continue
		}
		want[name] = struct{}{}
		if _, bound := l.boundNames[name]; !bound {
			if err := l.world.SpawnAt(name, level.StartPosition); err != nil {
				slog.Warn("simloop: failed to spawn entity for session", "player", name, "err", err)
				continue
			}
			l.boundNames[name] = struct{}{}
		}
	}

	for name := range l.boundNames {
		if _, ok := want[name]; !ok {
			l.world.Remove(name)
			delete(l.boundNames, name)
		}
	}
}

// answerSpawnInfo observes the requested entity and, if it exists, sends
// the requester an EntitySpawnEvent describing it. A miss is logged and
// otherwise ignored — the requester simply never gets a local mirror for
// an entity that no longer exists.
func (l *Loop) answerSpawnInfo(req spawnInfoRequest) {
	obs, ok := l.world.Observe(req.entityName)
	if !ok {
		slog.Debug("simloop: spawn info requested for unknown entity, ignoring", "entity", req.entityName)
		return
	}
	l.sink.SendEntitySpawnEvent(req.handle, wire.EntitySpawnEvent{
		EntityName: req.entityName,
		Position: wire.Point{X: obs.Position.X, Y: obs.Position.Y},
		ViewDir: wire.ViewDir(obs.ViewDir),
		TexturePath: obs.TexturePath,
		Animation: obs.Animation,
		Tint: obs.Tint,
	})
}

// emitSnapshot asks the translator to build a snapshot for the current
// tick and broadcasts it if the translator accepted the tick.
func (l *Loop) emitSnapshot() {
	tick := l.Tick()
	snap, ok := l.translator.Build(tick, l.world)
	if !ok {
		return
	}
	l.sink.BroadcastSnapshot(snap)
}
