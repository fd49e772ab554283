package simloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonnet/internal/collab"
	"dungeonnet/internal/demo"
	"dungeonnet/internal/session"
	"dungeonnet/internal/wire"
)

type recordingSink struct {
	mu          sync.Mutex
	snapshots   []wire.Snapshot
	levelChange []wire.LevelChange
	gameOvers   int
	spawnEvents []wire.EntitySpawnEvent
	spawnHandles []any
}

func (s *recordingSink) BroadcastSnapshot(snap wire.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *recordingSink) BroadcastLevelChange(msg wire.LevelChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levelChange = append(s.levelChange, msg)
}

func (s *recordingSink) BroadcastGameOver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameOvers++
}

func (s *recordingSink) SendEntitySpawnEvent(handle any, msg wire.EntitySpawnEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawnEvents = append(s.spawnEvents, msg)
	s.spawnHandles = append(s.spawnHandles, handle)
}

func (s *recordingSink) count() (snaps, changes, overs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.levelChange), s.gameOvers
}

func (s *recordingSink) spawnEventsSnapshot() []wire.EntitySpawnEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.EntitySpawnEvent(nil), s.spawnEvents...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLoop_EmitsLevelChangeOnStart(t *testing.T) {
	world := demo.NewWorld()
	catalog := demo.NewCatalog("sewers", collab.Point{X: 0, Y: 0})
	sink := &recordingSink{}

	loop := New(Config{TickHz: 100, SnapshotHz: 20, World: world, Catalog: catalog, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	defer loop.Stop()

	waitFor(t, time.Second, func() bool {
		_, changes, _ := sink.count()
		return changes >= 1
	})
}

func TestLoop_AdvancesTickAndAppliesInput(t *testing.T) {
	world := demo.NewWorld()
	require.NoError(t, world.SpawnAt("hero", collab.Point{X: 0, Y: 0}))
	catalog := demo.NewCatalog("sewers", collab.Point{X: 0, Y: 0})
	sink := &recordingSink{}

	loop := New(Config{TickHz: 200, SnapshotHz: 50, World: world, Catalog: catalog, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	defer loop.Stop()

	loop.EnqueueInput(InputEvent{PlayerName: "hero", Action: wire.ActionMove, Point: collab.Point{X: 1, Y: 0}})

	waitFor(t, time.Second, func() bool {
		return loop.Tick() > 0
	})

	obs, ok := world.Observe("hero")
	require.True(t, ok)
	assert.Greater(t, obs.Position.X, float32(0), "movement input should have nudged the entity")
}

func TestLoop_BroadcastsSnapshots(t *testing.T) {
	world := demo.NewWorld()
	require.NoError(t, world.SpawnAt("hero", collab.Point{X: 0, Y: 0}))
	catalog := demo.NewCatalog("sewers", collab.Point{X: 0, Y: 0})
	sink := &recordingSink{}

	loop := New(Config{TickHz: 200, SnapshotHz: 100, World: world, Catalog: catalog, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	defer loop.Stop()

	waitFor(t, time.Second, func() bool {
		snaps, _, _ := sink.count()
		return snaps >= 2
	})
}

func TestLoop_AnswersEntitySpawnInfoRequest(t *testing.T) {
	world := demo.NewWorld()
	require.NoError(t, world.SpawnAt("golem", collab.Point{X: 3, Y: 4}))
	catalog := demo.NewCatalog("sewers", collab.Point{X: 0, Y: 0})
	sink := &recordingSink{}

	loop := New(Config{TickHz: 200, SnapshotHz: 50, World: world, Catalog: catalog, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	defer loop.Stop()

	requester := new(int)
	loop.RequestEntitySpawnInfo(requester, "golem")

	waitFor(t, time.Second, func() bool {
		return len(sink.spawnEventsSnapshot()) >= 1
	})

	events := sink.spawnEventsSnapshot()
	assert.Equal(t, "golem", events[0].EntityName)
	assert.Equal(t, "entities/golem.png", events[0].TexturePath)
}

func TestLoop_EntitySpawnInfoRequestForUnknownEntityIsIgnored(t *testing.T) {
	world := demo.NewWorld()
	catalog := demo.NewCatalog("sewers", collab.Point{X: 0, Y: 0})
	sink := &recordingSink{}

	loop := New(Config{TickHz: 200, SnapshotHz: 50, World: world, Catalog: catalog, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	defer loop.Stop()

	loop.RequestEntitySpawnInfo(new(int), "nobody")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.spawnEventsSnapshot())
}

func TestLoop_ReconcilesSessionEntities(t *testing.T) {
	world := demo.NewWorld()
	catalog := demo.NewCatalog("sewers", collab.Point{X: 2, Y: 3})
	sink := &recordingSink{}
	registry := session.NewRegistry()

	handle := new(int)
	_, err := registry.Accept(handle, "wanderer")
	require.NoError(t, err)

	loop := New(Config{TickHz: 200, SnapshotHz: 50, World: world, Catalog: catalog, Sink: sink, Registry: registry})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	defer loop.Stop()

	waitFor(t, time.Second, func() bool {
		_, ok := world.Observe("wanderer")
		return ok
	})

	_, dropped := registry.DropHandle(handle)
	require.True(t, dropped)

	waitFor(t, time.Second, func() bool {
		_, ok := world.Observe("wanderer")
		return !ok
	})
}

func TestLoop_StopIsIdempotentAndBlocksUntilDone(t *testing.T) {
	world := demo.NewWorld()
	catalog := demo.NewCatalog("sewers", collab.Point{})
	sink := &recordingSink{}

	loop := New(Config{TickHz: 100, SnapshotHz: 20, World: world, Catalog: catalog, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)

	loop.Stop()
	loop.Stop()
}
