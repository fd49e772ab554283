// Package demo provides a minimal, in-memory EntityWorld and LevelCatalog
// sufficient to run the server and exercise the transport+authority core
// end to end. The entity-component store, rendering and level loading all
// live outside the core; this package is a stand-in for them, not part of
// it.
package demo

import (
	"sort"
	"sync"

	"dungeonnet/internal/collab"
)

type entity struct {
	mu sync.Mutex
	pos collab.Point
	dir byte
	hasDir bool
	hp int32
	maxHP int32
}

// World is a toy EntityWorld: entities only track position, facing and
// health, and every action resolves immediately instead of running through
// real movement/combat systems.
type World struct {
	mu sync.RWMutex
	entities map[string]*entity
}

// NewWorld returns an empty World.
func NewWorld() *World {
	return &World{entities: make(map[string]*entity)}
}

func (w *World) SpawnAt(name string, pos collab.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entities[name] = &entity{pos: pos, hp: 100, maxHP: 100}
	return nil
}

func (w *World) Remove(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, name)
}

func (w *World) Controller(name string) (collab.Controller, bool) {
	w.mu.RLock()
	e, ok := w.entities[name]
	w.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &entityController{e: e}, true
}

func (w *World) Observe(name string) (collab.Observation, bool) {
	w.mu.RLock()
	e, ok := w.entities[name]
	w.mu.RUnlock()
	if !ok {
		return collab.Observation{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return collab.Observation{
		Position: e.pos,
		HasViewDir: e.hasDir,
		ViewDir: e.dir,
		HasHealth: true,
		Health: e.hp,
		MaxHealth: e.maxHP,
		HasAnimation: false,
		HasTint: false,
		TexturePath: "entities/" + name + ".png",
	}, true
}

func (w *World) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.entities))
	for n := range w.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// entityController drives one entity's toy movement: Move and MovePath
// step the entity by a fixed unit along the sign of each coordinate of
// point, which is enough to demonstrate monotonically increasing
// authoritative positions without a real physics/pathing system. CastSkill
// and Interact have no effect.
type entityController struct {
	e *entity
}

const stepUnit = 0.1

func (c *entityController) Move(point collab.Point) {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	c.e.pos.X += sign(point.X) * stepUnit
	c.e.pos.Y += sign(point.Y) * stepUnit
}

func (c *entityController) MovePath(point collab.Point) {
	c.Move(point)
}

func (c *entityController) CastSkill(point collab.Point) {
	// Toy world: casting has no gameplay effect, only acknowledged via logs
	// at the dispatch layer.
}

func (c *entityController) Interact(point collab.Point) {
	// Toy world: no interactables to resolve.
}

func sign(v float32) float32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
