// Package collab declares the narrow interfaces through which the
// authoritative core reaches the gameplay systems that are explicitly out
// of scope: the entity-component store and the level/campaign
// pipeline. The core never imports gameplay packages directly; it is
// handed an EntityWorld and a LevelCatalog at startup and only ever calls
// through these interfaces.
package collab

// Point is a 2D world-space coordinate, independent of the wire encoding.
type Point struct {
	X, Y float32
}

// Observation is the per-entity data the snapshot translator reads once
// per tick. Position is always populated; the rest are optional and mirror
// the wire snapshot's EntityState fields one for one.
type Observation struct {
	Position Point

	HasViewDir bool
	ViewDir byte // one of the wire.View* cardinal values

	HasHealth bool
	Health int32
	MaxHealth int32

	HasAnimation bool
	Animation string

	HasTint bool
	Tint uint32

	// TexturePath identifies the client-side asset to instantiate for a
	// fresh local mirror. Only consulted when answering a spawn request,
	// never carried in a periodic Snapshot.
	TexturePath string
}

// Controller is the per-entity actuator the tick loop drives when it drains
// an input. Implementations translate each call into
// whatever the entity-component store's movement/skill/interaction systems
// expect.
type Controller interface {
	// Move applies a direction derived from point.
	Move(point Point)
	// MovePath requests path-following toward point.
	MovePath(point Point)
	// CastSkill executes the entity's configured skill toward point.
	CastSkill(point Point)
	// Interact triggers interaction with the closest interactable at point.
	Interact(point Point)
}

// EntityWorld is the narrow collaborator that owns the entity-component
// store. The core only spawns/removes entities by stable name
// and reads/controls them through this interface; it never touches engine
// internals.
type EntityWorld interface {
	// SpawnAt creates a new entity for name positioned at pos and adds it
	// to the world. Spawning twice for the same name
	// before a Remove is a caller error.
	SpawnAt(name string, pos Point) error

	// Remove destroys the entity for name, if any.
	Remove(name string)

	// Controller returns the actuator for name, or ok=false if unknown.
	Controller(name string) (Controller, bool)

	// Observe returns the current observable state for name, or
	// ok=false when the entity has no position yet or doesn't exist —
	// the translator skips such entities rather than erroring.
	Observe(name string) (Observation, bool)

	// Names returns a stable-order snapshot of all entity names currently
	// in the world, for the translator to iterate without touching engine
	// internals directly.
	Names() []string
}
