// Package wire implements the self-describing tagged-variant codec for the
// dungeon server's two channels: length-prefixed reliable frames and
// single-payload datagrams.
package wire

// Tag identifies a message variant on the wire. Client and server variants
// live in disjoint ranges so a misrouted payload is caught immediately.
type Tag byte

const (
	TagConnectRequest Tag = 0x01
	TagRegisterUDP Tag = 0x02
	TagInput Tag = 0x03
	TagRequestEntitySpawn Tag = 0x04

	TagConnectAck Tag = 0x81
	TagConnectReject Tag = 0x82
	TagLevelChange Tag = 0x83
	TagEntitySpawnEvt Tag = 0x84
	TagSnapshot Tag = 0x85
	TagGameOver Tag = 0x86
)

// Action is a player input intent.
type Action byte

const (
	ActionMove Action = iota
	ActionMovePath
	ActionCastSkill
	ActionInteract
)

func (a Action) Valid() bool { return a <= ActionInteract }

// ViewDir is a cardinal facing, one of eight compass points.
type ViewDir byte

const (
	ViewNorth ViewDir = iota
	ViewNorthEast
	ViewEast
	ViewSouthEast
	ViewSouth
	ViewSouthWest
	ViewWest
	ViewNorthWest
)

func (d ViewDir) Valid() bool { return d <= ViewNorthWest }

// Point is a 2D world-space coordinate.
type Point struct {
	X, Y float32
}

// EntityState is one entity's compact observable record inside a Snapshot
//. Position is always present; the rest are optionally carried.
type EntityState struct {
	Name string
	Position Point

	HasViewDir bool
	ViewDir ViewDir

	HasHealth bool
	Health int32
	MaxHealth int32

	HasAnimation bool
	Animation string

	HasTint bool
	Tint uint32
}

// Message is implemented by every wire variant.
type Message interface {
	Tag() Tag
}

// --- client -> server ---

// ConnectRequest asks the server to bind a fresh ClientId to playerName.
type ConnectRequest struct {
	PlayerName string
}

func (ConnectRequest) Tag() Tag { return TagConnectRequest }

// RegisterUDP binds the sender's observed datagram address to clientID.
type RegisterUDP struct {
	ClientID int64
}

func (RegisterUDP) Tag() Tag { return TagRegisterUDP }

// Input is one unit of player intent for the tick loop to drain.
type Input struct {
	ClientID int64
	Action Action
	Point Point
}

func (Input) Tag() Tag { return TagInput }

// RequestEntitySpawn asks the server to (re-)emit an EntitySpawnEvent for a
// named entity the client doesn't yet have a local mirror for.
type RequestEntitySpawn struct {
	EntityName string
}

func (RequestEntitySpawn) Tag() Tag { return TagRequestEntitySpawn }

// --- server -> client ---

// ConnectAck confirms a ConnectRequest and conveys the assigned ClientId.
type ConnectAck struct {
	ClientID int64
}

func (ConnectAck) Tag() Tag { return TagConnectAck }

// ConnectReject refuses a ConnectRequest; the reliable channel is closed
// immediately afterward.
type ConnectReject struct {
	Reason string
}

func (ConnectReject) Tag() Tag { return TagConnectReject }

// LevelChange announces the current level and, optionally, a spawn point.
type LevelChange struct {
	LevelName string
	HasSpawnPoint bool
	SpawnPoint Point
}

func (LevelChange) Tag() Tag { return TagLevelChange }

// EntitySpawnEvent tells the client to create a local mirror for a named
// entity.
type EntitySpawnEvent struct {
	EntityName string
	Position Point
	ViewDir ViewDir
	TexturePath string
	Animation string
	Tint uint32
}

func (EntitySpawnEvent) Tag() Tag { return TagEntitySpawnEvt }

// Snapshot is the periodic authoritative world update.
type Snapshot struct {
	ServerTick int64
	Entities []EntityState
}

func (Snapshot) Tag() Tag { return TagSnapshot }

// GameOver announces campaign exhaustion.
type GameOver struct{}

func (GameOver) Tag() Tag { return TagGameOver }
