package collab

// ClientMirror is the narrow collaborator over the client's own local
// entity mirror — whatever rendering/ECS store the host process keeps.
// Rendering and the entity-component store both live outside this core.
// The snapshot translator resolves entities by stable name and
// never touches anything else about the host's store.
type ClientMirror interface {
	// Resolve returns the mirror entity for name, or ok=false if the
	// client doesn't have a local entity under that name yet. Callers log
	// and skip rather than treat a miss as an error.
	Resolve(name string) (MirrorEntity, bool)
}

// MirrorEntity receives the fields a Snapshot carries for one entity
//. Each Set call is independent: a translator never
// calls one it has no valid value for.
type MirrorEntity interface {
	SetPosition(p Point)
	SetViewDir(dir byte)
	SetAnimation(name string)
	SetTint(rgba uint32)
	SetHealth(current, max int32)
}
