package demo

import "dungeonnet/internal/collab"

// Catalog is a single-level LevelCatalog: one level, no campaign, never
// exhausted. It emits the level once on construction.
type Catalog struct {
	current collab.LevelInfo
	changes chan collab.LevelInfo
	done    chan struct{}
}

// NewCatalog returns a Catalog stuck on a single named level.
func NewCatalog(levelName string, start collab.Point) *Catalog {
	c := &Catalog{
		current: collab.LevelInfo{Name: levelName, StartPosition: start},
		changes: make(chan collab.LevelInfo, 1),
		done:    make(chan struct{}),
	}
	c.changes <- c.current
	return c
}

func (c *Catalog) CurrentLevel() collab.LevelInfo { return c.current }

func (c *Catalog) LevelChanges() <-chan collab.LevelInfo { return c.changes }

func (c *Catalog) CampaignExhausted() <-chan struct{} { return c.done }
