// pkg/core/entity.go
package core

// Rect is a box of four signed extents measured from an anchor point.
type Rect struct {
	Left  int
	Up    int
	Right int
	Down  int
}

// Area is an absolute rectangle in pixels.
type Area struct {
	X      int
	Y      int
	Width  int
	Height int
}

// EntityType is one row of the entity type table.
type EntityType struct {
	ID         int
	Flags      uint16
	Health     uint16
	Tileset    uint8
	DeathSound uint8
	HurtSound  uint8
	Size       uint8
	Exp        uint32
	Damage     uint32
	Hitbox     Rect
	Display    Rect
}
