// Package npctbl decodes the entity type table (npc.tbl).
//
// The table is stored as a struct of arrays: every column holds one value per
// entity type, and the columns follow each other in a fixed order.
package npctbl

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/cavestory-tools/cse/internal/bytecodec"
	"github.com/cavestory-tools/cse/pkg/core"
)

// EntrySize is the number of bytes one entity type occupies across all columns.
const EntrySize = 0x18

// ErrMissingType is returned when a type ID is not present in the table.
var ErrMissingType = errors.New("entity type not defined")

// Table holds decoded entity types indexed by ID.
type Table struct {
	types []core.EntityType
}

// Open reads and decodes the table at path.
func Open(fs afero.Fs, path string) (*Table, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading entity table: %w", err)
	}
	return Decode(data), nil
}

// Decode builds a table from raw bytes. Trailing bytes that do not make up a
// whole entry are ignored.
func Decode(data []byte) *Table {
	n := len(data) / EntrySize
	types := make([]core.EntityType, n)

	off := 0
	column := func(width int) int {
		start := off
		off += width * n
		return start
	}
	flags := column(2)
	health := column(2)
	tileset := column(1)
	death := column(1)
	hurt := column(1)
	size := column(1)
	exp := column(4)
	damage := column(4)
	hitbox := column(4)
	display := column(4)

	for i := range types {
		types[i] = core.EntityType{
			ID:         i,
			Flags:      bytecodec.ReadU16(data, flags+i*2),
			Health:     bytecodec.ReadU16(data, health+i*2),
			Tileset:    data[tileset+i],
			DeathSound: data[death+i],
			HurtSound:  data[hurt+i],
			Size:       data[size+i],
			Exp:        bytecodec.ReadU32(data, exp+i*4),
			Damage:     bytecodec.ReadU32(data, damage+i*4),
			Hitbox:     readRect(data, hitbox+i*4),
			Display:    readRect(data, display+i*4),
		}
	}
	return &Table{types: types}
}

func readRect(data []byte, off int) core.Rect {
	return core.Rect{
		Left:  int(data[off]),
		Up:    int(data[off+1]),
		Right: int(data[off+2]),
		Down:  int(data[off+3]),
	}
}

// EntityType returns the type with the given ID.
func (t *Table) EntityType(id int) (core.EntityType, bool) {
	if t == nil || id < 0 || id >= len(t.types) {
		return core.EntityType{}, false
	}
	return t.types[id], true
}

// Lookup is EntityType with an error for unknown IDs.
func (t *Table) Lookup(id int) (core.EntityType, error) {
	et, ok := t.EntityType(id)
	if !ok {
		return core.EntityType{}, fmt.Errorf("%w: %d", ErrMissingType, id)
	}
	return et, nil
}

// Len returns the number of entity types.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.types)
}
