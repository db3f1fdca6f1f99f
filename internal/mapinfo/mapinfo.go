// Package mapinfo decodes a stage: its tile grid (PXM), the attribute table
// that sorts tiles into layers (PXA) and its placed entities (PXE).
//
// Decoding never fails outright. Broken or missing files are logged and
// replaced with defaults so the rest of the stage can still be shown.
package mapinfo

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/cavestory-tools/cse/internal/bytecodec"
	"github.com/cavestory-tools/cse/internal/npctbl"
	"github.com/cavestory-tools/cse/pkg/core"
)

const (
	// Magic tags a tile file.
	Magic = "PXM"
	// ForegroundThreshold is the highest attribute value kept on the
	// background layer.
	ForegroundThreshold = 0x20
	DefaultWidth        = 21
	DefaultHeight       = 16

	pxmHeaderSize = 8
	pxeHeaderSize = 8
	pxeEntrySize  = 12
)

// Layer selects one of the two tile layers.
type Layer int

const (
	Background Layer = iota
	Foreground
)

var ErrBadMagic = errors.New("bad tile file tag")

// Source describes a stage as listed in the game's stage table.
type Source struct {
	FileName   string
	Tileset    string
	Background string
	NPCSheet1  string
	NPCSheet2  string
	Name       string
	ScrollType int
}

// Layout locates stage files relative to the game's data directory.
type Layout struct {
	DataDir      string
	StageDir     string
	NPCDir       string
	LoadEntities bool
}

// DefaultLayout returns the folder names used by the stock game.
func DefaultLayout(dataDir string) Layout {
	return Layout{DataDir: dataDir, StageDir: "Stage", NPCDir: "Npc", LoadEntities: true}
}

// Assets resolves and holds decoded game assets.
type Assets interface {
	ResolveGraphics(dir, name string) string
	AddImage(path string)
	Image(path string) (image.Image, bool)
	AddAttributes(path string)
	Attributes(path string) ([]byte, bool)
}

// EntityTypes looks up entity types by ID.
type EntityTypes interface {
	EntityType(id int) (core.EntityType, bool)
}

// MapInfo is a decoded stage. It is read-only once built.
type MapInfo struct {
	source Source
	layout Layout
	assets Assets
	logger *slog.Logger

	width  int
	height int
	layers [2][][]uint8

	tileset    string
	background string
	npcSheet1  string
	npcSheet2  string
	pxa        string

	entities       []Entry
	entitiesLoaded bool
}

// Load builds a MapInfo for src. Assets are registered with the cache before
// the tile file is decoded; entities are decoded last and only when the
// layout asks for them.
func Load(fs afero.Fs, src Source, layout Layout, assets Assets, types EntityTypes, logger *slog.Logger) *MapInfo {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MapInfo{
		source: src,
		layout: layout,
		assets: assets,
		logger: logger.With("map", src.FileName),
	}

	m.loadImages()
	m.pxa = filepath.Join(layout.DataDir, layout.StageDir, src.Tileset+".pxa")
	assets.AddAttributes(m.pxa)

	m.loadTiles(fs)
	if layout.LoadEntities {
		m.loadEntities(fs, types)
	}
	return m
}

func (m *MapInfo) loadImages() {
	dir := m.layout.DataDir
	m.tileset = m.assets.ResolveGraphics(dir, filepath.Join(m.layout.StageDir, "Prt"+m.source.Tileset))
	m.assets.AddImage(m.tileset)
	m.background = m.assets.ResolveGraphics(dir, m.source.Background)
	m.assets.AddImage(m.background)
	if !m.layout.LoadEntities {
		return
	}
	m.npcSheet1 = m.assets.ResolveGraphics(dir, filepath.Join(m.layout.NPCDir, "Npc"+m.source.NPCSheet1))
	m.assets.AddImage(m.npcSheet1)
	m.npcSheet2 = m.assets.ResolveGraphics(dir, filepath.Join(m.layout.NPCDir, "Npc"+m.source.NPCSheet2))
	m.assets.AddImage(m.npcSheet2)
}

func (m *MapInfo) stagePath(ext string) string {
	return filepath.Join(m.layout.DataDir, m.layout.StageDir, m.source.FileName+ext)
}

func (m *MapInfo) loadTiles(fs afero.Fs) {
	path := m.stagePath(".pxm")
	width, height, tiles, err := readTiles(fs, path)
	if err != nil {
		m.logger.Error("Failed to load PXM, using empty grid", "path", path, "error", err)
		width, height = DefaultWidth, DefaultHeight
		tiles = make([]byte, width*height)
	}
	m.width, m.height = width, height

	for l := range m.layers {
		m.layers[l] = make([][]uint8, height)
		for y := range m.layers[l] {
			m.layers[l][y] = make([]uint8, width)
		}
	}
	attrs, _ := m.assets.Attributes(m.pxa)
	outside := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tile := tiles[y*width+x]
			attr, ok := attribute(attrs, int(tile))
			if !ok {
				outside++
			}
			if attr > ForegroundThreshold {
				m.layers[Foreground][y][x] = tile
			} else {
				m.layers[Background][y][x] = tile
			}
		}
	}
	if outside > 0 {
		m.logger.Warn("Tiles outside attribute table", "tiles", outside, "pxaLen", len(attrs))
	}
}

func readTiles(fs afero.Fs, path string) (int, int, []byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	header := make([]byte, pxmHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return 0, 0, nil, fmt.Errorf("reading header: %w", err)
	}
	if string(header[:len(Magic)]) != Magic {
		return 0, 0, nil, fmt.Errorf("%w: %q", ErrBadMagic, header[:len(Magic)])
	}
	width := int(bytecodec.ReadU16(header, 4))
	height := int(bytecodec.ReadU16(header, 6))

	info, err := f.Stat()
	if err != nil {
		return 0, 0, nil, err
	}
	if have := info.Size() - pxmHeaderSize; int64(width*height) > have {
		return 0, 0, nil, fmt.Errorf("%dx%d tiles need %d bytes, have %d", width, height, width*height, have)
	}

	tiles := make([]byte, width*height)
	if _, err := io.ReadFull(f, tiles); err != nil {
		return 0, 0, nil, fmt.Errorf("reading %dx%d tiles: %w", width, height, err)
	}
	return width, height, tiles, nil
}

func (m *MapInfo) loadEntities(fs afero.Fs, types EntityTypes) {
	path := m.stagePath(".pxe")
	entities, err := readEntities(fs, path, types)
	if err != nil {
		m.logger.Error("Failed to load PXE", "path", path, "error", err)
		return
	}
	m.entities = entities
	m.entitiesLoaded = true
}

func readEntities(fs afero.Fs, path string, types EntityTypes) ([]Entry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if len(data) < pxeHeaderSize {
		return nil, fmt.Errorf("header truncated at %d bytes", len(data))
	}
	n := int(bytecodec.ReadU16(data, 4))
	if need := pxeHeaderSize + n*pxeEntrySize; len(data) < need {
		return nil, fmt.Errorf("%d entities need %d bytes, have %d", n, need, len(data))
	}

	entities := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		fields := bytecodec.ReadU16s(data, pxeHeaderSize+i*pxeEntrySize, 6)
		e := Entry{
			X:      fields[0],
			Y:      fields[1],
			FlagID: fields[2],
			Event:  fields[3],
			Type:   fields[4],
			Flags:  fields[5],
		}
		var info core.EntityType
		ok := false
		if types != nil {
			info, ok = types.EntityType(int(e.Type))
		}
		if !ok {
			return nil, fmt.Errorf("entity %d: %w: %d", i, npctbl.ErrMissingType, e.Type)
		}
		e.Info = info
		entities = append(entities, e)
	}
	return entities, nil
}

// Attribute returns the attribute of tile, or 0 when the tile is outside the
// attribute table.
func (m *MapInfo) Attribute(tile int) uint8 {
	data, _ := m.assets.Attributes(m.pxa)
	attr, ok := attribute(data, tile)
	if !ok {
		m.logger.Warn("Tile outside attribute table", "tile", tile, "pxaLen", len(data))
	}
	return attr
}

func attribute(data []byte, tile int) (uint8, bool) {
	if tile < 0 || tile >= len(data) {
		return 0, false
	}
	return data[tile], true
}

func (m *MapInfo) Source() Source { return m.source }

// Width returns the map width in tiles.
func (m *MapInfo) Width() int { return m.width }

// Height returns the map height in tiles.
func (m *MapInfo) Height() int { return m.height }

// Tile returns the tile at x, y on layer l. Empty cells hold 0.
func (m *MapInfo) Tile(l Layer, x, y int) uint8 {
	return m.layers[l][y][x]
}

// Grid returns layer l indexed [y][x]. The caller must not modify it.
func (m *MapInfo) Grid(l Layer) [][]uint8 {
	return m.layers[l]
}

func (m *MapInfo) TilesetPath() string    { return m.tileset }
func (m *MapInfo) BackgroundPath() string { return m.background }
func (m *MapInfo) NPCSheet1Path() string  { return m.npcSheet1 }
func (m *MapInfo) NPCSheet2Path() string  { return m.npcSheet2 }
func (m *MapInfo) AttributesPath() string { return m.pxa }

// Entities returns the decoded entities. ok is false when entity loading was
// disabled or the entity file could not be decoded.
func (m *MapInfo) Entities() (entities []Entry, ok bool) {
	return m.entities, m.entitiesLoaded
}

func (m *MapInfo) missing() []bool {
	absent := func(path string) bool {
		_, ok := m.assets.Image(path)
		return !ok
	}
	npc := m.layout.LoadEntities
	return []bool{
		absent(m.tileset),
		absent(m.background),
		npc && absent(m.npcSheet1),
		npc && absent(m.npcSheet2),
		npc && !m.entitiesLoaded,
	}
}

var assetNames = []string{"tileset", "background image", "NPC sheet 1", "NPC sheet 2", "PXE file"}

// HasMissingAssets reports whether any image, or the entity list when
// entities are enabled, could not be loaded.
func (m *MapInfo) HasMissingAssets() bool {
	for _, miss := range m.missing() {
		if miss {
			return true
		}
	}
	return false
}

// MissingAssets lists the missing assets for display, e.g.
// "Tileset, NPC sheet 2". It is empty when nothing is missing.
func (m *MapInfo) MissingAssets() string {
	var names []string
	for i, miss := range m.missing() {
		if miss {
			names = append(names, assetNames[i])
		}
	}
	s := strings.Join(names, ", ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Entry is one placed entity.
type Entry struct {
	X      uint16
	Y      uint16
	FlagID uint16
	Event  uint16
	Type   uint16
	Flags  uint16
	Info   core.EntityType
}

// EffectiveFlags combines the entity's own flags with its type's defaults,
// which is what the game checks at runtime.
func (e Entry) EffectiveFlags() uint16 {
	return e.Flags | e.Info.Flags
}

// DrawArea returns where the entity is drawn, in pixels at 2x scale. The
// sprite is centred on its tile using the type's display extents.
func (e Entry) DrawArea() core.Area {
	d := e.Info.Display
	return core.Area{
		X:      int(e.X)*32 - d.Left*2,
		Y:      int(e.Y)*32 - d.Up*2,
		Width:  (d.Left + d.Right) * 2,
		Height: (d.Up + d.Down) * 2,
	}
}
