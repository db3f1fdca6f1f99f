package mapinfo

import (
	"bytes"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/cavestory-tools/cse/internal/bytecodec"
	"github.com/cavestory-tools/cse/internal/cache"
	"github.com/cavestory-tools/cse/pkg/core"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type typeTable map[int]core.EntityType

func (t typeTable) EntityType(id int) (core.EntityType, bool) {
	et, ok := t[id]
	return et, ok
}

var types = typeTable{
	0:   {ID: 0},
	46:  {ID: 46, Flags: 0x0100, Display: core.Rect{Left: 8, Up: 8, Right: 8, Down: 8}},
	211: {ID: 211, Display: core.Rect{Left: 16, Up: 8, Right: 16, Down: 8}},
}

var cave = Source{
	FileName:   "Cave",
	Tileset:    "Cave",
	Background: "bkBlack",
	NPCSheet1:  "Cemet",
	NPCSheet2:  "Bat",
	Name:       "First Cave",
}

func pxm(width, height int, tiles []byte) []byte {
	data := []byte{'P', 'X', 'M', 0x10, 0, 0, 0, 0}
	bytecodec.WriteU16(data, 4, uint16(width))
	bytecodec.WriteU16(data, 6, uint16(height))
	return append(data, tiles...)
}

func pxe(entries ...Entry) []byte {
	data := make([]byte, pxeHeaderSize+len(entries)*pxeEntrySize)
	copy(data, "PXE\x00")
	bytecodec.WriteU16(data, 4, uint16(len(entries)))
	for i, e := range entries {
		bytecodec.WriteU16s(data, pxeHeaderSize+i*pxeEntrySize, []uint16{e.X, e.Y, e.FlagID, e.Event, e.Type, e.Flags})
	}
	return data
}

func bitmap(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

// stage writes a complete stage under /data. Callers remove or overwrite
// files to exercise failure paths.
func stage(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	write := func(path string, data []byte) {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/data", path), data, 0o644))
	}
	for _, img := range []string{"Stage/PrtCave.bmp", "bkBlack.bmp", "Npc/NpcCemet.bmp", "Npc/NpcBat.bmp"} {
		write(img, bitmap(t))
	}
	pxa := make([]byte, 256)
	pxa[3] = 0x41
	pxa[4] = 0x20
	write("Stage/Cave.pxa", pxa)
	write("Stage/Cave.pxm", pxm(3, 2, []byte{0, 3, 4, 1, 3, 0}))
	write("Stage/Cave.pxe", pxe(
		Entry{X: 5, Y: 6, FlagID: 100, Event: 200, Type: 46, Flags: 0x0001},
		Entry{X: 1, Y: 1, Type: 211},
	))
	return fs
}

func load(fs afero.Fs, layout Layout) *MapInfo {
	return Load(fs, cave, layout, cache.NewAssetCache(fs, quiet), types, quiet)
}

func TestLoad(t *testing.T) {
	m := load(stage(t), DefaultLayout("/data"))

	assert.Equal(t, 3, m.Width())
	assert.Equal(t, 2, m.Height())
	assert.Equal(t, [][]uint8{{0, 0, 4}, {1, 0, 0}}, m.Grid(Background))
	assert.Equal(t, [][]uint8{{0, 3, 0}, {0, 3, 0}}, m.Grid(Foreground))
	assert.Equal(t, uint8(3), m.Tile(Foreground, 1, 1))

	entities, ok := m.Entities()
	require.True(t, ok)
	require.Len(t, entities, 2)
	assert.Equal(t, uint16(200), entities[0].Event)
	assert.Equal(t, 46, entities[0].Info.ID)
	assert.Equal(t, uint16(0x0101), entities[0].EffectiveFlags())

	assert.False(t, m.HasMissingAssets())
	assert.Empty(t, m.MissingAssets())
	assert.Equal(t, filepath.Join("/data", "Stage", "PrtCave.bmp"), m.TilesetPath())
	assert.Equal(t, filepath.Join("/data", "Npc", "NpcBat.bmp"), m.NPCSheet2Path())
	assert.Equal(t, filepath.Join("/data", "Stage", "Cave.pxa"), m.AttributesPath())
	assert.Equal(t, "First Cave", m.Source().Name)
}

func TestLoad_AllZeroGridIsBackground(t *testing.T) {
	fs := stage(t)
	require.NoError(t, afero.WriteFile(fs, "/data/Stage/Cave.pxm", pxm(21, 16, make([]byte, 21*16)), 0o644))

	m := load(fs, DefaultLayout("/data"))

	require.Equal(t, 21, m.Width())
	require.Equal(t, 16, m.Height())
	for y := 0; y < 16; y++ {
		for x := 0; x < 21; x++ {
			assert.Equal(t, uint8(0), m.Tile(Background, x, y))
			assert.Equal(t, uint8(0), m.Tile(Foreground, x, y))
		}
	}
}

func TestLoad_TileFailuresUseDefaultGrid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"corrupted magic", append([]byte("PXN\x10\x03\x00\x02\x00"), 1, 1, 1, 1, 1, 1)},
		{"short header", []byte("PXM")},
		{"truncated tiles", pxm(3, 2, []byte{1, 2})},
		{"oversized header", pxm(0xFFFF, 0xFFFF, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := stage(t)
			require.NoError(t, afero.WriteFile(fs, "/data/Stage/Cave.pxm", tt.data, 0o644))

			m := load(fs, DefaultLayout("/data"))

			assert.Equal(t, DefaultWidth, m.Width())
			assert.Equal(t, DefaultHeight, m.Height())
			assert.Len(t, m.Grid(Background), DefaultHeight)
			assert.Len(t, m.Grid(Foreground)[0], DefaultWidth)
		})
	}

	fs := stage(t)
	require.NoError(t, fs.Remove("/data/Stage/Cave.pxm"))
	m := load(fs, DefaultLayout("/data"))
	assert.Equal(t, DefaultWidth, m.Width())
}

func TestReadTiles_BadMagic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "x.pxm", []byte("XXX\x00\x01\x00\x01\x00\x00"), 0o644))
	_, _, _, err := readTiles(fs, "x.pxm")
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestReadTiles_DimensionsExceedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "x.pxm", pxm(0xFFFF, 0xFFFF, []byte{1, 2, 3}), 0o644))
	_, _, tiles, err := readTiles(fs, "x.pxm")
	assert.Error(t, err)
	assert.Nil(t, tiles)
}

func TestLoad_MissingAttributesWarnsOnce(t *testing.T) {
	fs := stage(t)
	require.NoError(t, fs.Remove("/data/Stage/Cave.pxa"))
	require.NoError(t, fs.Remove("/data/Stage/Cave.pxm"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := Load(fs, cave, DefaultLayout("/data"), cache.NewAssetCache(fs, quiet), types, logger)

	assert.Equal(t, DefaultWidth*DefaultHeight, m.Width()*m.Height())
	assert.Equal(t, 1, strings.Count(buf.String(), "Tiles outside attribute table"))
	assert.Contains(t, buf.String(), "tiles=336")
	assert.NotContains(t, buf.String(), "Tile outside attribute table")
}

func TestAttribute(t *testing.T) {
	m := load(stage(t), DefaultLayout("/data"))

	assert.Equal(t, uint8(0x41), m.Attribute(3))
	assert.Equal(t, uint8(0), m.Attribute(256))
	assert.Equal(t, uint8(0), m.Attribute(-1))
}

func TestLoad_MissingEntityTypeDropsAllEntities(t *testing.T) {
	fs := stage(t)
	require.NoError(t, afero.WriteFile(fs, "/data/Stage/Cave.pxe", pxe(
		Entry{X: 1, Y: 1, Type: 46},
		Entry{X: 2, Y: 2, Type: 999},
	), 0o644))

	m := load(fs, DefaultLayout("/data"))

	entities, ok := m.Entities()
	assert.False(t, ok)
	assert.Nil(t, entities)
	assert.True(t, m.HasMissingAssets())
	assert.Equal(t, "PXE file", m.MissingAssets())
	assert.Equal(t, 3, m.Width(), "tiles still decode")
}

func TestLoad_EntityFileFailures(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{0, 0, 0}},
		{"count exceeds data", pxe(Entry{Type: 46})[:pxeHeaderSize+6]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := stage(t)
			require.NoError(t, afero.WriteFile(fs, "/data/Stage/Cave.pxe", tt.data, 0o644))
			_, ok := load(fs, DefaultLayout("/data")).Entities()
			assert.False(t, ok)
		})
	}
}

func TestLoad_EmptyEntityFile(t *testing.T) {
	fs := stage(t)
	require.NoError(t, afero.WriteFile(fs, "/data/Stage/Cave.pxe", pxe(), 0o644))

	entities, ok := load(fs, DefaultLayout("/data")).Entities()
	assert.True(t, ok)
	assert.Empty(t, entities)
}

func TestLoad_EntitiesDisabled(t *testing.T) {
	fs := stage(t)
	require.NoError(t, fs.Remove("/data/Npc/NpcBat.bmp"))
	require.NoError(t, fs.Remove("/data/Stage/Cave.pxe"))
	layout := DefaultLayout("/data")
	layout.LoadEntities = false

	m := load(fs, layout)

	_, ok := m.Entities()
	assert.False(t, ok)
	assert.Empty(t, m.NPCSheet1Path())
	assert.False(t, m.HasMissingAssets())
}

func TestMissingAssets(t *testing.T) {
	fs := stage(t)
	require.NoError(t, fs.Remove("/data/Stage/PrtCave.bmp"))
	require.NoError(t, fs.Remove("/data/Npc/NpcBat.bmp"))
	require.NoError(t, fs.Remove("/data/Stage/Cave.pxe"))

	m := load(fs, DefaultLayout("/data"))

	assert.True(t, m.HasMissingAssets())
	assert.Equal(t, "Tileset, NPC sheet 2, PXE file", m.MissingAssets())
}

func TestEntry_DrawArea(t *testing.T) {
	e := Entry{X: 5, Y: 6, Info: core.EntityType{Display: core.Rect{Left: 16, Up: 8, Right: 16, Down: 8}}}

	assert.Equal(t, core.Area{X: 5*32 - 32, Y: 6*32 - 16, Width: 64, Height: 32}, e.DrawArea())
}
