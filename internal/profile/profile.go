// Package profile holds the save file formats: the field and method
// registry, the Normal and Plus variants, and load/save with backup recovery.
package profile

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
)

// State tracks whether the buffer holds unsaved changes.
type State int

const (
	Unloaded State = iota
	Clean
	Modified
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Clean:
		return "clean"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Variant identifies a save format.
type Variant int

const (
	VariantNormal Variant = iota
	VariantPlus
)

func (v Variant) String() string {
	if v == VariantPlus {
		return "plus"
	}
	return "normal"
}

// Header strings written into every fresh slot.
const (
	DefaultHeader     = "Do041220"
	DefaultFlagHeader = "FLAG"
)

// StartPoint is where a newly created save places the player.
type StartPoint struct {
	Map       uint32
	Song      uint32
	X         uint32 // tiles
	Y         uint32 // tiles
	Direction uint32
	Health    uint16
	MaxHealth uint16
}

// DefaultStartPoint is the game's own new-game position.
var DefaultStartPoint = StartPoint{
	Map:       13,
	X:         10,
	Y:         8,
	Direction: 2,
	Health:    3,
	MaxHealth: 3,
}

// Options configures a profile instance.
type Options struct {
	Fs           afero.Fs
	Logger       *slog.Logger
	BackupSuffix string
	Header       string
	FlagHeader   string
	Start        StartPoint
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.BackupSuffix == "" {
		o.BackupSuffix = ".bkp"
	}
	if o.Header == "" {
		o.Header = DefaultHeader
	}
	if o.FlagHeader == "" {
		o.FlagHeader = DefaultFlagHeader
	}
	if o.Start == (StartPoint{}) {
		o.Start = DefaultStartPoint
	}
	return o
}

// Profile is a loaded save file addressed through its registry.
type Profile interface {
	Variant() Variant
	Registry() *Registry
	Data() []byte
	Section() int
	State() State
	Path() string
	Header() string
	FlagHeader() string

	GetField(name string, index int) (any, error)
	SetField(name string, index int, value any) error
	CallMethod(rec *Recorder, name string, args ...any) (any, error)

	Snapshot() Snapshot
	Restore(Snapshot)

	Init()
	Load(path string) error
	Save(path string) error
}

// Snapshot is a copy of the mutable profile state.
type Snapshot struct {
	data    []byte
	section int
	stack   []int
	state   State
}

// base implements the registry-facing half of Profile shared by both variants.
type base struct {
	variant    Variant
	reg        *Registry
	data       []byte
	section    int
	stack      []int
	state      State
	path       string
	header     string
	flagHeader string
	opts       Options
	log        *slog.Logger
}

func newBase(variant Variant, reg *Registry, opts Options) base {
	opts = opts.withDefaults()
	return base{
		variant:    variant,
		reg:        reg,
		data:       make([]byte, reg.Length()),
		header:     opts.Header,
		flagHeader: opts.FlagHeader,
		opts:       opts,
		log:        opts.Logger.With("variant", variant.String()),
	}
}

func (b *base) Variant() Variant { return b.variant }
func (b *base) Registry() *Registry { return b.reg }
func (b *base) Data() []byte { return b.data }
func (b *base) Section() int { return b.section }
func (b *base) State() State { return b.state }
func (b *base) Path() string { return b.path }
func (b *base) Header() string { return b.header }
func (b *base) FlagHeader() string { return b.flagHeader }
func (b *base) view() View { return b.viewAt(b.section) }
func (b *base) viewAt(sec int) View { return View{Data: b.data, Section: sec, Correct: b.reg.correct} }
func (b *base) markModified() { b.state = Modified }

// GetField reads name[index] under the current section.
func (b *base) GetField(name string, index int) (any, error) {
	f, ok := b.reg.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	if !f.ValidIndex(index) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrInvalidIndex, name, index)
	}
	return f.read(b.view(), index), nil
}

// SetField writes name[index] under the current section and marks the
// profile modified.
func (b *base) SetField(name string, index int, value any) error {
	f, ok := b.reg.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	if !f.ValidIndex(index) {
		return fmt.Errorf("%w: %s[%d]", ErrInvalidIndex, name, index)
	}
	v, ok := f.accept(index, value)
	if !ok {
		return fmt.Errorf("%w: %s[%d] = %v (%T)", ErrInvalidValue, name, index, value, value)
	}
	f.write(b.view(), index, v)
	b.markModified()
	return nil
}

// CallMethod converts args and runs the named method body.
func (b *base) CallMethod(rec *Recorder, name string, args ...any) (any, error) {
	m, ok := b.reg.Method(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	conv, ok := m.convertArgs(args)
	if !ok {
		return nil, fmt.Errorf("%w: %s takes %v, got %v", ErrArgMismatch, name, m.Args, args)
	}
	if rec == nil {
		rec = NewRecorder()
	}
	return m.Body(rec, conv)
}

// Snapshot copies the buffer and section state.
func (b *base) Snapshot() Snapshot {
	return Snapshot{
		data:    append([]byte(nil), b.data...),
		section: b.section,
		stack:   append([]int(nil), b.stack...),
		state:   b.state,
	}
}

// Restore puts back a snapshot taken from this profile.
func (b *base) Restore(s Snapshot) {
	copy(b.data, s.data)
	b.section = s.section
	b.stack = append(b.stack[:0], s.stack...)
	b.state = s.state
}

// writeTemplate blanks one slot starting at off and writes its headers.
func (b *base) writeTemplate(off, length int) {
	clear(b.data[off : off+length])
	copy(b.data[off:off+headerLength], b.header)
	copy(b.data[off+flagHeaderOffset:off+flagHeaderOffset+flagHeaderLength], b.flagHeader)
}

// applyStart writes the configured start point under the current section.
func (b *base) applyStart() error {
	s := b.opts.Start
	const unitsPerTile = 16 * 0x200
	writes := []struct {
		name  string
		value any
	}{
		{FieldMap, s.Map},
		{FieldSong, s.Song},
		{FieldPositionX, s.X * unitsPerTile},
		{FieldPositionY, s.Y * unitsPerTile},
		{FieldDirection, s.Direction},
		{FieldMaxHealth, s.MaxHealth},
		{FieldCurrentHealth, s.Health},
	}
	for _, w := range writes {
		if err := b.SetField(w.name, NoIndex, w.value); err != nil {
			return err
		}
	}
	return nil
}
