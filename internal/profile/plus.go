package profile

import (
	"fmt"

	"github.com/cavestory-tools/cse/internal/bytecodec"
)

// Plus format geometry. Six save slots are followed by a tail holding options
// shared by every slot.
const (
	SectionLength = 0x620
	SectionCount  = 6
	PlusLength    = 0x20020

	tailStart = SectionCount * SectionLength
)

// Fields only present in the Plus format.
const (
	FieldModifyDate     = "modify_date"
	FieldDifficulty     = "difficulty"
	FieldUsedSlots      = "used_slots"
	FieldMusicVolume    = "music_volume"
	FieldSoundVolume    = "sound_volume"
	FieldSoundtrackType = "soundtrack_type"
	FieldGraphicsStyle  = "graphics_style"
	FieldLanguage       = "language"
	FieldBeatHell       = "beat_hell"
	FieldBestHellTime   = "best_hell_time"
	FieldJukeboxUnlock  = "jukebox_unlock"
	FieldBestModTimes   = "best_mod_times"
)

// Slot lifecycle methods.
const (
	MethodActiveGet  = "file.active.get"
	MethodActiveSet  = "file.active.set"
	MethodActivePush = "file.active.push"
	MethodActivePop  = "file.active.pop"
	MethodExists     = "file.exists"
	MethodClone      = "file.clone"
	MethodNew        = "file.new"
	MethodDelete     = "file.delete"
)

// Slots 0-2 are the main story, 3-5 the secondary story. Each group keeps its
// used bits in its own byte of the tail.
const (
	usedSlotsPrimary   = 0x1F020
	usedSlotsSecondary = 0x1F021
	secondarySlotStart = 3
)

// PlusCorrect folds an offset into section. Offsets in the tail are left
// unchanged.
func PlusCorrect(offset, section int) int {
	if offset >= tailStart {
		return offset
	}
	return offset%SectionLength + section*SectionLength
}

func usedSlotBit(slot int) (offset, bit int) {
	if slot >= secondarySlotStart {
		return usedSlotsSecondary, slot - secondarySlotStart
	}
	return usedSlotsPrimary, slot
}

func plusFields() []Field {
	return []Field{
		Scalar(FieldModifyDate, TypeU64, 0x608),
		Scalar(FieldDifficulty, TypeU16, 0x610),
		Custom(FieldUsedSlots, TypeBool, SectionCount,
			func(v View, index int) any {
				off, bit := usedSlotBit(index)
				return bytecodec.ReadFlag(v.Data, v.Addr(off), bit)
			},
			func(v View, index int, value any) {
				off, bit := usedSlotBit(index)
				bytecodec.WriteFlag(v.Data, v.Addr(off), bit, value.(bool))
			}),
		Scalar(FieldMusicVolume, TypeU32, 0x1F040),
		Scalar(FieldSoundVolume, TypeU32, 0x1F044),
		Scalar(FieldSoundtrackType, TypeU8, 0x1F049),
		Scalar(FieldGraphicsStyle, TypeU8, 0x1F04A),
		Scalar(FieldLanguage, TypeU8, 0x1F04B),
		Scalar(FieldBeatHell, TypeBool, 0x1F04C),
		Scalar(FieldBestHellTime, TypeU32, 0x1F054),
		Scalar(FieldJukeboxUnlock, TypeBool, 0x1F05B),
		Array(FieldBestModTimes, TypeU32, 0x1F05C, 6, 4),
	}
}

// Plus is the six-slot format. Field offsets resolve into the active slot;
// only the slot lifecycle methods change which slot that is.
type Plus struct {
	base
}

// NewPlus builds an unloaded Plus profile with its fields and methods
// registered.
func NewPlus(opts Options) (*Plus, error) {
	reg := NewRegistry(PlusLength, SectionCount, PlusCorrect)
	p := &Plus{}
	for _, f := range append(normalFields(), plusFields()...) {
		if err := reg.AddField(f); err != nil {
			return nil, err
		}
	}
	for _, m := range p.methods() {
		if err := reg.AddMethod(m); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	p.base = newBase(VariantPlus, reg, opts)
	return p, nil
}

func (p *Plus) methods() []Method {
	slot := []ValueType{TypeU8}
	return []Method{
		{
			Name:    MethodActiveGet,
			Returns: TypeU8,
			Body: func(_ *Recorder, _ []any) (any, error) {
				return uint8(p.section), nil
			},
		},
		{
			Name: MethodActiveSet,
			Args: slot,
			Body: func(rec *Recorder, args []any) (any, error) {
				n, err := checkSlot(args[0])
				if err != nil {
					return nil, err
				}
				old := p.section
				p.section = n
				rec.Replaced(old, n)
				return nil, nil
			},
		},
		{
			Name: MethodActivePush,
			Args: slot,
			Body: func(_ *Recorder, args []any) (any, error) {
				n, err := checkSlot(args[0])
				if err != nil {
					return nil, err
				}
				p.push(n)
				return nil, nil
			},
		},
		{
			Name:    MethodActivePop,
			Returns: TypeU8,
			Body: func(_ *Recorder, _ []any) (any, error) {
				if err := p.pop(); err != nil {
					return nil, err
				}
				return uint8(p.section), nil
			},
		},
		{
			Name:    MethodExists,
			Args:    slot,
			Returns: TypeBool,
			Body: func(_ *Recorder, args []any) (any, error) {
				n, err := checkSlot(args[0])
				if err != nil {
					return nil, err
				}
				return p.Exists(n), nil
			},
		},
		{
			Name: MethodClone,
			Args: []ValueType{TypeU8, TypeU8},
			Body: func(rec *Recorder, args []any) (any, error) {
				src, err := checkSlot(args[0])
				if err != nil {
					return nil, err
				}
				dst, err := checkSlot(args[1])
				if err != nil {
					return nil, err
				}
				if err := p.clone(src, dst); err != nil {
					return nil, err
				}
				rec.Replaced(nil, nil)
				return nil, nil
			},
		},
		{
			Name: MethodNew,
			Args: slot,
			Body: func(rec *Recorder, args []any) (any, error) {
				n, err := checkSlot(args[0])
				if err != nil {
					return nil, err
				}
				if err := p.newSlot(n); err != nil {
					return nil, err
				}
				rec.Replaced(nil, nil)
				return nil, nil
			},
		},
		{
			Name: MethodDelete,
			Args: slot,
			Body: func(rec *Recorder, args []any) (any, error) {
				n, err := checkSlot(args[0])
				if err != nil {
					return nil, err
				}
				if err := p.deleteSlot(n); err != nil {
					return nil, err
				}
				rec.Replaced(nil, nil)
				return nil, nil
			},
		},
	}
}

func checkSlot(v any) (int, error) {
	n := AsInt(v)
	if n < 0 || n >= SectionCount {
		return 0, fmt.Errorf("%w: slot %d", ErrInvalidValue, n)
	}
	return n, nil
}

// Exists reports whether slot holds a save.
func (p *Plus) Exists(slot int) bool {
	off, bit := usedSlotBit(slot)
	return bytecodec.ReadFlag(p.data, off, bit)
}

func (p *Plus) push(slot int) {
	p.stack = append(p.stack, p.section)
	p.section = slot
}

func (p *Plus) pop() error {
	if len(p.stack) == 0 {
		return ErrEmptySlotStack
	}
	last := len(p.stack) - 1
	p.section = p.stack[last]
	p.stack = p.stack[:last]
	return nil
}

// within runs fn with slot active and restores the previous slot afterwards.
func (p *Plus) within(slot int, fn func() error) error {
	p.push(slot)
	err := fn()
	if perr := p.pop(); perr != nil && err == nil {
		err = perr
	}
	return err
}

func (p *Plus) clone(src, dst int) error {
	copy(p.data[dst*SectionLength:(dst+1)*SectionLength], p.data[src*SectionLength:(src+1)*SectionLength])
	if dst >= secondarySlotStart {
		err := p.within(dst, func() error {
			return p.SetField(FieldDifficulty, NoIndex, uint16(0))
		})
		if err != nil {
			return err
		}
	}
	return p.SetField(FieldUsedSlots, dst, true)
}

func (p *Plus) newSlot(slot int) error {
	p.writeTemplate(slot*SectionLength, SectionLength)
	if err := p.SetField(FieldUsedSlots, slot, true); err != nil {
		return err
	}
	return p.within(slot, p.applyStart)
}

func (p *Plus) deleteSlot(slot int) error {
	clear(p.data[slot*SectionLength : (slot+1)*SectionLength])
	return p.SetField(FieldUsedSlots, slot, false)
}

// Init replaces the buffer with an empty file holding one fresh save in
// slot 0.
func (p *Plus) Init() {
	clear(p.data)
	p.section = 0
	p.stack = p.stack[:0]
	if err := p.newSlot(0); err != nil {
		p.log.Error("Failed to create initial slot", "error", err)
	}
	p.path = ""
	p.state = Clean
}

// Load reads a plus profile file.
func (p *Plus) Load(path string) error {
	return p.readFile(path)
}

// Save writes the buffer to path.
func (p *Plus) Save(path string) error {
	return p.writeFile(path)
}
