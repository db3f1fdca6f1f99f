package profile

// NormalLength is the size of a Profile.dat file.
const NormalLength = 0x604

const (
	headerLength     = 8
	flagHeaderOffset = 0x218
	flagHeaderLength = 4
)

// Field names shared by both variants.
const (
	FieldHeader         = "header"
	FieldMap            = "map"
	FieldSong           = "song"
	FieldPositionX      = "position_x"
	FieldPositionY      = "position_y"
	FieldDirection      = "direction"
	FieldMaxHealth      = "max_health"
	FieldStarCount      = "star_count"
	FieldCurrentHealth  = "current_health"
	FieldCurrentWeapon  = "current_weapon"
	FieldCurrentItem    = "current_item"
	FieldEquips         = "equips"
	FieldTimePlayed     = "time_played"
	FieldWeaponID       = "weapon_id"
	FieldWeaponLevel    = "weapon_level"
	FieldWeaponExp      = "weapon_exp"
	FieldWeaponMaxAmmo  = "weapon_max_ammo"
	FieldWeaponAmmo     = "weapon_ammo"
	FieldItem           = "item"
	FieldWarpID         = "warp_id"
	FieldWarpLocation   = "warp_location"
	FieldMapFlags       = "map_flags"
	FieldFlagHeader     = "flag_header"
	FieldFlags          = "flags"
)

const (
	WeaponSlots  = 8
	ItemSlots    = 32
	WarpSlots    = 8
	MapFlagCount = 128
	FlagCount    = 8000
	EquipCount   = 16

	weaponStride = 0x14
	warpStride   = 8
)

// normalFields is the field layout of one save slot.
func normalFields() []Field {
	return []Field{
		String(FieldHeader, 0x00, headerLength),
		Scalar(FieldMap, TypeU32, 0x08),
		Scalar(FieldSong, TypeU32, 0x0C),
		Scalar(FieldPositionX, TypeU32, 0x10),
		Scalar(FieldPositionY, TypeU32, 0x14),
		Scalar(FieldDirection, TypeU32, 0x18),
		Scalar(FieldMaxHealth, TypeU16, 0x1C),
		Scalar(FieldStarCount, TypeU16, 0x1E),
		Scalar(FieldCurrentHealth, TypeU16, 0x20),
		Scalar(FieldCurrentWeapon, TypeU32, 0x24),
		Scalar(FieldCurrentItem, TypeU32, 0x28),
		Bits(FieldEquips, 0x2C, EquipCount),
		Scalar(FieldTimePlayed, TypeU32, 0x34),
		Array(FieldWeaponID, TypeU32, 0x38, WeaponSlots, weaponStride),
		Array(FieldWeaponLevel, TypeU32, 0x3C, WeaponSlots, weaponStride),
		Array(FieldWeaponExp, TypeU32, 0x40, WeaponSlots, weaponStride),
		Array(FieldWeaponMaxAmmo, TypeU32, 0x44, WeaponSlots, weaponStride),
		Array(FieldWeaponAmmo, TypeU32, 0x48, WeaponSlots, weaponStride),
		Array(FieldItem, TypeU32, 0xD8, ItemSlots, 4),
		Array(FieldWarpID, TypeU32, 0x158, WarpSlots, warpStride),
		Array(FieldWarpLocation, TypeU32, 0x15C, WarpSlots, warpStride),
		Array(FieldMapFlags, TypeBool, 0x198, MapFlagCount, 1),
		String(FieldFlagHeader, flagHeaderOffset, flagHeaderLength),
		Bits(FieldFlags, 0x21C, FlagCount),
	}
}

// Normal is the single-slot Profile.dat format.
type Normal struct {
	base
}

// NewNormal builds an unloaded Normal profile with its fields registered.
func NewNormal(opts Options) (*Normal, error) {
	reg := NewRegistry(NormalLength, 1, Direct)
	for _, f := range normalFields() {
		if err := reg.AddField(f); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return &Normal{base: newBase(VariantNormal, reg, opts)}, nil
}

// Init replaces the buffer with a fresh save at the configured start point.
func (p *Normal) Init() {
	p.writeTemplate(0, NormalLength)
	if err := p.applyStart(); err != nil {
		p.log.Error("Failed to apply start point", "error", err)
	}
	p.path = ""
	p.state = Clean
}

// Load reads a Profile.dat file.
func (p *Normal) Load(path string) error {
	if err := p.readFile(path); err != nil {
		return err
	}
	if h, _ := p.GetField(FieldHeader, NoIndex); h != p.header {
		p.log.Warn("Unexpected profile header", "path", path, "header", h)
	}
	return nil
}

// Save writes the buffer to path.
func (p *Normal) Save(path string) error {
	return p.writeFile(path)
}
