package profile

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Open loads path into a profile of the variant its size indicates.
func Open(path string, opts Options) (Profile, error) {
	opts = opts.withDefaults()
	info, err := opts.Fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening profile: %w", err)
	}

	variant := VariantNormal
	if info.Size() == PlusLength {
		variant = VariantPlus
	}
	p, err := construct(variant, opts)
	if err != nil {
		return nil, err
	}
	if err := p.Load(path); err != nil {
		return nil, err
	}
	return p, nil
}

// New creates a fresh profile of the given variant.
func New(variant Variant, opts Options) (Profile, error) {
	p, err := construct(variant, opts)
	if err != nil {
		return nil, err
	}
	p.Init()
	return p, nil
}

func construct(variant Variant, opts Options) (Profile, error) {
	switch variant {
	case VariantPlus:
		return NewPlus(opts)
	case VariantNormal:
		return NewNormal(opts)
	default:
		return nil, fmt.Errorf("unknown profile variant %d", variant)
	}
}

// readFile fills the buffer from path. A file shorter than the buffer fails
// with ErrTruncatedFile and leaves the buffer untouched.
func (b *base) readFile(path string) error {
	f, err := b.opts.Fs.Open(path)
	if err != nil {
		return fmt.Errorf("opening profile: %w", err)
	}
	defer f.Close()

	data := make([]byte, len(b.data))
	if _, err := io.ReadFull(f, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: %w", ErrTruncatedFile, path, err)
		}
		return fmt.Errorf("reading profile: %w", err)
	}

	copy(b.data, data)
	b.section = 0
	b.stack = b.stack[:0]
	b.path = path
	b.state = Clean
	b.log.Info("Loaded profile", "path", path, "bytes", len(data))
	return nil
}

// writeFile saves the buffer to path. An existing file is first copied to a
// sibling backup; if the write then fails the backup is copied back. Recovery
// is logged, not returned, and the profile stays modified.
func (b *base) writeFile(path string) error {
	fs := b.opts.Fs

	backup := ""
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("checking profile: %w", err)
	}
	if exists {
		backup = path + b.opts.BackupSuffix
		if err := copyFile(fs, path, backup); err != nil {
			return fmt.Errorf("backing up profile: %w", err)
		}
	}

	if err := afero.WriteFile(fs, path, b.data, 0o644); err != nil {
		b.log.Error("Error while saving profile", "path", path, "error", err)
		if backup == "" {
			return fmt.Errorf("writing profile: %w", err)
		}
		b.log.Warn("Attempting to restore from backup", "backup", backup)
		if rerr := copyFile(fs, backup, path); rerr != nil {
			b.log.Error("Error while recovering backup", "backup", backup, "error", rerr)
		} else {
			b.log.Info("Restored profile from backup", "backup", backup)
		}
		return nil
	}

	b.path = path
	b.state = Clean
	b.log.Info("Saved profile", "path", path, "backup", backup)
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, data, 0o644)
}
