package profile

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// failingFs truncates and half-writes the target file the first time it is
// opened for writing, then behaves normally.
type failingFs struct {
	afero.Fs
	target string
	failed bool
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || name != f.target || f.failed || flag&os.O_WRONLY == 0 {
		return file, err
	}
	f.failed = true
	return &failingFile{File: file}, nil
}

type failingFile struct {
	afero.File
}

func (f *failingFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, errDiskFull
}

func TestSave_CreatesBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	original := make([]byte, NormalLength)
	original[0x08] = 0x2A
	require.NoError(t, afero.WriteFile(fs, "Profile.dat", original, 0o644))

	p, err := NewNormal(Options{Fs: fs})
	require.NoError(t, err)
	p.Init()
	require.NoError(t, p.Save("Profile.dat"))

	backup, err := afero.ReadFile(fs, "Profile.dat.bkp")
	require.NoError(t, err)
	assert.Equal(t, original, backup)

	saved, err := afero.ReadFile(fs, "Profile.dat")
	require.NoError(t, err)
	assert.Equal(t, p.Data(), saved)
}

func TestSave_NoBackupForNewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	p, err := NewNormal(Options{Fs: fs, BackupSuffix: ".old"})
	require.NoError(t, err)
	p.Init()

	require.NoError(t, p.Save("Profile.dat"))
	exists, _ := afero.Exists(fs, "Profile.dat.old")
	assert.False(t, exists)
}

func TestSave_RestoresBackupOnFailedWrite(t *testing.T) {
	mem := afero.NewMemMapFs()
	original := make([]byte, PlusLength)
	copy(original, DefaultHeader)
	original[0x08] = 0x11
	require.NoError(t, afero.WriteFile(mem, "Profile.dat", original, 0o644))

	fs := &failingFs{Fs: mem, target: "Profile.dat"}
	p, err := NewPlus(Options{Fs: fs})
	require.NoError(t, err)
	require.NoError(t, p.Load("Profile.dat"))
	require.NoError(t, p.SetField(FieldMap, NoIndex, uint32(99)))

	err = p.Save("Profile.dat")
	require.NoError(t, err)
	assert.True(t, fs.failed)
	assert.Equal(t, Modified, p.State())

	restored, err := afero.ReadFile(mem, "Profile.dat")
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestSave_FailedWriteWithoutBackupReturnsError(t *testing.T) {
	fs := &failingFs{Fs: afero.NewMemMapFs(), target: "Profile.dat"}
	p, err := NewNormal(Options{Fs: fs})
	require.NoError(t, err)
	p.Init()

	err = p.Save("Profile.dat")
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, "", p.Path())
}
