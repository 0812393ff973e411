// Package fattest provides shared test fixtures for the fat and blockio
// packages: an in-memory, freshly formatted volume, built the way the
// teacher's testing package turns a raw byte slice into a usable device
// (testing/images.go's bytesextra-backed stream) but starting from
// fat.Format instead of a checked-in compressed disk image, since this
// engine's own formatter is part of what's under test.
package fattest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
	"github.com/dargueta/fatdisko/fat"
)

const defaultBlockSize = 512

// NewFormattedStorage formats a blank in-memory device of totalBytes
// (rounded down to a whole block) and returns both the storage and the
// engine Format built over it.
func NewFormattedStorage(t *testing.T, totalBytes int64, opts fat.FormatVolumeOptions) (blockio.BlockStorage, *fat.Engine) {
	t.Helper()
	totalBlocks := uint32(totalBytes / defaultBlockSize)
	storage := blockio.NewBlankMemoryStorage(defaultBlockSize, totalBlocks)

	eng, err := fat.Format(storage, opts)
	require.NoError(t, err, "formatting test volume")
	return storage, eng
}

// NewFormattedVolume formats a blank in-memory device and mounts it
// read-write with a NullTimeProvider and LossyASCIIConverter, failing the
// test immediately on any error.
func NewFormattedVolume(t *testing.T, totalBytes int64, opts fat.FormatVolumeOptions) *fat.Volume {
	t.Helper()
	storage, _ := NewFormattedStorage(t, totalBytes, opts)

	vol, err := fat.Mount(storage, fat.MountOptions{
		Flags: fatdisko.MountFlagsAllowAll,
		Time:  fatdisko.NullTimeProvider{},
		Oem:   fatdisko.LossyASCIIConverter{},
	})
	require.NoError(t, err, "mounting test volume")
	return vol
}

// NewFAT12Floppy returns a freshly formatted 1.44MB FAT12 volume, the
// smallest and most common shape spec.md's own end-to-end scenarios
// exercise.
func NewFAT12Floppy(t *testing.T) *fat.Volume {
	t.Helper()
	return NewFormattedVolume(t, 1440*1024, fat.FormatVolumeOptions{Type: fat.Type12})
}

// NewFAT16Volume returns a freshly formatted 32MB FAT16 volume.
func NewFAT16Volume(t *testing.T) *fat.Volume {
	t.Helper()
	return NewFormattedVolume(t, 32*1024*1024, fat.FormatVolumeOptions{Type: fat.Type16})
}

// NewFAT32Volume returns a freshly formatted 256MB FAT32 volume.
func NewFAT32Volume(t *testing.T) *fat.Volume {
	t.Helper()
	return NewFormattedVolume(t, 256*1024*1024, fat.FormatVolumeOptions{Type: fat.Type32})
}

// ReadAll reads the whole of f from the start, the way the teacher's
// driver.getContentsOfObject reads a whole file to resolve a symlink
// target, here just to make assertions on file contents less tedious.
func ReadAll(t *testing.T, f *fat.File) []byte {
	t.Helper()
	_, err := f.Seek(0, 0)
	require.NoError(t, err)

	buf := make([]byte, f.Size())
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	require.Equal(t, len(buf), total, "short read")
	return buf
}
