package fat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatdisko/blockio"
	"github.com/dargueta/fatdisko/fat"
)

func TestFormat__FAT12Floppy(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 1440*1024/512)

	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type12})
	require.NoError(t, err)
	require.Equal(t, fat.Type12, eng.Type())
	require.True(t, eng.BootSec.TotalClusters > 0)
}

func TestFormat__FAT16(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 32*1024*1024/512)

	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type16})
	require.NoError(t, err)
	require.Equal(t, fat.Type16, eng.Type())
}

func TestFormat__FAT32(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 256*1024*1024/512)

	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type32})
	require.NoError(t, err)
	require.Equal(t, fat.Type32, eng.Type())
	require.Equal(t, fat.ClusterID(2), eng.BootSec.RootCluster)

	// Root cluster must already be marked end-of-chain so the root
	// directory is immediately usable.
	entry, err := eng.Get(eng.BootSec.RootCluster)
	require.NoError(t, err)
	require.True(t, eng.Type().IsEndOfChain(entry))
}

func TestFormat__AutoSelectsTypeBySize(t *testing.T) {
	// A volume under 16MiB should come out FAT12 even without an
	// explicit Type in the options.
	storage := blockio.NewBlankMemoryStorage(512, 8*1024*1024/512)

	eng, err := fat.Format(storage, fat.FormatVolumeOptions{})
	require.NoError(t, err)
	require.Equal(t, fat.Type12, eng.Type())
}

func TestFormat__RejectsOversizedCluster(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 1440*1024/512)

	_, err := fat.Format(storage, fat.FormatVolumeOptions{
		Type:              fat.Type12,
		SectorsPerCluster: 128, // 64KiB clusters, over the 32KiB ceiling
	})
	require.Error(t, err)
}
