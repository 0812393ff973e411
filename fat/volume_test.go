package fat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/fat"
	"github.com/dargueta/fatdisko/fattest"
)

// TestVolume__CreateWriteReadTwoFiles exercises spec §8 scenario 1 (two
// files, written and reopened without corruption) across all three FAT
// flavors -- FAT16 and FAT32 were previously never exercised end-to-end,
// which is exactly why the FAT32 formatter bug (a 256MiB/10MiB volume
// formatted below the FAT16/32 cluster-count boundary) went uncaught.
func TestVolume__CreateWriteReadTwoFiles(t *testing.T) {
	volumes := map[string]func(*testing.T) *fat.Volume{
		"FAT12": fattest.NewFAT12Floppy,
		"FAT16": fattest.NewFAT16Volume,
		"FAT32": fattest.NewFAT32Volume,
	}

	for name, newVolume := range volumes {
		t.Run(name, func(t *testing.T) {
			vol := newVolume(t)

			f1, err := vol.CreateFile("ONE.TXT")
			require.NoError(t, err)
			_, err = f1.Write([]byte("first file contents"))
			require.NoError(t, err)
			require.NoError(t, f1.Close())

			f2, err := vol.CreateFile("TWO.TXT")
			require.NoError(t, err)
			_, err = f2.Write([]byte("second file, different contents"))
			require.NoError(t, err)
			require.NoError(t, f2.Close())

			got1, err := vol.OpenFile("ONE.TXT", fatdisko.O_RDONLY)
			require.NoError(t, err)
			require.Equal(t, "first file contents", string(fattest.ReadAll(t, got1)))

			got2, err := vol.OpenFile("TWO.TXT", fatdisko.O_RDONLY)
			require.NoError(t, err)
			require.Equal(t, "second file, different contents", string(fattest.ReadAll(t, got2)))
		})
	}
}

// TestVolume__FormatAndMount10MiBFAT32 is spec §8 scenario 1 at its
// letter-exact size: a 10MiB FAT32 volume must format and mount even
// though its cluster count falls well below the 65525-cluster FAT16/32
// boundary -- FAT32 is signaled by the BPB's extended-BPB presence, not
// re-derived from cluster count on mount.
func TestVolume__FormatAndMount10MiBFAT32(t *testing.T) {
	vol := fattest.NewFormattedVolume(t, 10*1024*1024, fat.FormatVolumeOptions{Type: fat.Type32})
	require.Equal(t, fat.Type32, vol.Engine().Type())

	f, err := vol.CreateFile("A.TXT")
	require.NoError(t, err)
	_, err = f.Write([]byte("Content from file A"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.CreateFile("B.TXT")
	require.NoError(t, err)
	_, err = f2.Write([]byte("Content from file B"))
	require.NoError(t, err)
	require.NoError(t, f2.Close())

	reopened, err := vol.OpenFile("A.TXT", fatdisko.O_RDONLY)
	require.NoError(t, err)
	require.Equal(t, "Content from file A", string(fattest.ReadAll(t, reopened)))
}

func TestVolume__TruncateToZeroThenRewrite(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)

	f, err := vol.CreateFile("DATA.BIN")
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 10000))
	require.NoError(t, err)
	require.NoError(t, f.TruncateToZero())
	require.EqualValues(t, 0, f.Size())

	_, err = f.Write([]byte("reborn"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := vol.OpenFile("DATA.BIN", fatdisko.O_RDONLY)
	require.NoError(t, err)
	require.Equal(t, "reborn", string(fattest.ReadAll(t, reopened)))
}

func TestVolume__WriteAcrossClusterBoundary(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)

	f, err := vol.CreateFile("BIG.BIN")
	require.NoError(t, err)

	bytesPerCluster := int(vol.Engine().BootSec.BytesPerCluster)
	payload := make([]byte, bytesPerCluster*2+37)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := vol.OpenFile("BIG.BIN", fatdisko.O_RDONLY)
	require.NoError(t, err)
	require.Equal(t, payload, fattest.ReadAll(t, reopened))
}

func TestVolume__LongFileNameRoundTripsAndRenames(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)

	longName := "a very long descriptive file name.txt"
	f, err := vol.CreateFile(longName)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := vol.Root().Iter(true)
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if e.Name == longName {
			found = true
		}
	}
	require.True(t, found, "long name should round-trip through the LFN chain")

	newName := "renamed long descriptive file name.txt"
	require.NoError(t, vol.Rename(longName, newName))

	_, err = vol.OpenFile(longName, fatdisko.O_RDONLY)
	require.Error(t, err, "old name must no longer resolve after rename")

	_, err = vol.OpenFile(newName, fatdisko.O_RDONLY)
	require.NoError(t, err)
}

func TestVolume__RenameToExistingTargetFails(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)

	_, err := vol.CreateFile("SRC.TXT")
	require.NoError(t, err)
	_, err = vol.CreateFile("DST.TXT")
	require.NoError(t, err)

	err = vol.Rename("SRC.TXT", "DST.TXT")
	require.Error(t, err)
}

func TestVolume__ReadOnlyMountRejectsMutation(t *testing.T) {
	storage, _ := fattest.NewFormattedStorage(t, 1440*1024, fat.FormatVolumeOptions{Type: fat.Type12})

	vol, err := fat.Mount(storage, fat.MountOptions{Flags: fatdisko.MountFlagsAllowRead})
	require.NoError(t, err)

	_, err = vol.CreateFile("NOPE.TXT")
	require.Error(t, err)
}

func TestVolume__GenerationCounterInvalidatesFreedCluster(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)
	eng := vol.Engine()

	f, err := vol.CreateFile("ONE.TXT")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	before := eng.Generation()
	require.NoError(t, vol.Remove("ONE.TXT"))
	after := eng.Generation()
	require.Greater(t, after, before, "freeing a chain must bump the generation counter")
}

