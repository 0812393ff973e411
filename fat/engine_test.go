package fat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatdisko/blockio"
	"github.com/dargueta/fatdisko/fat"
)

func TestEngine__GetSetFAT12StraddlesNibble(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 1440*1024/512)
	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type12})
	require.NoError(t, err)

	// Consecutive odd/even clusters exercise FAT12's nibble-straddling
	// pack in both directions.
	for _, cluster := range []fat.ClusterID{2, 3, 4, 5, 100, 101} {
		require.NoError(t, eng.Set(cluster, 0xABC))
	}
	for _, cluster := range []fat.ClusterID{2, 3, 4, 5, 100, 101} {
		got, err := eng.Get(cluster)
		require.NoError(t, err)
		require.EqualValues(t, 0xABC, got)
	}
}

func TestEngine__AllocateOneThenFreeBumpsGeneration(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 1440*1024/512)
	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type12})
	require.NoError(t, err)

	before := eng.Generation()
	cluster, err := eng.AllocateOne()
	require.NoError(t, err)
	require.True(t, eng.IsValidCluster(cluster))

	require.NoError(t, eng.FreeChain(cluster))
	require.Greater(t, eng.Generation(), before)

	entry, err := eng.Get(cluster)
	require.NoError(t, err)
	require.EqualValues(t, 0, entry, "freed cluster must read back as unallocated")
}

func TestEngine__ListChainFollowsLinks(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 1440*1024/512)
	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type12})
	require.NoError(t, err)

	head, err := eng.AllocateOne()
	require.NoError(t, err)
	second, err := eng.Extend(head)
	require.NoError(t, err)
	third, err := eng.Extend(second)
	require.NoError(t, err)

	chain, err := eng.ListChain(head)
	require.NoError(t, err)
	require.Equal(t, []fat.ClusterID{head, second, third}, chain)
}

func TestEngine__TruncateChainFreesTail(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 1440*1024/512)
	eng, err := fat.Format(storage, fat.FormatVolumeOptions{Type: fat.Type12})
	require.NoError(t, err)

	head, err := eng.AllocateOne()
	require.NoError(t, err)
	second, err := eng.Extend(head)
	require.NoError(t, err)
	third, err := eng.Extend(second)
	require.NoError(t, err)

	require.NoError(t, eng.TruncateChain(head, 2))

	chain, err := eng.ListChain(head)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	entry, err := eng.Get(third)
	require.NoError(t, err)
	require.EqualValues(t, 0, entry, "truncated tail cluster must read back as free")
}
