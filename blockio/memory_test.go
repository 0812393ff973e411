package blockio_test

import (
	"testing"

	"github.com/dargueta/fatdisko/blockio"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_WriteThenRead(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 4)

	data := make([]byte, 512)
	for i := range data {
		data[i] = 0x42
	}
	require.NoError(t, storage.WriteBlocks(1, data))

	out := make([]byte, 512)
	require.NoError(t, storage.ReadBlocks(1, out))
	require.Equal(t, data, out)
}

func TestMemoryStorage_PartialSectorWritePadded(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 2)
	require.NoError(t, storage.WriteBlocks(0, []byte{1, 2, 3}))

	out := make([]byte, 512)
	require.NoError(t, storage.ReadBlocks(0, out))
	require.Equal(t, byte(1), out[0])
	require.Equal(t, byte(0), out[3], "remainder of the sector must be zero-padded")
}

func TestMemoryStorage_OutOfBounds(t *testing.T) {
	storage := blockio.NewBlankMemoryStorage(512, 2)
	err := storage.ReadBlocks(2, make([]byte, 512))
	require.Error(t, err)
}
