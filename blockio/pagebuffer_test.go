package blockio_test

import (
	"testing"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) blockio.BlockStorage {
	storage := blockio.NewBlankMemoryStorage(512, 8)
	return storage
}

func TestPageBuffer_LoadSamePageIsNoop(t *testing.T) {
	storage := newTestStorage(t)
	pb := blockio.NewPageBuffer(storage, 1)

	require.NoError(t, pb.Load(0))
	require.NoError(t, pb.Modify(func(data []byte) { data[0] = 0xAA }))
	require.NoError(t, pb.Load(0))

	require.True(t, pb.IsDirty(), "loading the same page must not discard the dirty modification")
}

func TestPageBuffer_DirtyConflict(t *testing.T) {
	storage := newTestStorage(t)
	pb := blockio.NewPageBuffer(storage, 1)

	require.NoError(t, pb.Load(0))
	require.NoError(t, pb.Modify(func(data []byte) { data[0] = 0xAA }))

	err := pb.Load(1)
	require.ErrorIs(t, err, fatdisko.ErrDirtyPageConflict)

	current, ok := pb.CurrentPage()
	require.True(t, ok)
	require.EqualValues(t, 0, current, "held page must be unchanged after a rejected load")
}

func TestPageBuffer_FlushThenLoadOtherPage(t *testing.T) {
	storage := newTestStorage(t)
	pb := blockio.NewPageBuffer(storage, 1)

	require.NoError(t, pb.Load(0))
	require.NoError(t, pb.Modify(func(data []byte) { data[0] = 0xAA }))
	require.NoError(t, pb.Flush())
	require.False(t, pb.IsDirty())

	require.NoError(t, pb.Load(1))
	current, _ := pb.CurrentPage()
	require.EqualValues(t, 1, current)
}

func TestPageBuffer_RoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	pb := blockio.NewPageBuffer(storage, 2)

	require.NoError(t, pb.Load(0))
	require.NoError(t, pb.Modify(func(data []byte) {
		for i := range data {
			data[i] = byte(i)
		}
	}))
	require.NoError(t, pb.Flush())
	pb.Clear()

	require.NoError(t, pb.Load(0))
	for i, b := range pb.Bytes() {
		require.EqualValues(t, byte(i), b)
	}
}

func TestPageBuffer_DirectIOInvalidatesOverlappingHeldPage(t *testing.T) {
	storage := newTestStorage(t)
	pb := blockio.NewPageBuffer(storage, 1)

	require.NoError(t, pb.Load(0))
	buf := make([]byte, 512)
	require.NoError(t, pb.ReadPagesDirect(0, buf))
	require.False(t, pb.HasPage(), "overlapping direct read must invalidate the held page")
}
