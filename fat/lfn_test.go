package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitLFNName__PadsToMultipleOf13(t *testing.T) {
	pieces := splitLFNName("short.txt")
	require.Len(t, pieces, 1)

	// "short.txt" is 9 units + NUL terminator = 10, padded with 0xFFFF
	// up to 13.
	require.EqualValues(t, 0, pieces[0][9])
	require.EqualValues(t, lfnPadding, pieces[0][10])
	require.EqualValues(t, lfnPadding, pieces[0][12])
}

func TestEncodeLFNChainThenAssemble__RoundTrips(t *testing.T) {
	const checksum = 0x42
	name := "a reasonably long file name.txt"

	chain := EncodeLFNChain(name, checksum)
	require.Greater(t, len(chain), 1, "name should need more than one LFN piece")

	raw := make([][]byte, len(chain))
	for i, piece := range chain {
		b := piece
		raw[i] = b[:]
	}

	got, ok := assembleLFN(raw, checksum)
	require.True(t, ok)
	require.Equal(t, name, got)
}

func TestAssembleLFN__RejectsChecksumMismatch(t *testing.T) {
	chain := EncodeLFNChain("mismatch.txt", 0x10)
	raw := make([][]byte, len(chain))
	for i, piece := range chain {
		b := piece
		raw[i] = b[:]
	}

	_, ok := assembleLFN(raw, 0x11)
	require.False(t, ok)
}

func TestAssembleLFN__RejectsNonDescendingOrdinals(t *testing.T) {
	chain := EncodeLFNChain("two pieces need to go here to pad it out.txt", 0x20)
	require.Greater(t, len(chain), 1)

	raw := make([][]byte, len(chain))
	for i, piece := range chain {
		b := piece
		raw[i] = b[:]
	}
	// Swap the first two on-disk pieces so the ordinals no longer descend.
	raw[0], raw[1] = raw[1], raw[0]

	_, ok := assembleLFN(raw, 0x20)
	require.False(t, ok)
}
