package fat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatdisko"
)

func TestEncodeShortNameThenFormat__RoundTrips(t *testing.T) {
	packed := EncodeShortName("README", "TXT")
	d := RawDirent{Name: [8]byte{}, Ext: [3]byte{}}
	copy(d.Name[:], packed[0:8])
	copy(d.Ext[:], packed[8:11])

	require.Equal(t, "README.TXT", formatShortName(d, fatdisko.LossyASCIIConverter{}))
}

func TestEncodeShortName__AppliesKanjiLeadByteEscape(t *testing.T) {
	packed := EncodeShortName("\xE5ABCDE", "TXT")
	require.EqualValues(t, direntKanjiE5, packed[0])
}

func TestRawDirentEncodeDecode__RoundTrips(t *testing.T) {
	d := RawDirent{
		Attr:     AttrArchive,
		FileSize: 1234,
	}
	copy(d.Name[:], "FOO")
	copy(d.Ext[:], "BAR")
	d.SetFirstCluster(0xABCDE)

	encoded := d.Encode()
	got := DecodeRawDirent(encoded[:])

	require.Equal(t, d.FirstCluster(), got.FirstCluster())
	require.Equal(t, d.FileSize, got.FileSize)
	require.Equal(t, d.Attr, got.Attr)
}

func TestSfnChecksum__StableAcrossEqualInputs(t *testing.T) {
	packed := EncodeShortName("STABLE", "TXT")
	d := RawDirent{}
	copy(d.Name[:], packed[0:8])
	copy(d.Ext[:], packed[8:11])

	require.Equal(t, d.Checksum(), d.Checksum())
}
