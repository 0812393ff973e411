package fat

import (
	"encoding/binary"
	"strings"

	"github.com/dargueta/fatdisko"
)

// Attribute flags occupying byte 11 of a raw 32-byte directory entry.
// AttrLongName marks a directory entry as an LFN piece rather than an
// SFN entry; the four bits it sets in combination (read-only, hidden,
// system, volume-ID) never occur together on a real SFN entry, which is
// how a reader tells the two apart.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// DirentSize is the fixed size in bytes of every directory slot, SFN or
// LFN piece alike.
const DirentSize = 32

// Special values of the first name byte of a raw directory entry.
const (
	direntFreeMarker    = 0x00 // this entry and all following it are free
	direntDeletedMarker = 0xE5 // this entry is free but later ones may not be
	direntKanjiE5       = 0x05 // real first byte is 0xE5 (Japanese OEM quirk)
)

// RawDirent is the on-disk layout of one 32-byte SFN directory entry.
// Grounded on the teacher's file_systems/fat/dirent.go RawDirent, trimmed
// to the fields this engine actually round-trips and extended with an
// Encode method the teacher never wrote (its Name() doc comment carries
// a literal "TODO: Implement LFN support" marking the gap lfn.go
// fills).
type RawDirent struct {
	Name             [8]byte
	Ext              [3]byte
	Attr             uint8
	NTReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

// DecodeRawDirent parses a 32-byte slice into a RawDirent.
func DecodeRawDirent(data []byte) RawDirent {
	var d RawDirent
	copy(d.Name[:], data[0:8])
	copy(d.Ext[:], data[8:11])
	d.Attr = data[11]
	d.NTReserved = data[12]
	d.CreateTimeTenths = data[13]
	d.CreateTime = binary.LittleEndian.Uint16(data[14:16])
	d.CreateDate = binary.LittleEndian.Uint16(data[16:18])
	d.LastAccessDate = binary.LittleEndian.Uint16(data[18:20])
	d.FirstClusterHigh = binary.LittleEndian.Uint16(data[20:22])
	d.WriteTime = binary.LittleEndian.Uint16(data[22:24])
	d.WriteDate = binary.LittleEndian.Uint16(data[24:26])
	d.FirstClusterLow = binary.LittleEndian.Uint16(data[26:28])
	d.FileSize = binary.LittleEndian.Uint32(data[28:32])
	return d
}

// Encode serializes d into a 32-byte slice suitable for writing back to
// the directory region.
func (d RawDirent) Encode() [DirentSize]byte {
	var out [DirentSize]byte
	copy(out[0:8], d.Name[:])
	copy(out[8:11], d.Ext[:])
	out[11] = d.Attr
	out[12] = d.NTReserved
	out[13] = d.CreateTimeTenths
	binary.LittleEndian.PutUint16(out[14:16], d.CreateTime)
	binary.LittleEndian.PutUint16(out[16:18], d.CreateDate)
	binary.LittleEndian.PutUint16(out[18:20], d.LastAccessDate)
	binary.LittleEndian.PutUint16(out[20:22], d.FirstClusterHigh)
	binary.LittleEndian.PutUint16(out[22:24], d.WriteTime)
	binary.LittleEndian.PutUint16(out[24:26], d.WriteDate)
	binary.LittleEndian.PutUint16(out[26:28], d.FirstClusterLow)
	binary.LittleEndian.PutUint32(out[28:32], d.FileSize)
	return out
}

// IsFree reports whether this slot (and, per the free-marker convention,
// every slot after it in the same directory) has never held an entry.
func (d RawDirent) IsFree() bool { return d.Name[0] == direntFreeMarker }

// IsDeleted reports whether this slot held an entry that has since been
// removed. Unlike IsFree, a deleted slot does not imply the entries
// after it are free.
func (d RawDirent) IsDeleted() bool { return d.Name[0] == direntDeletedMarker }

// IsLongNamePiece reports whether this slot is an LFN piece rather than
// an SFN entry.
func (d RawDirent) IsLongNamePiece() bool { return d.Attr&AttrLongName == AttrLongName }

// IsVolumeLabel reports whether this slot carries the volume label
// rather than a file or directory.
func (d RawDirent) IsVolumeLabel() bool {
	return !d.IsLongNamePiece() && d.Attr&AttrVolumeID != 0
}

// FirstCluster reassembles the split cluster-number fields. FirstClusterHigh
// is always 0 on FAT12/16, where there's no field to store it.
func (d RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(d.FirstClusterHigh)<<16 | uint32(d.FirstClusterLow))
}

// SetFirstCluster splits cluster back into the two on-disk fields.
func (d *RawDirent) SetFirstCluster(cluster ClusterID) {
	d.FirstClusterHigh = uint16(uint32(cluster) >> 16)
	d.FirstClusterLow = uint16(uint32(cluster) & 0xFFFF)
}

// sfnChecksum computes the 8-bit rotating checksum over the 11-byte
// packed name+extension field that every LFN piece belonging to this
// SFN entry must match, per spec (and the FAT LFN convention it's
// grounded on -- the teacher repo never implemented LFN, so this has no
// direct teacher analog).
func sfnChecksum(nameAndExt [11]byte) uint8 {
	var sum uint8
	for _, b := range nameAndExt {
		sum = (sum>>1 | sum<<7) + b
	}
	return sum
}

// packedNameExt returns the combined 11-byte Name+Ext field, the input
// to sfnChecksum.
func (d RawDirent) packedNameExt() [11]byte {
	var out [11]byte
	copy(out[0:8], d.Name[:])
	copy(out[8:11], d.Ext[:])
	return out
}

// Checksum returns the checksum any LFN piece chain for this SFN entry
// must match.
func (d RawDirent) Checksum() uint8 { return sfnChecksum(d.packedNameExt()) }

// formatShortName reassembles the on-disk 8.3 fields into a display
// string, handling the 0x05 Kanji-lead-byte escape for a real leading
// 0xE5 byte and decoding bytes outside ASCII through oem.
func formatShortName(d RawDirent, oem fatdisko.OemCpConverter) string {
	nameBytes := d.Name
	if nameBytes[0] == direntKanjiE5 {
		nameBytes[0] = 0xE5
	}
	name := decodeOEMTrimmed(nameBytes[:], oem)
	ext := decodeOEMTrimmed(d.Ext[:], oem)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func decodeOEMTrimmed(b []byte, oem fatdisko.OemCpConverter) string {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	var sb strings.Builder
	for _, c := range b[:i] {
		sb.WriteRune(oem.DecodeOEM(c))
	}
	return sb.String()
}

// EncodeShortName packs a validated 8.3 name (already split and
// upper-cased by the caller, e.g. GenerateShortName) into the Name/Ext
// fields, space-padded, with the Kanji-lead-byte escape applied.
func EncodeShortName(base, ext string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	if out[0] == 0xE5 {
		out[0] = direntKanjiE5
	}
	return out
}
