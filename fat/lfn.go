package fat

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// lfnOrdinalLast marks the piece holding the end of the name (the one
// written first on disk, since pieces are stored in reverse ordinal
// order) as the final piece in logical stream order.
const lfnOrdinalLast = 0x40

// charsPerLFNPiece is the UTF-16 code unit capacity of one LFN entry,
// split across three runs (5 + 6 + 2).
const charsPerLFNPiece = 13

// lfnPadding is appended after a name's NUL terminator to pad a
// short trailing piece out to 13 units, per the FAT LFN convention.
const lfnPadding = 0xFFFF

// LfnPiece is one decoded 32-byte LFN directory entry.
type LfnPiece struct {
	Ordinal  uint8
	Chars    [charsPerLFNPiece]uint16
	Checksum uint8
	IsLast   bool
}

// sequenceNumber returns the piece's position in the name (1-based,
// counting from the piece nearest the SFN), stripping the "last piece"
// marker bit.
func (p LfnPiece) sequenceNumber() uint8 { return p.Ordinal &^ lfnOrdinalLast }

// decodeLFN parses a 32-byte LFN directory entry. The caller is
// responsible for having already verified the attribute byte is
// AttrLongName.
func decodeLFN(data []byte) LfnPiece {
	var p LfnPiece
	p.Ordinal = data[0]
	p.IsLast = data[0]&lfnOrdinalLast != 0

	idx := 0
	for i := 0; i < 5; i++ {
		p.Chars[idx] = binary.LittleEndian.Uint16(data[1+2*i : 3+2*i])
		idx++
	}
	for i := 0; i < 6; i++ {
		p.Chars[idx] = binary.LittleEndian.Uint16(data[14+2*i : 16+2*i])
		idx++
	}
	p.Checksum = data[13]
	for i := 0; i < 2; i++ {
		p.Chars[idx] = binary.LittleEndian.Uint16(data[28+2*i : 30+2*i])
		idx++
	}
	return p
}

// encodeLFN serializes ordinal, a run of up to 13 UTF-16 units (NUL- and
// 0xFFFF-padded by the caller, see splitLFNName), and the bound SFN's
// checksum into one 32-byte directory entry.
func encodeLFN(ordinal uint8, chars [charsPerLFNPiece]uint16, checksum uint8) [DirentSize]byte {
	var out [DirentSize]byte
	out[0] = ordinal
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(out[1+2*i:3+2*i], chars[i])
	}
	out[11] = AttrLongName
	out[12] = 0
	out[13] = checksum
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(out[14+2*i:16+2*i], chars[5+i])
	}
	binary.LittleEndian.PutUint16(out[26:28], 0) // first-cluster-low, always 0
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(out[28+2*i:30+2*i], chars[11+i])
	}
	return out
}

// splitLFNName breaks a UTF-16 encoded name into charsPerLFNPiece-sized
// runs, the last padded with a NUL terminator followed by 0xFFFF filler,
// ready to feed to encodeLFN in reverse piece order (last piece first).
func splitLFNName(name string) [][charsPerLFNPiece]uint16 {
	units := utf16.Encode([]rune(name))
	units = append(units, 0) // NUL terminator
	for len(units)%charsPerLFNPiece != 0 {
		units = append(units, lfnPadding)
	}

	pieces := make([][charsPerLFNPiece]uint16, len(units)/charsPerLFNPiece)
	for i := range pieces {
		copy(pieces[i][:], units[i*charsPerLFNPiece:(i+1)*charsPerLFNPiece])
	}
	return pieces
}

// EncodeLFNChain builds the full sequence of LFN directory entries for
// name, in on-disk order (the last logical piece first, carrying the
// lfnOrdinalLast bit, counting down to ordinal 1 immediately before the
// SFN entry). checksum is the bound SFN's Checksum().
func EncodeLFNChain(name string, checksum uint8) [][DirentSize]byte {
	pieces := splitLFNName(name)
	out := make([][DirentSize]byte, len(pieces))
	for i, chars := range pieces {
		ordinalFromStart := uint8(i + 1)
		diskIndex := len(pieces) - 1 - i
		ordinal := ordinalFromStart
		if i == len(pieces)-1 {
			ordinal |= lfnOrdinalLast
		}
		out[diskIndex] = encodeLFN(ordinal, chars, checksum)
	}
	return out
}

// assembleLFN reassembles a name from its on-disk ordered raw pieces
// (as encountered scanning forward, last-piece-first) and verifies every
// piece's checksum against sfnChecksumValue. It returns ok=false if the
// ordinals don't form a contiguous descending run starting from a
// last-piece marker, or if any checksum mismatches -- either case means
// the caller must fall back to the bare SFN.
func assembleLFN(rawPieces [][]byte, sfnChecksumValue uint8) (name string, ok bool) {
	if len(rawPieces) == 0 {
		return "", false
	}

	pieces := make([]LfnPiece, len(rawPieces))
	for i, raw := range rawPieces {
		pieces[i] = decodeLFN(raw)
	}

	if !pieces[0].IsLast {
		return "", false
	}
	expected := pieces[0].sequenceNumber()
	for _, p := range pieces {
		if p.sequenceNumber() != expected {
			return "", false
		}
		if p.Checksum != sfnChecksumValue {
			return "", false
		}
		expected--
	}
	if expected != 0 {
		return "", false
	}

	var units []uint16
	for i := len(pieces) - 1; i >= 0; i-- {
		units = append(units, pieces[i].Chars[:]...)
	}

	runes := utf16.Decode(units)
	name = string(runes)
	if i := strings.IndexRune(name, 0); i >= 0 {
		name = name[:i]
	}
	return name, true
}
