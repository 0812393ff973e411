// Package fat implements the FAT12/16/32 allocation table engine and the
// directory/file object layer on top of the blockio BlockStorage port.
//
// Grounded on the teacher's file_systems/fat package (common.go,
// dirent.go, driverbase.go), generalized from a read-mostly driver into a
// full read/write engine per the component design, and on soypat-fat's
// fat.go for the cluster-chain read/write/extend state machine the
// teacher itself left as TODOs.
package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/fatdisko"
)

// SectorID is a 0-based sector index, relative to the start of the
// volume (not the start of the underlying block device).
type SectorID uint32

// ClusterID is a 32-bit logical index into the data region. 0 and 1 are
// never allocated; the first addressable data cluster is 2.
type ClusterID uint32

// Type identifies which FAT flavor a volume uses.
type Type int

const (
	Type12 Type = 12
	Type16 Type = 16
	Type32 Type = 32
)

func (t Type) String() string {
	switch t {
	case Type12:
		return "FAT12"
	case Type16:
		return "FAT16"
	case Type32:
		return "FAT32"
	default:
		return "FAT?"
	}
}

// rawBootSector is the on-disk layout of the fields common to all three
// FAT flavors, sector 0 bytes 0-35 (the BIOS Parameter Block plus the
// jump instruction and OEM name). FAT12/16 keep a 2-byte SectorsPerFAT16
// at offset 0x16; FAT32 sets that field to 0 and keeps a 4-byte
// SectorsPerFAT32 in the extended BPB at offset 0x24, past the end of
// this struct, which is why only the 16-bit field is named here: the
// caller reads the 32-bit one separately when sectorsPerFAT16 is 0.
type rawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	totalSectors16    uint16
	Media             uint8
	sectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	totalSectors32    uint32
}

const rawBootSectorSize = 36

// BootSector holds the parsed BPB plus every derived field the engine
// needs repeatedly, so they're computed once at mount time rather than
// on every access -- the same split the teacher makes between
// RawFATBootSectorWithBPB and FATBootSector.
type BootSector struct {
	OEMName           string
	BytesPerSector    uint
	SectorsPerCluster uint
	ReservedSectors   uint
	NumFATs           uint
	RootEntryCount    uint
	Media             uint8
	TotalSectors      uint
	SectorsPerFAT     uint
	VolumeLabel       string

	// FAT32-only fields.
	RootCluster    ClusterID
	FSInfoSector   SectorID
	BackupBootSec  SectorID

	// Derived.
	Type              Type
	RootDirSectors    uint
	FirstDataSector   SectorID
	FirstRootSector   SectorID
	TotalDataSectors  uint
	TotalClusters     uint
	BytesPerCluster   uint
	DirentsPerCluster uint
	FirstFATSector    SectorID
}

// DetermineType classifies a volume as FAT12 or FAT16 by cluster count,
// per the Microsoft FAT specification thresholds. It never returns Type32:
// a volume that small enough in total sectors can legitimately have fewer
// clusters than the FAT16/32 boundary even when formatted as FAT32 (e.g. a
// 10MiB FAT32 floppy image), so FAT32 is never inferred from cluster count
// alone -- ParseBootSector instead trusts the extended-BPB signal
// (SectorsPerFAT16 == 0) the way the Microsoft spec itself does, and only
// calls this to split FAT12 from FAT16 once FAT32 has already been ruled
// out.
func DetermineType(totalClusters uint) Type {
	if totalClusters < 4085 {
		return Type12
	}
	return Type16
}

// ParseBootSector reads and validates the BPB from the first 512+ bytes
// of a volume (sector[0] of the passed buffer, which must be at least
// one physical sector).
func ParseBootSector(sector []byte) (*BootSector, error) {
	if len(sector) < 90 {
		return nil, fatdisko.ErrCorrupted.WithMessage("boot sector buffer too short")
	}

	raw := rawBootSector{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[14:16]),
		NumFATs:           sector[16],
		RootEntryCount:    binary.LittleEndian.Uint16(sector[17:19]),
		totalSectors16:    binary.LittleEndian.Uint16(sector[19:21]),
		Media:             sector[21],
		sectorsPerFAT16:   binary.LittleEndian.Uint16(sector[22:24]),
		SectorsPerTrack:   binary.LittleEndian.Uint16(sector[24:26]),
		NumHeads:          binary.LittleEndian.Uint16(sector[26:28]),
		HiddenSectors:     binary.LittleEndian.Uint32(sector[28:32]),
		totalSectors32:    binary.LittleEndian.Uint32(sector[32:36]),
	}
	copy(raw.OEMName[:], sector[3:11])

	switch raw.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, fatdisko.ErrCorrupted.WithMessage(fmt.Sprintf(
			"BytesPerSector must be 512/1024/2048/4096, got %d", raw.BytesPerSector))
	}
	switch raw.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return nil, fatdisko.ErrCorrupted.WithMessage(fmt.Sprintf(
			"SectorsPerCluster must be a power of 2 in [1,128], got %d", raw.SectorsPerCluster))
	}

	var sectorsPerFAT32 uint32
	var rootCluster uint32
	var fsInfoSector uint16
	var backupBootSec uint16
	if raw.sectorsPerFAT16 == 0 {
		// FAT32 extended BPB starts at offset 36.
		if len(sector) < 90 {
			return nil, fatdisko.ErrCorrupted.WithMessage("FAT32 extended BPB truncated")
		}
		sectorsPerFAT32 = binary.LittleEndian.Uint32(sector[36:40])
		rootCluster = binary.LittleEndian.Uint32(sector[44:48])
		fsInfoSector = binary.LittleEndian.Uint16(sector[48:50])
		backupBootSec = binary.LittleEndian.Uint16(sector[50:52])
	}

	var sectorsPerFAT uint
	if raw.sectorsPerFAT16 != 0 {
		sectorsPerFAT = uint(raw.sectorsPerFAT16)
	} else {
		sectorsPerFAT = uint(sectorsPerFAT32)
	}

	var totalSectors uint
	if raw.totalSectors16 != 0 {
		totalSectors = uint(raw.totalSectors16)
	} else {
		totalSectors = uint(raw.totalSectors32)
	}

	rootDirSectors := (uint(raw.RootEntryCount)*32 + uint(raw.BytesPerSector) - 1) / uint(raw.BytesPerSector)
	totalFATSectors := uint(raw.NumFATs) * sectorsPerFAT
	firstDataSector := uint(raw.ReservedSectors) + totalFATSectors + rootDirSectors
	totalDataSectors := totalSectors - firstDataSector
	bytesPerCluster := uint(raw.BytesPerSector) * uint(raw.SectorsPerCluster)
	totalClusters := totalDataSectors / uint(raw.SectorsPerCluster)

	// FAT32 is signaled by the extended BPB's presence (no 16-bit
	// SectorsPerFAT field), never by cluster count -- see DetermineType.
	var fatType Type
	if raw.sectorsPerFAT16 == 0 {
		fatType = Type32
	} else {
		fatType = DetermineType(totalClusters)
	}
	if fatType == Type32 && rootDirSectors != 0 {
		return nil, fatdisko.ErrCorrupted.WithMessage("RootEntryCount nonzero on a FAT32 volume")
	}
	if fatType != Type32 && rootDirSectors == 0 {
		return nil, fatdisko.ErrCorrupted.WithMessage("RootEntryCount zero on a FAT12/16 volume")
	}

	bs := &BootSector{
		OEMName:           trimOEM(raw.OEMName[:]),
		BytesPerSector:    uint(raw.BytesPerSector),
		SectorsPerCluster: uint(raw.SectorsPerCluster),
		ReservedSectors:   uint(raw.ReservedSectors),
		NumFATs:           uint(raw.NumFATs),
		RootEntryCount:    uint(raw.RootEntryCount),
		Media:             raw.Media,
		TotalSectors:      totalSectors,
		SectorsPerFAT:     sectorsPerFAT,
		RootCluster:       ClusterID(rootCluster),
		FSInfoSector:      SectorID(fsInfoSector),
		BackupBootSec:     SectorID(backupBootSec),
		Type:              fatType,
		RootDirSectors:    rootDirSectors,
		FirstDataSector:   SectorID(firstDataSector),
		FirstRootSector:   SectorID(uint(raw.ReservedSectors) + totalFATSectors),
		TotalDataSectors:  totalDataSectors,
		TotalClusters:     totalClusters,
		BytesPerCluster:   bytesPerCluster,
		DirentsPerCluster: bytesPerCluster / DirentSize,
		FirstFATSector:    SectorID(raw.ReservedSectors),
	}
	if bs.BytesPerCluster > 32768 {
		return nil, fatdisko.ErrCorrupted.WithMessage("BytesPerCluster cannot exceed 32768")
	}
	return bs, nil
}

func trimOEM(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return string(b[:i])
}

// ClusterToSector maps a cluster number to its first sector, per the
// invariant that consecutive clusters are SectorsPerCluster sectors
// apart starting at FirstDataSector for cluster 2.
func (bs *BootSector) ClusterToSector(cluster ClusterID) SectorID {
	return bs.FirstDataSector + SectorID(uint32(cluster-2)*uint32(bs.SectorsPerCluster))
}

// IsValidDataCluster reports whether cluster addresses a real data
// cluster (as opposed to a reserved or end-of-chain sentinel value).
func (bs *BootSector) IsValidDataCluster(cluster ClusterID) bool {
	return cluster >= 2 && uint(cluster) < bs.TotalClusters+2
}
