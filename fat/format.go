package fat

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
)

// clusterSizeStep pairs a volume-size ceiling (in bytes) with the sectors
// per cluster Microsoft's own formatter picks for a volume up to that
// size. Grounded on the cluster-size table soypat-fat/format.go sketches
// (its FormatConfig.ClusterSize comment and the FormatFAT32-only branch)
// but never finishes. fat32ClusterTable holds Microsoft's published FAT32
// thresholds. fat1216ClusterTable matches Microsoft's FAT16 table from
// 128MiB up; below that it uses 1 sector per cluster up to 32MiB and 2 up
// to 64MiB, and it has no bracket that rejects a volume as too small for
// FAT16. FAT12 does not use either table: Format picks the smallest
// cluster size that keeps a FAT12 volume under 4085 clusters.
type clusterSizeStep struct {
	maxBytes          int64
	sectorsPerCluster uint
}

var fat1216ClusterTable = []clusterSizeStep{
	{32 * 1024 * 1024, 1},
	{64 * 1024 * 1024, 2},
	{128 * 1024 * 1024, 4},
	{256 * 1024 * 1024, 8},
	{512 * 1024 * 1024, 16},
	{1024 * 1024 * 1024, 32},
	{1 << 62, 64},
}

// fat32ClusterTable starts at 1 sector per cluster (the smallest legal
// cluster size) for anything up to 260MiB, the same floor dosfstools'
// mkfs.fat uses. Without that floor, a FAT32 volume in the hundreds-of-MiB
// range ends up with too few clusters to stay above the FAT16/32 boundary
// (65524 clusters) once a larger cluster size is picked, which is exactly
// the bug this table used to have at 256MiB with an 8-sectors-per-cluster
// floor.
var fat32ClusterTable = []clusterSizeStep{
	{260 * 1024 * 1024, 1},
	{8 * 1024 * 1024 * 1024, 8},
	{16 * 1024 * 1024 * 1024, 16},
	{32 * 1024 * 1024 * 1024, 32},
	{1 << 62, 64},
}

func autoSectorsPerCluster(fatType Type, totalBytes int64) uint {
	table := fat1216ClusterTable
	if fatType == Type32 {
		table = fat32ClusterTable
	}
	for _, step := range table {
		if totalBytes <= step.maxBytes {
			return step.sectorsPerCluster
		}
	}
	return table[len(table)-1].sectorsPerCluster
}

// autoFatType picks a FAT flavor from raw volume size alone, before the
// cluster layout is known. It's a coarse pre-selection; unlike
// DetermineType (which classifies from an already-computed cluster
// count), this only has to be good enough to pick the right cluster-size
// table above -- FormatVolumeOptions.Type lets a caller override it.
func autoFatType(totalBytes int64) Type {
	switch {
	case totalBytes < 16*1024*1024:
		return Type12
	case totalBytes < 512*1024*1024:
		return Type16
	default:
		return Type32
	}
}

// FormatVolumeOptions controls Format. The zero value formats a
// reasonable default volume: FAT type and cluster size chosen from the
// device's size, two FATs, 512 root entries on FAT12/16, media byte
// 0xF8 (fixed disk).
type FormatVolumeOptions struct {
	Type              Type
	SectorsPerCluster uint
	ReservedSectors   uint
	NumFATs           uint
	RootEntryCount    uint
	Media             uint8
	OEMName           string
	VolumeLabel       string
}

const defaultMediaByte = 0xF8

// Format lays down a fresh BPB, both (or however many) FAT copies with
// their reserved entries initialized, a zeroed root directory region, and
// -- for FAT32 -- a backup boot sector and FSInfo sector, over storage.
// Grounded on the bytewriter/binary.Write fixed-offset field writer the
// teacher's file_systems/unixv1/format.go uses for its own superblock,
// carried over to the FAT BPB layout.
func Format(storage blockio.BlockStorage, opts FormatVolumeOptions) (*Engine, error) {
	bps := storage.BlockSize()
	if bps < 512 {
		return nil, fatdisko.ErrInvalidInput.WithMessage("block size must be at least 512 bytes")
	}
	totalBytes := storage.Size()
	totalSectors := uint(totalBytes / int64(bps))

	fatType := opts.Type
	if fatType == 0 {
		fatType = autoFatType(totalBytes)
	}

	spc := opts.SectorsPerCluster
	if spc == 0 && fatType == Type12 {
		// FAT12 holds fewer than 4085 clusters (see DetermineType), so
		// pick the smallest cluster size that keeps the count under that.
		spc = 1
		for spc < 128 && totalSectors/spc >= 4085 {
			spc *= 2
		}
	} else if spc == 0 {
		spc = autoSectorsPerCluster(fatType, totalBytes)
	}

	reserved := opts.ReservedSectors
	if reserved == 0 {
		if fatType == Type32 {
			reserved = 32
		} else {
			reserved = 1
		}
	}

	numFATs := opts.NumFATs
	if numFATs == 0 {
		numFATs = 2
	}

	rootEntryCount := opts.RootEntryCount
	if fatType == Type32 {
		rootEntryCount = 0
	} else if rootEntryCount == 0 {
		rootEntryCount = 512
	}

	media := opts.Media
	if media == 0 {
		media = defaultMediaByte
	}

	rootDirSectors := (rootEntryCount*32 + bps - 1) / bps

	tmp1 := totalSectors - (reserved + rootDirSectors)
	tmp2 := 256*spc + numFATs
	if fatType == Type32 {
		tmp2 /= 2
	}
	sectorsPerFAT := (tmp1 + tmp2 - 1) / tmp2

	firstDataSector := reserved + numFATs*sectorsPerFAT + rootDirSectors
	if firstDataSector >= totalSectors {
		return nil, fatdisko.ErrInvalidInput.WithMessage("device too small for the chosen layout")
	}
	totalDataSectors := totalSectors - firstDataSector
	totalClusters := totalDataSectors / spc
	bytesPerCluster := bps * spc
	if bytesPerCluster > 32768 {
		return nil, fatdisko.ErrInvalidInput.WithMessage("sectors per cluster * block size exceeds 32768")
	}

	bs := &BootSector{
		OEMName:           opts.OEMName,
		BytesPerSector:    bps,
		SectorsPerCluster: spc,
		ReservedSectors:   reserved,
		NumFATs:           numFATs,
		RootEntryCount:    rootEntryCount,
		Media:             media,
		TotalSectors:      totalSectors,
		SectorsPerFAT:     sectorsPerFAT,
		VolumeLabel:       opts.VolumeLabel,
		Type:              fatType,
		RootDirSectors:    rootDirSectors,
		FirstDataSector:   SectorID(firstDataSector),
		FirstRootSector:   SectorID(reserved + numFATs*sectorsPerFAT),
		TotalDataSectors:  totalDataSectors,
		TotalClusters:     totalClusters,
		BytesPerCluster:   bytesPerCluster,
		DirentsPerCluster: bytesPerCluster / DirentSize,
		FirstFATSector:    SectorID(reserved),
	}

	if fatType == Type32 {
		bs.RootCluster = 2
		bs.FSInfoSector = 1
		bs.BackupBootSec = 6
	}

	if err := writeBootSector(storage, bs); err != nil {
		return nil, err
	}
	if fatType == Type32 {
		if err := writeFSInfo(storage, bs); err != nil {
			return nil, err
		}
		backupBuf := make([]byte, bps)
		if err := storage.ReadBlocks(0, backupBuf); err != nil {
			return nil, fatdisko.ErrIoError.WrapError(err)
		}
		if err := storage.WriteBlocks(uint32(bs.BackupBootSec), backupBuf); err != nil {
			return nil, fatdisko.ErrIoError.WrapError(err)
		}
	}

	eng := NewEngine(storage, bs)

	reservedEntry0 := ClusterID(uint32(media) | 0xFFFFFF00)
	eocEntry1 := fatType.EndOfChain()
	if err := eng.Set(0, reservedEntry0); err != nil {
		return nil, err
	}
	if err := eng.Set(1, eocEntry1); err != nil {
		return nil, err
	}

	if fatType == Type32 {
		if err := eng.Set(bs.RootCluster, fatType.EndOfChain()); err != nil {
			return nil, err
		}
		if err := zeroClusterRange(storage, bs, bs.RootCluster, 1); err != nil {
			return nil, err
		}
		eng.rover = bs.RootCluster + 1
	} else {
		if err := zeroSectorRange(storage, bs.FirstRootSector, rootDirSectors, bps); err != nil {
			return nil, err
		}
	}

	if err := eng.FlushFAT(); err != nil {
		return nil, err
	}
	return eng, nil
}

func writeBootSector(storage blockio.BlockStorage, bs *BootSector) error {
	buf := make([]byte, bs.BytesPerSector)
	w := bytewriter.New(buf)

	binary.Write(w, binary.LittleEndian, [3]byte{0xEB, 0x00, 0x90}) // JmpBoot
	binary.Write(w, binary.LittleEndian, padASCII(bs.OEMName, 8))
	binary.Write(w, binary.LittleEndian, uint16(bs.BytesPerSector))
	binary.Write(w, binary.LittleEndian, uint8(bs.SectorsPerCluster))
	binary.Write(w, binary.LittleEndian, uint16(bs.ReservedSectors))
	binary.Write(w, binary.LittleEndian, uint8(bs.NumFATs))
	binary.Write(w, binary.LittleEndian, uint16(bs.RootEntryCount))

	totalSectors16 := uint16(0)
	totalSectors32 := uint32(0)
	if bs.TotalSectors <= 0xFFFF {
		totalSectors16 = uint16(bs.TotalSectors)
	} else {
		totalSectors32 = uint32(bs.TotalSectors)
	}
	binary.Write(w, binary.LittleEndian, totalSectors16)
	binary.Write(w, binary.LittleEndian, bs.Media)

	sectorsPerFAT16 := uint16(0)
	sectorsPerFAT32 := uint32(0)
	if bs.Type == Type32 {
		sectorsPerFAT32 = uint32(bs.SectorsPerFAT)
	} else {
		sectorsPerFAT16 = uint16(bs.SectorsPerFAT)
	}
	binary.Write(w, binary.LittleEndian, sectorsPerFAT16)
	binary.Write(w, binary.LittleEndian, uint16(0)) // SectorsPerTrack, unused by this engine
	binary.Write(w, binary.LittleEndian, uint16(0)) // NumHeads, unused by this engine
	binary.Write(w, binary.LittleEndian, uint32(0)) // HiddenSectors
	binary.Write(w, binary.LittleEndian, totalSectors32)

	if bs.Type == Type32 {
		binary.Write(w, binary.LittleEndian, sectorsPerFAT32)
		binary.Write(w, binary.LittleEndian, uint16(0)) // ExtFlags: mirrored FATs, FAT0 active
		binary.Write(w, binary.LittleEndian, uint16(0)) // FSVer 0.0
		binary.Write(w, binary.LittleEndian, uint32(bs.RootCluster))
		binary.Write(w, binary.LittleEndian, uint16(bs.FSInfoSector))
		binary.Write(w, binary.LittleEndian, uint16(bs.BackupBootSec))
		binary.Write(w, binary.LittleEndian, [12]byte{}) // Reserved
	}

	binary.Write(w, binary.LittleEndian, uint8(0x80)) // DrvNum: hard disk
	binary.Write(w, binary.LittleEndian, uint8(0))    // Reserved1
	binary.Write(w, binary.LittleEndian, uint8(0x29)) // BootSig: ext fields present
	binary.Write(w, binary.LittleEndian, uint32(0))   // VolID
	binary.Write(w, binary.LittleEndian, padASCII(bs.VolumeLabel, 11))
	binary.Write(w, binary.LittleEndian, padASCII(bs.Type.String(), 8))

	buf[bs.BytesPerSector-2] = 0x55
	buf[bs.BytesPerSector-1] = 0xAA

	return storage.WriteBlocks(0, buf)
}

// writeFSInfo writes the FAT32 FSInfo sector, seeding FreeCount as
// unknown (0xFFFFFFFF) since this freshly formatted volume's only
// allocated clusters are the root directory's, not worth a full scan to
// report precisely, and NextFree at the first cluster past the root.
func writeFSInfo(storage blockio.BlockStorage, bs *BootSector) error {
	buf := make([]byte, bs.BytesPerSector)
	binary.LittleEndian.PutUint32(buf[0:4], 0x41615252)   // LeadSig
	binary.LittleEndian.PutUint32(buf[484:488], 0x61417272) // StrucSig
	binary.LittleEndian.PutUint32(buf[488:492], 0xFFFFFFFF) // FreeCount: unknown
	binary.LittleEndian.PutUint32(buf[492:496], uint32(bs.RootCluster)+1)
	binary.LittleEndian.PutUint16(buf[510:512], 0xAA55)
	return storage.WriteBlocks(uint32(bs.FSInfoSector), buf)
}

func padASCII(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}

func zeroSectorRange(storage blockio.BlockStorage, start SectorID, count uint, bps uint) error {
	zero := make([]byte, bps)
	for i := uint(0); i < count; i++ {
		if err := storage.WriteBlocks(uint32(start)+uint32(i), zero); err != nil {
			return fatdisko.ErrIoError.WrapError(err)
		}
	}
	return nil
}

func zeroClusterRange(storage blockio.BlockStorage, bs *BootSector, start ClusterID, count uint) error {
	for i := uint(0); i < count; i++ {
		sector := bs.ClusterToSector(start + ClusterID(i))
		if err := zeroSectorRange(storage, sector, bs.SectorsPerCluster, bs.BytesPerSector); err != nil {
			return err
		}
	}
	return nil
}
