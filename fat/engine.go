package fat

import (
	"fmt"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
)

// Engine owns the BPB, FAT type, cluster-chain traversal primitives, the
// free-cluster rover, the FAT-sector LRU, and the generation counter.
// Every directory and file handle traverses cluster chains exclusively
// through an Engine. Grounded on the teacher's FATDriverCommon interface
// (file_systems/fat/driverbase.go), collapsed from an interface + version
// -specific implementations into one concrete type parametrized by
// BootSector.Type, since nothing in this spec needs the teacher's
// polymorphism across non-FAT file systems.
type Engine struct {
	storage    blockio.BlockStorage
	BootSec    *BootSector
	cache      *fatSectorCache
	rover      ClusterID
	generation uint64
}

// NewEngine mounts a FAT engine over storage using an already-parsed
// BootSector (see ParseBootSector).
func NewEngine(storage blockio.BlockStorage, bootSec *BootSector) *Engine {
	rover := ClusterID(2)
	return &Engine{
		storage: storage,
		BootSec: bootSec,
		cache:   newFatSectorCache(storage, bootSec),
		rover:   rover,
	}
}

// Type returns the FAT flavor this volume uses.
func (e *Engine) Type() Type { return e.BootSec.Type }

// Storage returns the underlying block device, for callers (the Dir and
// File object layer) that need to address sectors outside the FAT
// region, which the engine's own sector cache never touches.
func (e *Engine) Storage() blockio.BlockStorage { return e.storage }

// Generation returns the current value of the monotonic counter that is
// bumped whenever any cluster transitions from allocated to free.
// Handles capture this at open time and compare it before mutating a
// cached on-disk position.
func (e *Engine) Generation() uint64 { return e.generation }

// ClusterToSector maps a cluster number to its first sector.
func (e *Engine) ClusterToSector(cluster ClusterID) SectorID {
	return e.BootSec.ClusterToSector(cluster)
}

// IsValidCluster reports whether cluster addresses real data (not a
// reserved, free, bad, or end-of-chain value).
func (e *Engine) IsValidCluster(cluster ClusterID) bool {
	return e.BootSec.IsValidDataCluster(cluster) &&
		!e.Type().IsEndOfChain(cluster) &&
		!e.Type().IsBadCluster(cluster)
}

// IsEndOfChain reports whether cluster is the end-of-chain sentinel.
func (e *Engine) IsEndOfChain(cluster ClusterID) bool {
	return e.Type().IsEndOfChain(cluster)
}

// Get reads the raw FAT entry for cluster, loading whichever FAT
// sector(s) hold it. A FAT12 entry that straddles two sectors causes
// both to be loaded before the split read.
func (e *Engine) Get(cluster ClusterID) (ClusterID, error) {
	bps := e.BootSec.BytesPerSector
	byteOffset, odd := e.Type().entryByteOffset(cluster)
	sectorIdx := uint32(byteOffset / bps)
	inSector := byteOffset % bps

	sector, err := e.cache.sector(sectorIdx)
	if err != nil {
		return 0, err
	}

	switch e.Type() {
	case Type12:
		var b0, b1 byte
		if inSector == bps-1 {
			next, err := e.cache.sector(sectorIdx + 1)
			if err != nil {
				return 0, err
			}
			b0, b1 = sector[inSector], next[0]
		} else {
			b0, b1 = sector[inSector], sector[inSector+1]
		}
		return getEntryFAT12(b0, b1, odd), nil
	case Type16:
		return getEntryFAT16(sector, inSector), nil
	default:
		return getEntryFAT32(sector, inSector), nil
	}
}

// Set writes value into cluster's FAT entry, marking the owning
// sector(s) dirty. Callers must eventually call FlushFAT (or rely on LRU
// eviction) to commit to all mirrors.
func (e *Engine) Set(cluster ClusterID, value ClusterID) error {
	bps := e.BootSec.BytesPerSector
	byteOffset, odd := e.Type().entryByteOffset(cluster)
	sectorIdx := uint32(byteOffset / bps)
	inSector := byteOffset % bps

	sector, err := e.cache.sector(sectorIdx)
	if err != nil {
		return err
	}

	switch e.Type() {
	case Type12:
		if inSector == bps-1 {
			next, err := e.cache.sector(sectorIdx + 1)
			if err != nil {
				return err
			}
			newB0, newB1 := setEntryFAT12(sector[inSector], next[0], odd, value)
			sector[inSector] = newB0
			next[0] = newB1
			e.cache.markDirty(sectorIdx)
			e.cache.markDirty(sectorIdx + 1)
			return nil
		}
		newB0, newB1 := setEntryFAT12(sector[inSector], sector[inSector+1], odd, value)
		sector[inSector] = newB0
		sector[inSector+1] = newB1
	case Type16:
		setEntryFAT16(sector, inSector, value)
	default:
		setEntryFAT32(sector, inSector, value)
	}
	e.cache.markDirty(sectorIdx)
	return nil
}

// Next returns the cluster following cluster in its chain. ok is false
// if cluster is already the end of its chain.
func (e *Engine) Next(cluster ClusterID) (next ClusterID, ok bool, err error) {
	entry, err := e.Get(cluster)
	if err != nil {
		return 0, false, err
	}
	if e.IsEndOfChain(entry) {
		return 0, false, nil
	}
	if !e.BootSec.IsValidDataCluster(entry) {
		return 0, false, fatdisko.ErrCorrupted.WithMessage(fmt.Sprintf(
			"cluster %d followed by invalid cluster 0x%x", cluster, entry))
	}
	return entry, true, nil
}

// ListChain returns every cluster in the chain starting at head, in
// order. head must be a valid data cluster.
func (e *Engine) ListChain(head ClusterID) ([]ClusterID, error) {
	if !e.IsValidCluster(head) {
		return nil, fatdisko.ErrCorrupted.WithMessage(fmt.Sprintf("invalid chain head 0x%x", head))
	}
	chain := []ClusterID{head}
	current := head
	for {
		next, ok, err := e.Next(current)
		if err != nil {
			return chain, err
		}
		if !ok {
			break
		}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

// AllocateOne scans for a free cluster starting at the rover, claims it
// by writing the end-of-chain sentinel, and advances the rover past it.
// The scan wraps to cluster 2 once; exhausting the whole range without
// finding a free entry fails with ErrNoSpace.
func (e *Engine) AllocateOne() (ClusterID, error) {
	total := ClusterID(e.BootSec.TotalClusters + 2)
	start := e.rover
	if start < 2 || start >= total {
		start = 2
	}

	cluster := start
	wrapped := false
	for {
		entry, err := e.Get(cluster)
		if err != nil {
			return 0, err
		}
		if entry == 0 {
			if err := e.Set(cluster, e.Type().EndOfChain()); err != nil {
				return 0, err
			}
			e.rover = cluster + 1
			if e.rover >= total {
				e.rover = 2
			}
			return cluster, nil
		}

		cluster++
		if cluster >= total {
			if wrapped {
				return 0, fatdisko.ErrNoSpace
			}
			cluster = 2
			wrapped = true
		}
		if wrapped && cluster >= start {
			return 0, fatdisko.ErrNoSpace
		}
	}
}

// Extend allocates a new cluster and links prev to it. The new cluster
// is returned.
func (e *Engine) Extend(prev ClusterID) (ClusterID, error) {
	next, err := e.AllocateOne()
	if err != nil {
		return 0, err
	}
	if err := e.Set(prev, next); err != nil {
		return 0, err
	}
	return next, nil
}

// FreeChain frees every cluster in the chain starting at head. The
// generation counter is incremented once if at least one cluster was
// freed, per spec ("some cluster became free since you last looked").
func (e *Engine) FreeChain(head ClusterID) error {
	if !e.IsValidCluster(head) {
		return nil
	}
	freedAny := false
	current := head
	for {
		next, ok, err := e.Next(current)
		if err != nil {
			return err
		}
		if err := e.Set(current, 0); err != nil {
			return err
		}
		freedAny = true
		if !ok {
			break
		}
		current = next
	}
	if freedAny {
		e.generation++
	}
	return nil
}

// TruncateChain walks keep links from head, writes end-of-chain there,
// then frees every remaining cluster. If keep is 0, the entire chain is
// freed and the caller is responsible for zeroing the dirent's first
// cluster field.
func (e *Engine) TruncateChain(head ClusterID, keep uint) error {
	if keep == 0 {
		return e.FreeChain(head)
	}
	if !e.IsValidCluster(head) {
		return fatdisko.ErrCorrupted.WithMessage("truncate of invalid chain head")
	}

	current := head
	for i := uint(1); i < keep; i++ {
		next, ok, err := e.Next(current)
		if err != nil {
			return err
		}
		if !ok {
			// Chain is already shorter than keep; nothing to truncate.
			return nil
		}
		current = next
	}

	next, ok, err := e.Next(current)
	if err != nil {
		return err
	}
	if err := e.Set(current, e.Type().EndOfChain()); err != nil {
		return err
	}
	if ok {
		return e.FreeChain(next)
	}
	return nil
}

// FlushFAT commits all dirty FAT sectors to every mirror.
func (e *Engine) FlushFAT() error {
	return e.cache.flushAll()
}

// RootDirSectorRange returns the sector range of the fixed-size FAT12/16
// root directory region. It must not be called on a FAT32 volume (which
// has no fixed root -- use BootSec.RootCluster instead).
func (e *Engine) RootDirSectorRange() (start SectorID, count uint) {
	return e.BootSec.FirstRootSector, e.BootSec.RootDirSectors
}
