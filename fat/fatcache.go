package fat

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
)

// fatCacheSize is N, the number of FAT sectors the engine keeps resident.
// Spec calls for "up to N~=8".
const fatCacheSize = 8

// fatSectorCache is a small LRU of recently accessed FAT sectors, the
// dominant working set for FAT traversal performance. Grounded on the
// teacher's blockcache.go loaded/dirty-bitmap idiom (drivers/common/
// blockcache and file_systems/common/blockcache), narrowed from "a whole
// cache of every block in an object" down to a fixed-capacity LRU keyed
// by FAT-relative sector index, with mirrored write-back to every FAT
// copy on eviction or explicit flush.
type fatSectorCache struct {
	storage   blockio.BlockStorage
	bootSec   *BootSector
	capacity  int
	loaded    bitmap.Bitmap // slot -> is a sector resident
	dirty     bitmap.Bitmap // slot -> resident sector has unflushed writes
	slotOf    map[uint32]int
	sectorOf  []uint32 // slot -> FAT-relative sector index
	data      [][]byte // slot -> sector bytes
	lru       []uint32 // front = most recently used slot index
}

func newFatSectorCache(storage blockio.BlockStorage, bootSec *BootSector) *fatSectorCache {
	capacity := fatCacheSize
	c := &fatSectorCache{
		storage:  storage,
		bootSec:  bootSec,
		capacity: capacity,
		loaded:   bitmap.New(capacity),
		dirty:    bitmap.New(capacity),
		slotOf:   make(map[uint32]int, capacity),
		sectorOf: make([]uint32, capacity),
		data:     make([][]byte, capacity),
	}
	for i := range c.data {
		c.data[i] = make([]byte, bootSec.BytesPerSector)
	}
	return c
}

func (c *fatSectorCache) touch(slot int) {
	for i, s := range c.lru {
		if s == uint32(slot) {
			c.lru = append(c.lru[:i], c.lru[i+1:]...)
			break
		}
	}
	c.lru = append([]uint32{uint32(slot)}, c.lru...)
}

func (c *fatSectorCache) absoluteSector(fatRelative uint32, fatIndex uint) SectorID {
	return c.bootSec.FirstFATSector + SectorID(fatIndex)*SectorID(c.bootSec.SectorsPerFAT) + SectorID(fatRelative)
}

// flushSlot writes a dirty slot back to every FAT mirror. Per the mirror
// discipline, the write is only considered complete once all NumFATs
// copies have committed; partial failures are joined rather than
// reported as a single opaque error, using go-multierror the way a
// driver with a previously-unwired dependency on it would.
func (c *fatSectorCache) flushSlot(slot int) error {
	if !c.dirty.Get(slot) {
		return nil
	}
	fatRelative := c.sectorOf[slot]

	var merr *multierror.Error
	for k := uint(0); k < c.bootSec.NumFATs; k++ {
		sector := c.absoluteSector(fatRelative, k)
		offset := uint32(sector) * uint32(c.bootSec.BytesPerSector)
		blockStart := offset / uint32(c.storage.BlockSize())
		if err := c.storage.WriteBlocks(blockStart, c.data[slot]); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("FAT copy %d: %w", k, err))
		}
	}
	if merr != nil {
		return fatdisko.ErrCorrupted.WrapError(merr)
	}
	c.dirty.Set(slot, false)
	return nil
}

// evictOneIfFull makes room for a new sector if the cache is at capacity,
// flushing the evicted sector first if it's dirty.
func (c *fatSectorCache) evictOneIfFull() (int, error) {
	if len(c.slotOf) < c.capacity {
		return len(c.slotOf), nil
	}

	victim := c.lru[len(c.lru)-1]
	if err := c.flushSlot(int(victim)); err != nil {
		return 0, err
	}
	delete(c.slotOf, c.sectorOf[victim])
	c.loaded.Set(int(victim), false)
	c.lru = c.lru[:len(c.lru)-1]
	return int(victim), nil
}

// sector returns the bytes of FAT-relative sector fatRelative (from the
// first FAT copy -- mirrors are kept in sync by flushSlot), loading it
// if necessary.
func (c *fatSectorCache) sector(fatRelative uint32) ([]byte, error) {
	if slot, ok := c.slotOf[fatRelative]; ok {
		c.touch(slot)
		return c.data[slot], nil
	}

	slot, err := c.evictOneIfFull()
	if err != nil {
		return nil, err
	}

	sector := c.absoluteSector(fatRelative, 0)
	offset := uint32(sector) * uint32(c.bootSec.BytesPerSector)
	blockStart := offset / uint32(c.storage.BlockSize())
	if err := c.storage.ReadBlocks(blockStart, c.data[slot]); err != nil {
		return nil, fatdisko.ErrIoError.WrapError(err)
	}

	c.slotOf[fatRelative] = slot
	c.sectorOf[slot] = fatRelative
	c.loaded.Set(slot, true)
	c.dirty.Set(slot, false)
	c.touch(slot)
	return c.data[slot], nil
}

func (c *fatSectorCache) markDirty(fatRelative uint32) {
	if slot, ok := c.slotOf[fatRelative]; ok {
		c.dirty.Set(slot, true)
	}
}

// flushAll writes back every dirty cached sector to all FAT mirrors.
func (c *fatSectorCache) flushAll() error {
	var merr *multierror.Error
	for fatRelative, slot := range c.slotOf {
		if err := c.flushSlot(slot); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("FAT sector %d: %w", fatRelative, err))
		}
	}
	if merr != nil {
		return fatdisko.ErrCorrupted.WrapError(merr)
	}
	return nil
}
