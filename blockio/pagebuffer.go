package blockio

import (
	"github.com/dargueta/fatdisko"
)

// PageBuffer holds at most one page (a page is k >= 1 whole sectors) of a
// BlockStorage, with the single strongest correctness invariant at this
// layer: loading a different page while the held one is dirty is a loud,
// detected error rather than silently discarded data. Grounded on the
// teacher's blockcache.go loaded/dirty tracking, narrowed from "a whole
// cache of N independently-tracked blocks" down to "exactly one page",
// which is the shape file_systems/common/basicstream builds its
// ReadWriteSeeker on top of.
type PageBuffer struct {
	storage        BlockStorage
	pagesInBlocks  uint
	blockSize      uint
	hasPage        bool
	dirty          bool
	pageNum        uint32
	data           []byte
}

// NewPageBuffer creates a PageBuffer over storage with a page size of
// pagesInBlocks whole sectors.
func NewPageBuffer(storage BlockStorage, pagesInBlocks uint) *PageBuffer {
	if pagesInBlocks == 0 {
		pagesInBlocks = 1
	}
	blockSize := storage.BlockSize()
	return &PageBuffer{
		storage:       storage,
		pagesInBlocks: pagesInBlocks,
		blockSize:     blockSize,
		data:          make([]byte, pagesInBlocks*blockSize),
	}
}

// PageSize returns the size of one page in bytes.
func (pb *PageBuffer) PageSize() uint { return pb.pagesInBlocks * pb.blockSize }

// IsDirty reports whether the held page has unflushed modifications.
func (pb *PageBuffer) IsDirty() bool { return pb.hasPage && pb.dirty }

// HasPage reports whether any page is currently held.
func (pb *PageBuffer) HasPage() bool { return pb.hasPage }

// CurrentPage returns the page number held, if any.
func (pb *PageBuffer) CurrentPage() (uint32, bool) { return pb.pageNum, pb.hasPage }

func (pb *PageBuffer) pageStartBlock(pageNum uint32) uint32 {
	return pageNum * uint32(pb.pagesInBlocks)
}

// Load ensures pageNum's contents are present in the buffer. If the held
// page already matches, this is a no-op. If a different page is held and
// it's dirty, this fails with ErrDirtyPageConflict and the held page is
// left unchanged.
func (pb *PageBuffer) Load(pageNum uint32) error {
	if pb.hasPage && pb.pageNum == pageNum {
		return nil
	}
	if pb.hasPage && pb.dirty {
		return fatdisko.ErrDirtyPageConflict.WithMessage(
			"cannot load a different page while the held page is dirty")
	}

	if err := pb.storage.ReadBlocks(pb.pageStartBlock(pageNum), pb.data); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	pb.pageNum = pageNum
	pb.hasPage = true
	pb.dirty = false
	return nil
}

// Modify applies fn to the held page's bytes and marks the page dirty.
// It is an error to call Modify with no page loaded.
func (pb *PageBuffer) Modify(fn func(data []byte)) error {
	if !pb.hasPage {
		return fatdisko.ErrInvalidInput.WithMessage("Modify called with no page loaded")
	}
	fn(pb.data)
	pb.dirty = true
	return nil
}

// Bytes returns the held page's bytes directly, without copying. Callers
// that mutate the returned slice must follow up with MarkDirty.
func (pb *PageBuffer) Bytes() []byte { return pb.data }

// MarkDirty flags the held page as modified after a direct mutation of
// the slice returned by Bytes.
func (pb *PageBuffer) MarkDirty() {
	if pb.hasPage {
		pb.dirty = true
	}
}

// Flush writes the held page back to storage if dirty, then marks it
// clean. A clean or absent page makes this a no-op.
func (pb *PageBuffer) Flush() error {
	if !pb.hasPage || !pb.dirty {
		return nil
	}
	if err := pb.storage.WriteBlocks(pb.pageStartBlock(pb.pageNum), pb.data); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	pb.dirty = false
	return nil
}

// Clear discards the held page. Callers MUST have flushed first if the
// page was dirty; Clear does not flush on their behalf.
func (pb *PageBuffer) Clear() {
	pb.hasPage = false
	pb.dirty = false
	pb.pageNum = 0
}

// pagesOverlapping reports whether the block range [start, start+count)
// intersects the currently held page.
func (pb *PageBuffer) pagesOverlapping(start uint32, count uint32) bool {
	if !pb.hasPage {
		return false
	}
	pageStart := pb.pageStartBlock(pb.pageNum)
	pageEnd := pageStart + uint32(pb.pagesInBlocks)
	rangeEnd := start + count
	return start < pageEnd && rangeEnd > pageStart
}

// ReadPagesDirect bypasses the buffer for large sequential reads. If the
// range overlaps the held page, the held page is invalidated (discarded,
// not flushed -- callers doing a direct read over a dirty page have
// already lost the chance to preserve it and should flush first).
func (pb *PageBuffer) ReadPagesDirect(startBlock uint32, dst []byte) error {
	numBlocks := uint32((uint(len(dst)) + pb.blockSize - 1) / pb.blockSize)
	if pb.pagesOverlapping(startBlock, numBlocks) {
		pb.Clear()
	}
	if err := pb.storage.ReadBlocks(startBlock, dst); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	return nil
}

// WritePagesDirect bypasses the buffer for large sequential writes, with
// the same held-page invalidation rule as ReadPagesDirect.
func (pb *PageBuffer) WritePagesDirect(startBlock uint32, src []byte) error {
	numBlocks := uint32((uint(len(src)) + pb.blockSize - 1) / pb.blockSize)
	if pb.pagesOverlapping(startBlock, numBlocks) {
		pb.Clear()
	}
	if err := pb.storage.WriteBlocks(startBlock, src); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	return nil
}
