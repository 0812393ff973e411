// Package blockio implements the driven port every higher layer of the
// FAT core depends on (BlockStorage), plus the single-page buffer that
// stream adapters build on. Nothing in this package knows anything about
// FAT; it's the same kind of block-oriented substrate the teacher repo
// builds in drivers/common/blockcache, generalized from "whole-cache of
// N fixed blocks" down to the narrower single-page contract the FAT
// engine's own sector cache doesn't need but a byte-stream adapter does.
package blockio

import (
	"fmt"

	"github.com/dargueta/fatdisko"
)

// BlockStorage is the abstract sector-addressed device every layer above
// it depends on exclusively through this interface.
type BlockStorage interface {
	// ReadBlocks fills dst from the device starting at sector start. The
	// implicit sector count is ceil(len(dst)/BlockSize()); trailing bytes
	// within the last sector beyond dst's length are left unread.
	ReadBlocks(start uint32, dst []byte) error

	// WriteBlocks writes whole sectors starting at sector start. A
	// partial final sector is zero-padded before being written.
	WriteBlocks(start uint32, src []byte) error

	// BlockSize returns the size of one sector, in bytes.
	BlockSize() uint

	// Size returns total device capacity in bytes.
	Size() int64

	// Flush commits any adapter-level buffering. It may be a no-op.
	Flush() error
}

// checkRange is a small bounds helper shared by storage implementations.
func checkRange(start uint32, blockSize uint, totalBlocks uint32, numBlocks uint32) error {
	if uint64(start)+uint64(numBlocks) > uint64(totalBlocks) {
		return fatdisko.ErrIoError.WithMessage(fmt.Sprintf(
			"block range [%d, %d) out of bounds (device has %d blocks of %d bytes)",
			start, uint64(start)+uint64(numBlocks), totalBlocks, blockSize))
	}
	return nil
}
