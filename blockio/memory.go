package blockio

import (
	"io"

	"github.com/dargueta/fatdisko"
	"github.com/xaionaro-go/bytesextra"
)

// MemoryStorage is a BlockStorage backed by a plain []byte, the same way
// the teacher's testing/images.go turns a decompressed disk image into an
// io.ReadWriteSeeker via bytesextra.NewReadWriteSeeker. Useful for tests,
// small embedded images held entirely in RAM, and disk-image tooling that
// stages a whole volume in memory before writing it out.
type MemoryStorage struct {
	stream    io.ReadWriteSeeker
	blockSize uint
	size      int64
}

// NewMemoryStorage wraps data as a BlockStorage with the given sector
// size. data's length must be an exact multiple of blockSize.
func NewMemoryStorage(data []byte, blockSize uint) (*MemoryStorage, error) {
	if blockSize == 0 || uint(len(data))%blockSize != 0 {
		return nil, fatdisko.ErrInvalidInput.WithMessage(
			"data length must be a nonzero multiple of blockSize")
	}
	return &MemoryStorage{
		stream:    bytesextra.NewReadWriteSeeker(data),
		blockSize: blockSize,
		size:      int64(len(data)),
	}, nil
}

// NewBlankMemoryStorage allocates a zero-filled volume of totalBlocks
// sectors of blockSize bytes each.
func NewBlankMemoryStorage(blockSize uint, totalBlocks uint32) *MemoryStorage {
	data := make([]byte, uint64(blockSize)*uint64(totalBlocks))
	storage, _ := NewMemoryStorage(data, blockSize)
	return storage
}

func (m *MemoryStorage) BlockSize() uint { return m.blockSize }
func (m *MemoryStorage) Size() int64     { return m.size }
func (m *MemoryStorage) Flush() error    { return nil }

func (m *MemoryStorage) totalBlocks() uint32 {
	return uint32(m.size / int64(m.blockSize))
}

func (m *MemoryStorage) ReadBlocks(start uint32, dst []byte) error {
	numBlocks := uint32((uint(len(dst)) + m.blockSize - 1) / m.blockSize)
	if err := checkRange(start, m.blockSize, m.totalBlocks(), numBlocks); err != nil {
		return err
	}
	if _, err := m.stream.Seek(int64(start)*int64(m.blockSize), io.SeekStart); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	if _, err := io.ReadFull(m.stream, dst); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	return nil
}

func (m *MemoryStorage) WriteBlocks(start uint32, src []byte) error {
	numBlocks := uint32((uint(len(src)) + m.blockSize - 1) / m.blockSize)
	if err := checkRange(start, m.blockSize, m.totalBlocks(), numBlocks); err != nil {
		return err
	}

	padded := src
	if rem := uint(len(src)) % m.blockSize; rem != 0 {
		padded = make([]byte, uint(len(src))+(m.blockSize-rem))
		copy(padded, src)
	}

	if _, err := m.stream.Seek(int64(start)*int64(m.blockSize), io.SeekStart); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	if _, err := m.stream.Write(padded); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	return nil
}
