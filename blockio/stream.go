package blockio

import (
	"io"

	"github.com/dargueta/fatdisko"
)

// Stream wraps a BlockStorage behind a PageBuffer to expose an ordinary
// io.ReadWriteSeeker over a byte range, for CLI/host code that wants
// stream semantics without touching sector boundaries. Grounded on the
// teacher's file_systems/common/basicstream.BasicStream, which does the
// same thing over a whole BlockCache rather than a single PageBuffer.
type Stream struct {
	buf      *PageBuffer
	size     int64
	position int64
}

// NewStream creates a Stream of the given size (bytes) over storage.
// size must be within [0, storage.Size()].
func NewStream(storage BlockStorage, size int64) (*Stream, error) {
	if size < 0 || size > storage.Size() {
		return nil, fatdisko.ErrInvalidInput.WithMessage("stream size out of range")
	}
	return &Stream{buf: NewPageBuffer(storage, 1), size: size}, nil
}

func (s *Stream) convertOffset(offset int64) (pageNum uint32, inPage int) {
	pageSize := int64(s.buf.PageSize())
	return uint32(offset / pageSize), int(offset % pageSize)
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.position + offset
	case io.SeekEnd:
		newPos = s.size + offset
	default:
		return 0, fatdisko.ErrInvalidInput.WithMessage("invalid whence")
	}
	if newPos < 0 {
		return 0, fatdisko.ErrInvalidInput.WithMessage("negative seek position")
	}
	s.position = newPos
	return newPos, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	if s.position >= s.size {
		return 0, io.EOF
	}
	toRead := int64(len(p))
	if remaining := s.size - s.position; toRead > remaining {
		toRead = remaining
	}

	total := 0
	for int64(total) < toRead {
		pageNum, inPage := s.convertOffset(s.position)
		if err := s.buf.Load(pageNum); err != nil {
			return total, err
		}
		chunk := copy(p[total:toRead], s.buf.Bytes()[inPage:])
		total += chunk
		s.position += int64(chunk)
	}
	return total, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		pageNum, inPage := s.convertOffset(s.position)
		if err := s.buf.Load(pageNum); err != nil {
			return total, err
		}
		var chunk int
		if err := s.buf.Modify(func(data []byte) {
			chunk = copy(data[inPage:], p[total:])
		}); err != nil {
			return total, err
		}
		total += chunk
		s.position += int64(chunk)
		if s.position > s.size {
			s.size = s.position
		}
		if err := s.buf.Flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close flushes any pending modifications. The stream must not be used
// for I/O afterward.
func (s *Stream) Close() error {
	return s.buf.Flush()
}
