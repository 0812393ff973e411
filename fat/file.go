package fat

import (
	"io"

	"github.com/dargueta/fatdisko"
)

// File is a positional cursor over a cluster chain. Grounded on the
// read/seek/write/truncate state machine soypat-fat's File type sketches
// (and the teacher's own driverbase.go leaves as `// TODO: Read`,
// `// TODO: Write`, `// TODO: Truncate`), built out fully here since
// that's the half of the core the teacher never finished.
type File struct {
	parent  *Dir
	name    string
	chain   []ClusterID
	sfnSlot int

	firstCluster ClusterID
	size         int64
	position     int64
	mode         fatdisko.IOFlags

	curClusterIdx   int
	curCluster      ClusterID
	curClusterValid bool

	generation uint64
	dirty      bool
}

func newFile(parent *Dir, entry DirEntry, chain []ClusterID, flags fatdisko.IOFlags) *File {
	return &File{
		parent:       parent,
		name:         entry.Name,
		chain:        chain,
		sfnSlot:      entry.sfnSlot,
		firstCluster: entry.FirstCluster,
		size:         int64(entry.Size),
		mode:         flags,
		generation:   parent.eng.Generation(),
	}
}

// Name returns the name this handle was opened under.
func (f *File) Name() string { return f.name }

// Size returns the file's current length in bytes.
func (f *File) Size() int64 { return f.size }

// Position returns the current read/write cursor.
func (f *File) Position() int64 { return f.position }

func (f *File) readDataSector(sector SectorID) ([]byte, error) {
	buf := make([]byte, f.parent.eng.BootSec.BytesPerSector)
	if err := f.parent.storage.ReadBlocks(uint32(sector), buf); err != nil {
		return nil, fatdisko.ErrIoError.WrapError(err)
	}
	return buf, nil
}

func (f *File) writeDataSector(sector SectorID, buf []byte) error {
	if err := f.parent.storage.WriteBlocks(uint32(sector), buf); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	return nil
}

func (f *File) zeroDataCluster(cluster ClusterID) error {
	zero := make([]byte, f.parent.eng.BootSec.BytesPerSector)
	sector := f.parent.eng.ClusterToSector(cluster)
	for i := uint(0); i < f.parent.eng.BootSec.SectorsPerCluster; i++ {
		if err := f.writeDataSector(sector+SectorID(i), zero); err != nil {
			return err
		}
	}
	return nil
}

// clusterAt returns the idx-th (0-based) cluster in the chain, walking
// forward from the cached pointer when possible and re-walking from the
// head only when idx lies behind it.
func (f *File) clusterAt(idx int) (ClusterID, error) {
	if f.firstCluster == 0 {
		return 0, fatdisko.ErrCorrupted.WithMessage("read of an empty file's cluster chain")
	}

	cluster := f.firstCluster
	start := 0
	if f.curClusterValid && idx >= f.curClusterIdx {
		cluster = f.curCluster
		start = f.curClusterIdx
	}

	for i := start; i < idx; i++ {
		next, ok, err := f.parent.eng.Next(cluster)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fatdisko.ErrCorrupted.WithMessage("cluster chain shorter than file size")
		}
		cluster = next
	}

	f.curClusterIdx = idx
	f.curCluster = cluster
	f.curClusterValid = true
	return cluster, nil
}

// chainLength walks the whole chain and returns how many clusters it
// currently has (0 for an empty file).
func (f *File) chainLength() (int, error) {
	if f.firstCluster == 0 {
		return 0, nil
	}
	n := 1
	cluster := f.firstCluster
	for {
		next, ok, err := f.parent.eng.Next(cluster)
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		cluster = next
		n++
	}
}

// ensureClusterAllocated extends (and, for an empty file, starts) the
// chain so that cluster index idx exists, zero-filling every cluster it
// adds. Zeroing unconditionally (rather than only for sparse holes past
// the old EOF) trades a little write bandwidth for a simpler, always-
// correct allocator.
func (f *File) ensureClusterAllocated(idx int) error {
	if f.firstCluster == 0 {
		cluster, err := f.parent.eng.AllocateOne()
		if err != nil {
			return err
		}
		if err := f.zeroDataCluster(cluster); err != nil {
			return err
		}
		f.firstCluster = cluster
		f.curClusterIdx = 0
		f.curCluster = cluster
		f.curClusterValid = true
		f.dirty = true
	}

	existing, err := f.chainLength()
	if err != nil {
		return err
	}
	if existing > idx {
		return nil
	}

	tail, err := f.clusterAt(existing - 1)
	if err != nil {
		return err
	}
	for existing <= idx {
		next, err := f.parent.eng.Extend(tail)
		if err != nil {
			return err
		}
		if err := f.zeroDataCluster(next); err != nil {
			return err
		}
		tail = next
		existing++
	}
	f.curClusterIdx = existing - 1
	f.curCluster = tail
	f.curClusterValid = true
	return nil
}

// Read implements io.Reader, reading up to len(p) bytes starting at the
// current position and stopping at the file's declared size.
func (f *File) Read(p []byte) (int, error) {
	if !f.mode.Read() {
		return 0, fatdisko.ErrInvalidInput.WithMessage("file not opened for reading")
	}
	if f.position >= f.size {
		return 0, io.EOF
	}

	bpc := int64(f.parent.eng.BootSec.BytesPerCluster)
	bps := int64(f.parent.eng.BootSec.BytesPerSector)

	total := 0
	for total < len(p) && f.position < f.size {
		clusterIdx := int(f.position / bpc)
		offsetInCluster := f.position % bpc

		cluster, err := f.clusterAt(clusterIdx)
		if err != nil {
			return total, err
		}
		sector := f.parent.eng.ClusterToSector(cluster) + SectorID(offsetInCluster/bps)
		sectorOffset := offsetInCluster % bps

		buf, err := f.readDataSector(sector)
		if err != nil {
			return total, err
		}

		avail := bps - sectorOffset
		if remFile := f.size - f.position; avail > remFile {
			avail = remFile
		}
		if want := int64(len(p) - total); avail > want {
			avail = want
		}

		copy(p[total:], buf[sectorOffset:sectorOffset+avail])
		total += int(avail)
		f.position += avail
	}
	return total, nil
}

// Write implements io.Writer. Writing past the current last cluster
// extends the chain; writing past the declared size grows the file and
// writes the new size to its directory entry before Write returns.
func (f *File) Write(p []byte) (int, error) {
	if !f.mode.Write() {
		return 0, fatdisko.ErrInvalidInput.WithMessage("file not opened for writing")
	}
	if len(p) == 0 {
		return 0, nil
	}

	bpc := int64(f.parent.eng.BootSec.BytesPerCluster)
	bps := int64(f.parent.eng.BootSec.BytesPerSector)

	total := 0
	for total < len(p) {
		clusterIdx := int(f.position / bpc)
		offsetInCluster := f.position % bpc

		if err := f.ensureClusterAllocated(clusterIdx); err != nil {
			return total, err
		}
		cluster, err := f.clusterAt(clusterIdx)
		if err != nil {
			return total, err
		}
		sector := f.parent.eng.ClusterToSector(cluster) + SectorID(offsetInCluster/bps)
		sectorOffset := offsetInCluster % bps

		avail := bps - sectorOffset
		if want := int64(len(p) - total); avail > want {
			avail = want
		}

		var buf []byte
		if avail < bps {
			buf, err = f.readDataSector(sector)
			if err != nil {
				return total, err
			}
		} else {
			buf = make([]byte, bps)
		}
		copy(buf[sectorOffset:sectorOffset+avail], p[total:total+int(avail)])
		if err := f.writeDataSector(sector, buf); err != nil {
			return total, err
		}

		total += int(avail)
		f.position += avail
		if f.position > f.size {
			f.size = f.position
			f.dirty = true
		}
	}

	if f.dirty {
		if err := f.flushMetadata(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Seek implements io.Seeker. Seeking beyond the current size is
// permitted; the gap reads back as whatever the last write left there
// until a subsequent write allocates and zero-fills it.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.position + offset
	case io.SeekEnd:
		newPos = f.size + offset
	default:
		return 0, fatdisko.ErrInvalidInput.WithMessage("invalid whence")
	}
	if newPos < 0 {
		return 0, fatdisko.ErrInvalidInput.WithMessage("negative seek position")
	}
	f.position = newPos
	return f.position, nil
}

// TruncateAt truncates the file to newSize, freeing any clusters beyond
// it (or the whole chain, if newSize is 0) and flushing the updated
// size immediately. Per the spec's truncate-to-position semantics.
func (f *File) TruncateAt(newSize int64) error {
	if !f.mode.Write() {
		return fatdisko.ErrInvalidInput.WithMessage("file not opened for writing")
	}
	if newSize < 0 {
		return fatdisko.ErrInvalidInput.WithMessage("negative truncate size")
	}

	bpc := int64(f.parent.eng.BootSec.BytesPerCluster)

	if newSize == 0 {
		if f.firstCluster != 0 {
			if err := f.parent.eng.FreeChain(f.firstCluster); err != nil {
				return err
			}
		}
		f.firstCluster = 0
		f.curClusterValid = false
	} else if f.firstCluster != 0 {
		keep := uint((newSize + bpc - 1) / bpc)
		if err := f.parent.eng.TruncateChain(f.firstCluster, keep); err != nil {
			return err
		}
		if f.curClusterValid && int64(f.curClusterIdx) >= int64(keep) {
			f.curClusterValid = false
		}
	}

	f.size = newSize
	if f.position > f.size {
		f.position = f.size
	}
	f.dirty = true
	return f.flushMetadata()
}

// TruncateToZero is the convenience wrapper spec.md §9's open question
// calls for alongside TruncateAt: truncate to zero length regardless of
// the current position.
func (f *File) TruncateToZero() error {
	return f.TruncateAt(0)
}

// flushMetadata writes the file's first-cluster/size/timestamp fields
// back to its SFN directory entry, re-resolving the entry's position by
// name first if the engine's generation counter has moved since this
// handle was opened (meaning some cluster was freed and this handle's
// captured slot may now belong to a different, reused directory
// cluster).
func (f *File) flushMetadata() error {
	if f.generation != f.parent.eng.Generation() {
		entry, chain, found, err := f.parent.findEntry(f.name)
		if err != nil {
			return err
		}
		if !found {
			return fatdisko.ErrNotFound
		}
		f.sfnSlot = entry.sfnSlot
		f.chain = chain
		f.generation = f.parent.eng.Generation()
	} else {
		chain, err := f.parent.chain()
		if err != nil {
			return err
		}
		f.chain = chain
	}

	raw, ok, err := f.parent.readSlotRaw(f.chain, f.sfnSlot)
	if err != nil || !ok {
		return fatdisko.ErrCorrupted.WithMessage("file's directory entry vanished")
	}
	raw.SetFirstCluster(f.firstCluster)
	raw.FileSize = uint32(f.size)

	now := f.parent.time.CurrentDateTime()
	raw.WriteDate = fatdisko.DOSDate(now)
	raw.WriteTime = fatdisko.DOSTime(now)
	raw.LastAccessDate = fatdisko.DOSDate(now)

	if err := f.parent.writeSlotRaw(f.chain, f.sfnSlot, raw); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Flush writes any pending size/time update and asks the engine to
// commit dirty FAT sectors to every mirror.
func (f *File) Flush() error {
	if f.dirty {
		if err := f.flushMetadata(); err != nil {
			return err
		}
	}
	return f.parent.eng.FlushFAT()
}

// Close is an alias for Flush; this engine has no separate descriptor
// table to release.
func (f *File) Close() error { return f.Flush() }
