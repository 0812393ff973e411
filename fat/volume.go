package fat

import (
	"log/slog"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
)

// MountOptions configures Mount. The zero value mounts read-write with a
// NullTimeProvider, a LossyASCIIConverter, and the default slog logger --
// grounded on the teacher's MountFlags bitmask (api.go) and, for the
// logger field, soypat-fat's FS struct shape (fsys.log, fsys.trace),
// since the teacher itself never wires a structured logger into its FAT
// driver.
type MountOptions struct {
	Flags  fatdisko.MountFlags
	Time   fatdisko.TimeProvider
	Oem    fatdisko.OemCpConverter
	Logger *slog.Logger
}

func (o MountOptions) withDefaults() MountOptions {
	if o.Flags == 0 {
		o.Flags = fatdisko.MountFlagsAllowAll
	}
	if o.Time == nil {
		o.Time = fatdisko.NullTimeProvider{}
	}
	if o.Oem == nil {
		o.Oem = fatdisko.LossyASCIIConverter{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Volume is the mounted-filesystem handle a caller holds: a parsed BPB,
// the allocation table engine, the root directory, and the permission
// gate every mutating call passes through. Grounded on the teacher's
// BaseDriver (driver/driver.go), narrowed to this engine's Dir/File
// surface -- there's no symlink/path-spec layer to carry over (out of
// scope per spec.md §1).
type Volume struct {
	eng    *Engine
	root   *Dir
	flags  fatdisko.MountFlags
	logger *slog.Logger
}

// Mount reads the boot sector from storage, builds the allocation table
// engine, and opens the root directory.
func Mount(storage blockio.BlockStorage, opts MountOptions) (*Volume, error) {
	opts = opts.withDefaults()
	if !opts.Flags.CanRead() {
		return nil, fatdisko.ErrInvalidInput.WithMessage("MountFlags must allow at least read access")
	}

	sector0 := make([]byte, storage.BlockSize())
	if err := storage.ReadBlocks(0, sector0); err != nil {
		return nil, fatdisko.ErrIoError.WrapError(err)
	}
	bootSec, err := ParseBootSector(sector0)
	if err != nil {
		return nil, err
	}

	eng := NewEngine(storage, bootSec)
	root := NewRootDir(eng, opts.Time, opts.Oem)
	opts.Logger.Debug("mounted volume", "type", bootSec.Type, "clusters", bootSec.TotalClusters)

	return &Volume{eng: eng, root: root, flags: opts.Flags, logger: opts.Logger}, nil
}

// Engine returns the volume's allocation table engine, for callers that
// need FlushFAT, Generation, or VerifyChains directly.
func (v *Volume) Engine() *Engine { return v.eng }

// Root returns the volume's root directory handle.
func (v *Volume) Root() *Dir { return v.root }

func (v *Volume) checkWrite(op string) error {
	if !v.flags.CanWrite() {
		return fatdisko.ErrInvalidInput.WithMessage(op + ": volume is mounted read-only")
	}
	return nil
}

// OpenFile resolves path against the root and opens it with flags,
// rejecting any write-implying flag if the volume was mounted read-only.
func (v *Volume) OpenFile(path string, flags fatdisko.IOFlags) (*File, error) {
	if flags.Write() || flags.Create() {
		if err := v.checkWrite("open"); err != nil {
			return nil, err
		}
	}
	return v.root.OpenFile(path, flags)
}

// CreateFile creates path, failing if the volume can't accept new
// entries (MountFlagsAllowInsert).
func (v *Volume) CreateFile(path string) (*File, error) {
	if !v.flags.CanInsert() {
		return nil, fatdisko.ErrInvalidInput.WithMessage("create: volume does not allow new entries")
	}
	v.logger.Debug("create file", "path", path)
	return v.root.CreateFile(path)
}

// CreateDir creates path as a new directory, same permission gate as
// CreateFile.
func (v *Volume) CreateDir(path string) (*Dir, error) {
	if !v.flags.CanInsert() {
		return nil, fatdisko.ErrInvalidInput.WithMessage("mkdir: volume does not allow new entries")
	}
	v.logger.Debug("create dir", "path", path)
	return v.root.CreateDir(path)
}

// Remove deletes path, gated on MountFlagsAllowDelete.
func (v *Volume) Remove(path string) error {
	if !v.flags.CanDelete() {
		return fatdisko.ErrInvalidInput.WithMessage("remove: volume does not allow deletion")
	}
	v.logger.Debug("remove", "path", path)
	return v.root.Remove(path)
}

// Rename moves/renames path within the volume, gated on both delete (the
// source slot vacates) and insert (the destination slot is created).
func (v *Volume) Rename(oldPath, newPath string) error {
	if !v.flags.CanDelete() || !v.flags.CanInsert() {
		return fatdisko.ErrInvalidInput.WithMessage("rename: volume does not allow both delete and insert")
	}
	newParent, newLeaf, err := v.root.walkTo(newPath)
	if err != nil {
		return err
	}
	v.logger.Debug("rename", "old", oldPath, "new", newPath)
	return v.root.Rename(oldPath, newParent, newLeaf)
}

// OpenDir resolves path to a subdirectory handle.
func (v *Volume) OpenDir(path string) (*Dir, error) {
	return v.root.OpenDir(path)
}

// Flush commits all dirty FAT sectors to every mirror.
func (v *Volume) Flush() error {
	return v.eng.FlushFAT()
}
