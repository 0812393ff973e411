package fat

import (
	"strings"
	"time"
	"unicode"

	"github.com/dargueta/fatdisko"
	"github.com/dargueta/fatdisko/blockio"
)

// DirEntry is the user-facing, LFN-assembled view of one directory
// slot. Grounded on the teacher's file_systems/fat/dirent.go Dirent
// type, reworked from an os.FileInfo adapter into a plain value (this
// engine has no driver-wide FileInfo/FileStat surface to satisfy) and
// extended with the LFN name the teacher's own Name() never assembled.
type DirEntry struct {
	Name         string
	Attr         uint8
	FirstCluster ClusterID
	Size         uint32
	CreatedAt    time.Time
	ModifiedAt   time.Time
	AccessedAt   time.Time

	sfnSlot   int
	shortName string
}

func (e DirEntry) IsDir() bool       { return e.Attr&AttrDirectory != 0 }
func (e DirEntry) IsReadOnly() bool  { return e.Attr&AttrReadOnly != 0 }
func (e DirEntry) IsHidden() bool    { return e.Attr&AttrHidden != 0 }
func (e DirEntry) IsSystem() bool    { return e.Attr&AttrSystem != 0 }

// Dir is a cloneable view into a directory: either the FAT32 root
// cluster chain, a subdirectory cluster chain, or (chainHead == 0) the
// fixed-size FAT12/16 root region. Grounded on the teacher's FATDriver
// methods in file_systems/fat/driverbase.go, split out of the monolithic
// driver into its own handle type the way soypat-fat separates Dir from
// the filesystem object.
type Dir struct {
	eng       *Engine
	storage   blockio.BlockStorage
	chainHead ClusterID
	time      fatdisko.TimeProvider
	oem       fatdisko.OemCpConverter
}

// NewRootDir opens the volume's root directory: the fixed region on
// FAT12/16, the root cluster chain on FAT32.
func NewRootDir(eng *Engine, tp fatdisko.TimeProvider, oem fatdisko.OemCpConverter) *Dir {
	head := ClusterID(0)
	if eng.Type() == Type32 {
		head = eng.BootSec.RootCluster
	}
	return &Dir{eng: eng, storage: eng.Storage(), chainHead: head, time: tp, oem: oem}
}

func (d *Dir) childDir(cluster ClusterID) *Dir {
	return &Dir{eng: d.eng, storage: d.storage, chainHead: cluster, time: d.time, oem: d.oem}
}

// IsFixedRoot reports whether this Dir is the FAT12/16 fixed-size root
// region rather than a cluster chain.
func (d *Dir) IsFixedRoot() bool { return d.chainHead == 0 && d.eng.Type() != Type32 }

func (d *Dir) chain() ([]ClusterID, error) {
	if d.chainHead == 0 {
		return nil, nil
	}
	return d.eng.ListChain(d.chainHead)
}

func (d *Dir) slotsPerCluster() int { return int(d.eng.BootSec.DirentsPerCluster) }

// slotLocation returns the sector and in-sector byte offset of slot idx
// within chain (the directory's own cluster chain, or nil for the fixed
// root). ok is false once idx runs past the directory's current extent.
func (d *Dir) slotLocation(chain []ClusterID, idx int) (sector SectorID, offset uint, ok bool) {
	bps := d.eng.BootSec.BytesPerSector
	if d.IsFixedRoot() {
		if uint(idx) >= d.eng.BootSec.RootEntryCount {
			return 0, 0, false
		}
		byteOffset := uint(idx) * DirentSize
		return d.eng.BootSec.FirstRootSector + SectorID(byteOffset/bps), byteOffset % bps, true
	}

	perCluster := d.slotsPerCluster()
	clusterIdx := idx / perCluster
	if clusterIdx >= len(chain) {
		return 0, 0, false
	}
	offsetInCluster := uint(idx%perCluster) * DirentSize
	sectorWithin := offsetInCluster / bps
	return d.eng.ClusterToSector(chain[clusterIdx]) + SectorID(sectorWithin), offsetInCluster % bps, true
}

func (d *Dir) readSector(sector SectorID) ([]byte, error) {
	buf := make([]byte, d.eng.BootSec.BytesPerSector)
	if err := d.storage.ReadBlocks(uint32(sector), buf); err != nil {
		return nil, fatdisko.ErrIoError.WrapError(err)
	}
	return buf, nil
}

// writeSector writes a full sector back, immediately, per the
// directory-entry write discipline: every mutation commits through this
// path with no caching layer above it.
func (d *Dir) writeSector(sector SectorID, buf []byte) error {
	if err := d.storage.WriteBlocks(uint32(sector), buf); err != nil {
		return fatdisko.ErrIoError.WrapError(err)
	}
	return nil
}

func (d *Dir) readSlotRaw(chain []ClusterID, idx int) (RawDirent, bool, error) {
	sector, offset, ok := d.slotLocation(chain, idx)
	if !ok {
		return RawDirent{}, false, nil
	}
	buf, err := d.readSector(sector)
	if err != nil {
		return RawDirent{}, false, err
	}
	return DecodeRawDirent(buf[offset : offset+DirentSize]), true, nil
}

func (d *Dir) writeSlotBytes(chain []ClusterID, idx int, raw [DirentSize]byte) error {
	sector, offset, ok := d.slotLocation(chain, idx)
	if !ok {
		return fatdisko.ErrCorrupted.WithMessage("directory slot index out of range on write")
	}
	buf, err := d.readSector(sector)
	if err != nil {
		return err
	}
	copy(buf[offset:offset+DirentSize], raw[:])
	return d.writeSector(sector, buf)
}

func (d *Dir) writeSlotRaw(chain []ClusterID, idx int, raw RawDirent) error {
	return d.writeSlotBytes(chain, idx, raw.Encode())
}

// totalSlots returns how many 32-byte slots the directory currently
// spans, without growing it.
func (d *Dir) totalSlots(chain []ClusterID) int {
	if d.IsFixedRoot() {
		return int(d.eng.BootSec.RootEntryCount)
	}
	return len(chain) * d.slotsPerCluster()
}

// grow extends a chain-based directory by one cluster, zeroing it (the
// spec requires every newly allocated directory cluster to read back as
// immediately-free so a scan stops there), and returns the updated
// chain. Fixed roots cannot grow.
func (d *Dir) grow(chain []ClusterID) ([]ClusterID, error) {
	if d.IsFixedRoot() {
		return chain, fatdisko.ErrDirectoryFull
	}

	var newCluster ClusterID
	var err error
	if len(chain) == 0 {
		newCluster, err = d.eng.AllocateOne()
	} else {
		newCluster, err = d.eng.Extend(chain[len(chain)-1])
	}
	if err != nil {
		return chain, err
	}
	if err := d.zeroCluster(newCluster); err != nil {
		return chain, err
	}
	if len(chain) == 0 {
		d.chainHead = newCluster
	}
	return append(chain, newCluster), nil
}

func (d *Dir) zeroCluster(cluster ClusterID) error {
	zero := make([]byte, d.eng.BootSec.BytesPerSector)
	sector := d.eng.ClusterToSector(cluster)
	for i := uint(0); i < d.eng.BootSec.SectorsPerCluster; i++ {
		if err := d.writeSector(sector+SectorID(i), zero); err != nil {
			return err
		}
	}
	return nil
}

// Iter returns every live entry in the directory, LFN-assembled where an
// LFN chain is present and checksum-valid. skipDotEntries drops "." and
// ".." from the result.
func (d *Dir) Iter(skipDotEntries bool) ([]DirEntry, error) {
	chain, err := d.chain()
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	var pendingLFN [][]byte
	total := d.totalSlots(chain)

	for idx := 0; idx < total; idx++ {
		raw, ok, err := d.readSlotRaw(chain, idx)
		if err != nil {
			return nil, err
		}
		if !ok || raw.IsFree() {
			break
		}
		if raw.IsDeleted() {
			pendingLFN = nil
			continue
		}
		if raw.IsLongNamePiece() {
			sector, offset, _ := d.slotLocation(chain, idx)
			buf, err := d.readSector(sector)
			if err != nil {
				return nil, err
			}
			piece := make([]byte, DirentSize)
			copy(piece, buf[offset:offset+DirentSize])
			pendingLFN = append(pendingLFN, piece)
			continue
		}
		if raw.IsVolumeLabel() {
			pendingLFN = nil
			continue
		}

		name := formatShortName(raw, d.oem)
		if len(pendingLFN) > 0 {
			if assembled, ok := assembleLFN(pendingLFN, raw.Checksum()); ok {
				name = assembled
			}
		}
		pendingLFN = nil

		if skipDotEntries && (name == "." || name == "..") {
			continue
		}

		entries = append(entries, DirEntry{
			Name:         name,
			Attr:         raw.Attr,
			FirstCluster: raw.FirstCluster(),
			Size:         raw.FileSize,
			CreatedAt:    fatdisko.TimeFromDOS(raw.CreateDate, raw.CreateTime, raw.CreateTimeTenths),
			ModifiedAt:   fatdisko.TimeFromDOS(raw.WriteDate, raw.WriteTime, 0),
			AccessedAt:   fatdisko.DateFromDOS(raw.LastAccessDate),
			sfnSlot:      idx,
			shortName:    formatShortName(raw, d.oem),
		})
	}
	return entries, nil
}

// findEntry looks up name (case-insensitively, matching LFN name when
// present, else the formatted SFN) and returns its assembled entry along
// with the directory's chain snapshot used to compute its slot location.
func (d *Dir) findEntry(name string) (DirEntry, []ClusterID, bool, error) {
	chain, err := d.chain()
	if err != nil {
		return DirEntry{}, nil, false, err
	}
	entries, err := d.Iter(false)
	if err != nil {
		return DirEntry{}, nil, false, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return e, chain, true, nil
		}
	}
	return DirEntry{}, chain, false, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// walkTo resolves every component but the last, returning the Dir that
// should contain it and the leaf name itself.
func (d *Dir) walkTo(path string) (*Dir, string, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return nil, "", fatdisko.ErrInvalidInput.WithMessage("empty path")
	}
	cur := d
	for _, c := range components[:len(components)-1] {
		entry, _, found, err := cur.findEntry(c)
		if err != nil {
			return nil, "", err
		}
		if !found {
			return nil, "", fatdisko.ErrNotFound
		}
		if !entry.IsDir() {
			return nil, "", fatdisko.ErrNotADirectory
		}
		cur = cur.childDir(entry.FirstCluster)
	}
	return cur, components[len(components)-1], nil
}

// OpenDir resolves path (relative to d) to a subdirectory handle. An
// empty path returns d itself.
func (d *Dir) OpenDir(path string) (*Dir, error) {
	if len(splitPath(path)) == 0 {
		return d, nil
	}
	parent, leaf, err := d.walkTo(path)
	if err != nil {
		return nil, err
	}
	entry, _, found, err := parent.findEntry(leaf)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fatdisko.ErrNotFound
	}
	if !entry.IsDir() {
		return nil, fatdisko.ErrNotADirectory
	}
	return parent.childDir(entry.FirstCluster), nil
}

// OpenFile resolves path to a File handle opened with the given flags.
func (d *Dir) OpenFile(path string, flags fatdisko.IOFlags) (*File, error) {
	parent, leaf, err := d.walkTo(path)
	if err != nil {
		return nil, err
	}
	entry, chain, found, err := parent.findEntry(leaf)
	if !found {
		if err != nil {
			return nil, err
		}
		if !flags.Create() {
			return nil, fatdisko.ErrNotFound
		}
		entry, chain, err = parent.createEntry(leaf, 0)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, fatdisko.ErrIsADirectory
	}

	f := newFile(parent, entry, chain, flags)
	if flags.Truncate() {
		if err := f.TruncateAt(0); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// isValidSFNComponent reports whether name is already a clean,
// representable 8.3 short name (upper-case, legal characters, no LFN
// needed).
func isValidSFNComponent(name string) (base, ext string, ok bool) {
	if name == "" || name == "." || name == ".." {
		return "", "", name == "." || name == ".."
	}
	parts := strings.SplitN(name, ".", 2)
	base = parts[0]
	if len(parts) == 2 {
		ext = parts[1]
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 || strings.Contains(ext, ".") {
		return "", "", false
	}
	for _, r := range base + ext {
		if !isValidSFNChar(r) {
			return "", "", false
		}
	}
	return base, ext, true
}

func isValidSFNChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("$%'-_@~`!(){}^#&", r):
		return true
	}
	return false
}

// GenerateShortName derives a unique 8.3 short name for longName within
// a directory whose existing short names are passed in existingShorts
// (upper-cased "BASE.EXT" or "BASE" strings), per the numeric-tail
// algorithm: 6 leading valid characters (invalid ones, or ones oem can't
// represent, replaced with '_'), then "~N" for the smallest N making it
// unique.
func GenerateShortName(longName string, existingShorts map[string]bool, oem fatdisko.OemCpConverter) (base, ext string) {
	parts := strings.SplitN(longName, ".", 2)
	rawBase := parts[0]
	if len(parts) == 2 {
		ext = sanitizeSFNPart(parts[1], 3, oem)
	}
	sanitizedBase := sanitizeSFNPart(rawBase, 8, oem)
	if len(sanitizedBase) > 6 {
		sanitizedBase = sanitizedBase[:6]
	}

	for n := 1; n < 1_000_000; n++ {
		suffix := numericTail(n)
		candidate := sanitizedBase
		if len(candidate)+len(suffix) > 8 {
			candidate = candidate[:8-len(suffix)]
		}
		candidate += suffix
		key := candidate
		if ext != "" {
			key += "." + ext
		}
		if !existingShorts[key] {
			return candidate, ext
		}
	}
	return sanitizedBase, ext
}

func numericTail(n int) string {
	return "~" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// sanitizeSFNPart upper-cases and transliterates s into raw OEM-code-page
// bytes, up to maxLen of them, substituting '_' for any ASCII rune that
// isn't a valid SFN character and for any other rune oem can't represent
// as a byte above 0x7F. The result is a string of single-byte-per-character OEM
// bytes, not UTF-8 text -- it's meant for packing into an 11-byte SFN
// field, not for display.
func sanitizeSFNPart(s string, maxLen int, oem fatdisko.OemCpConverter) string {
	out := make([]byte, 0, maxLen)
	for _, r := range s {
		if len(out) >= maxLen {
			break
		}
		upper := unicode.ToUpper(r)
		if upper < 128 && isValidSFNChar(upper) {
			out = append(out, byte(upper))
			continue
		}
		if b, ok := oem.EncodeOEM(upper); ok && b >= 0x80 {
			out = append(out, b)
			continue
		}
		out = append(out, '_')
	}
	return string(out)
}

// findFreeRun scans chain for a run of n contiguous free/deleted slots,
// growing the directory as needed. Returns the run's starting index.
func (d *Dir) findFreeRun(chain []ClusterID, n int) (int, []ClusterID, error) {
	for {
		total := d.totalSlots(chain)
		run := 0
		for idx := 0; idx < total; idx++ {
			raw, ok, err := d.readSlotRaw(chain, idx)
			if err != nil {
				return 0, nil, err
			}
			free := !ok || raw.IsFree() || raw.IsDeleted()
			if free {
				run++
				if run == n {
					return idx - n + 1, chain, nil
				}
			} else {
				run = 0
			}
			if !ok {
				break
			}
		}

		var err error
		chain, err = d.grow(chain)
		if err != nil {
			return 0, nil, err
		}
	}
}

func existingShortNames(entries []DirEntry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		base, ext, ok := isValidSFNComponent(strings.ToUpper(e.shortName))
		if !ok {
			continue
		}
		key := base
		if ext != "" {
			key += "." + ext
		}
		out[key] = true
	}
	return out
}

// createEntry allocates directory slots for name (SFN-only if it's
// already a valid 8.3 name, otherwise an LFN chain plus a generated
// SFN), writes them, and returns the resulting entry.
func (d *Dir) createEntry(name string, attr uint8) (DirEntry, []ClusterID, error) {
	entries, err := d.Iter(false)
	if err != nil {
		return DirEntry{}, nil, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return DirEntry{}, nil, fatdisko.ErrAlreadyExists
		}
	}

	var base, ext string
	needsLFN := false
	if b, e, ok := isValidSFNComponent(name); ok && strings.ToUpper(name) == joinSFN(b, e) {
		base, ext = b, e
	} else {
		base, ext = GenerateShortName(name, existingShortNames(entries), d.oem)
		needsLFN = true
	}

	sfnFields := EncodeShortName(base, ext)
	checksum := sfnChecksum(sfnFields)

	numSlots := 1
	var lfnChain [][DirentSize]byte
	if needsLFN {
		lfnChain = EncodeLFNChain(name, checksum)
		numSlots += len(lfnChain)
	}

	chain, err := d.chain()
	if err != nil {
		return DirEntry{}, nil, err
	}
	start, chain, err := d.findFreeRun(chain, numSlots)
	if err != nil {
		return DirEntry{}, nil, err
	}

	for i, piece := range lfnChain {
		if err := d.writeSlotBytes(chain, start+i, piece); err != nil {
			return DirEntry{}, nil, err
		}
	}

	now := d.time.CurrentDateTime()
	raw := RawDirent{
		Name:             [8]byte{},
		Ext:              [3]byte{},
		Attr:             attr,
		CreateTime:       fatdisko.DOSTime(now),
		CreateDate:       fatdisko.DOSDate(now),
		CreateTimeTenths: fatdisko.DOSTimeTenths(now),
		LastAccessDate:   fatdisko.DOSDate(now),
		WriteTime:        fatdisko.DOSTime(now),
		WriteDate:        fatdisko.DOSDate(now),
	}
	copy(raw.Name[:], sfnFields[0:8])
	copy(raw.Ext[:], sfnFields[8:11])

	sfnSlot := start + len(lfnChain)
	if err := d.writeSlotRaw(chain, sfnSlot, raw); err != nil {
		return DirEntry{}, nil, err
	}

	return DirEntry{
		Name:         name,
		Attr:         attr,
		FirstCluster: 0,
		CreatedAt:    now,
		ModifiedAt:   now,
		AccessedAt:   now,
		sfnSlot:      sfnSlot,
	}, chain, nil
}

func joinSFN(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// CreateFile creates a zero-length file at path (the leaf only; all
// intermediate components must already exist).
func (d *Dir) CreateFile(path string) (*File, error) {
	parent, leaf, err := d.walkTo(path)
	if err != nil {
		return nil, err
	}
	entry, chain, err := parent.createEntry(leaf, AttrArchive)
	if err != nil {
		return nil, err
	}
	return newFile(parent, entry, chain, fatdisko.O_RDWR|fatdisko.O_CREATE), nil
}

// CreateDir creates a new subdirectory at path, wiring up its "." and
// ".." entries.
func (d *Dir) CreateDir(path string) (*Dir, error) {
	parent, leaf, err := d.walkTo(path)
	if err != nil {
		return nil, err
	}
	entry, parentChain, err := parent.createEntry(leaf, AttrDirectory)
	if err != nil {
		return nil, err
	}

	newCluster, err := parent.eng.AllocateOne()
	if err != nil {
		return nil, err
	}
	if err := parent.zeroCluster(newCluster); err != nil {
		return nil, err
	}

	child := parent.childDir(newCluster)
	now := parent.time.CurrentDateTime()
	dotFields := EncodeShortName(".", "")
	dotDot := EncodeShortName("..", "")

	selfRaw := RawDirent{Attr: AttrDirectory, CreateDate: fatdisko.DOSDate(now), WriteDate: fatdisko.DOSDate(now)}
	copy(selfRaw.Name[:], dotFields[0:8])
	copy(selfRaw.Ext[:], dotFields[8:11])
	selfRaw.SetFirstCluster(newCluster)

	parentRaw := RawDirent{Attr: AttrDirectory, CreateDate: fatdisko.DOSDate(now), WriteDate: fatdisko.DOSDate(now)}
	copy(parentRaw.Name[:], dotDot[0:8])
	copy(parentRaw.Ext[:], dotDot[8:11])
	if !parent.IsFixedRoot() {
		parentRaw.SetFirstCluster(parent.chainHead)
	}

	childChain := []ClusterID{newCluster}
	if err := child.writeSlotRaw(childChain, 0, selfRaw); err != nil {
		return nil, err
	}
	if err := child.writeSlotRaw(childChain, 1, parentRaw); err != nil {
		return nil, err
	}

	// Patch the parent's SFN entry now that we know the child's cluster.
	raw, ok, err := parent.readSlotRaw(parentChain, entry.sfnSlot)
	if err != nil || !ok {
		return nil, fatdisko.ErrCorrupted.WithMessage("new directory entry vanished")
	}
	raw.SetFirstCluster(newCluster)
	if err := parent.writeSlotRaw(parentChain, entry.sfnSlot, raw); err != nil {
		return nil, err
	}

	return child, nil
}

// Remove deletes the file or directory at path. A non-empty directory
// (anything beyond "." and "..") fails with ErrDirectoryNotEmpty.
func (d *Dir) Remove(path string) error {
	parent, leaf, err := d.walkTo(path)
	if err != nil {
		return err
	}
	entry, chain, found, err := parent.findEntry(leaf)
	if err != nil {
		return err
	}
	if !found {
		return fatdisko.ErrNotFound
	}

	if entry.IsDir() {
		child := parent.childDir(entry.FirstCluster)
		children, err := child.Iter(true)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fatdisko.ErrDirectoryNotEmpty
		}
		if err := parent.eng.FreeChain(entry.FirstCluster); err != nil {
			return err
		}
	} else if entry.FirstCluster != 0 {
		if err := parent.eng.FreeChain(entry.FirstCluster); err != nil {
			return err
		}
	}

	return parent.markSlotsDeleted(chain, entry)
}

// markSlotsDeleted marks an entry's SFN slot, and any LFN prefix
// immediately before it, as deleted (first name byte 0xE5).
func (d *Dir) markSlotsDeleted(chain []ClusterID, entry DirEntry) error {
	raw, ok, err := d.readSlotRaw(chain, entry.sfnSlot)
	if err != nil || !ok {
		return fatdisko.ErrCorrupted.WithMessage("entry vanished before delete")
	}
	raw.Name[0] = direntDeletedMarker
	if err := d.writeSlotRaw(chain, entry.sfnSlot, raw); err != nil {
		return err
	}

	for idx := entry.sfnSlot - 1; idx >= 0; idx-- {
		piece, ok, err := d.readSlotRaw(chain, idx)
		if err != nil || !ok || !piece.IsLongNamePiece() {
			break
		}
		piece.Name[0] = direntDeletedMarker
		if err := d.writeSlotRaw(chain, idx, piece); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves/renames the entry at oldPath (relative to d) to newName
// within newParent. It writes the new entries before deleting the old
// ones, per the crash-recoverable-by-scrub ordering in the design.
func (d *Dir) Rename(oldPath string, newParent *Dir, newName string) error {
	oldParent, oldLeaf, err := d.walkTo(oldPath)
	if err != nil {
		return err
	}
	entry, oldChain, found, err := oldParent.findEntry(oldLeaf)
	if err != nil {
		return err
	}
	if !found {
		return fatdisko.ErrNotFound
	}
	if _, _, exists, err := newParent.findEntry(newName); err != nil {
		return err
	} else if exists {
		return fatdisko.ErrAlreadyExists
	}

	newEntry, _, err := newParent.createEntry(newName, entry.Attr)
	if err != nil {
		return err
	}
	newChain, err := newParent.chain()
	if err != nil {
		return err
	}
	raw, ok, err := newParent.readSlotRaw(newChain, newEntry.sfnSlot)
	if err != nil || !ok {
		return fatdisko.ErrCorrupted.WithMessage("renamed entry vanished")
	}
	raw.SetFirstCluster(entry.FirstCluster)
	raw.FileSize = entry.Size
	if err := newParent.writeSlotRaw(newChain, newEntry.sfnSlot, raw); err != nil {
		return err
	}

	return oldParent.markSlotsDeleted(oldChain, entry)
}
