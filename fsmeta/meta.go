package fsmeta

import (
	"github.com/go-save3ds/save3ds/fat"
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
)

const fileInoFlag = uint32(1) << 31

func fileIno(idx uint32) uint32  { return idx | fileInoFlag }
func isFileIno(ino uint32) bool  { return ino&fileInoFlag != 0 }
func inoIndex(ino uint32) uint32 { return ino &^ fileInoFlag }

// Entry describes one child returned by List.
type Entry struct {
	Name  string
	Ino   uint32
	IsDir bool
}

// Config bundles the backing RAFs and sizing parameters Format/OpenMeta
// need. The archive facade computes region offsets/sizes and opens each
// RAF before constructing this.
type Config struct {
	DirHash, DirEntries raf.RAF
	DirBuckets, MaxDir  int

	FileHash, FileEntries raf.RAF
	FileBuckets, MaxFile  int

	FatTable, FatData     raf.RAF
	BlockLen, TotalBlocks int

	InlineTable, InlineData raf.RAF
	InlineThreshold         int
	MaxInlineFiles          int

	// Resizable is false for extdata (file size fixed at creation) and
	// true for save data (files may grow or shrink after creation).
	Resizable bool
}

// Meta ties the directory table, file table, the FAT allocator for
// above-threshold file data, and a second FAT-shaped allocator (fixed
// InlineThreshold-sized single-block "chains") for below-threshold
// inline file data into the Open/List/Create/Resize/Rename/Remove
// operations save data and extdata archives both build on.
type Meta struct {
	dirs  *table[DirEntry, *DirEntry]
	files *table[FileEntry, *FileEntry]

	fatTable    *fat.Table
	inlineTable *fat.Table

	blockLen        int
	inlineThreshold int
	resizable       bool
}

// Format initializes every sub-structure from scratch and creates the
// root directory at RootIno.
func Format(cfg Config) (*Meta, error) {
	dirs, err := formatTable[DirEntry](cfg.DirHash, cfg.DirEntries, cfg.DirBuckets, cfg.MaxDir)
	if err != nil {
		return nil, err
	}
	files, err := formatTable[FileEntry](cfg.FileHash, cfg.FileEntries, cfg.FileBuckets, cfg.MaxFile)
	if err != nil {
		return nil, err
	}
	fatTable, err := fat.FormatTable(cfg.FatTable, cfg.FatData, cfg.BlockLen, cfg.TotalBlocks)
	if err != nil {
		return nil, err
	}
	inlineTable, err := fat.FormatTable(cfg.InlineTable, cfg.InlineData, cfg.InlineThreshold, cfg.MaxInlineFiles)
	if err != nil {
		return nil, err
	}

	m := &Meta{
		dirs: dirs, files: files,
		fatTable: fatTable, inlineTable: inlineTable,
		blockLen: cfg.BlockLen, inlineThreshold: cfg.InlineThreshold,
		resizable: cfg.Resizable,
	}
	rootIdx, err := dirs.Insert(RootIno, [nameLen]byte{})
	if err != nil {
		return nil, err
	}
	if rootIdx != RootIno {
		return nil, save3derr.New(save3derr.BrokenFixedSize, "fsmeta", "root directory did not land at the reserved ino")
	}
	mlog.Printf2("fsmeta/meta", "fsmeta.Format max_dir=%d max_file=%d", cfg.MaxDir, cfg.MaxFile)
	return m, nil
}

// OpenMeta loads an already-formatted set of tables.
func OpenMeta(cfg Config) (*Meta, error) {
	dirs, err := openTable[DirEntry](cfg.DirHash, cfg.DirEntries, cfg.DirBuckets, cfg.MaxDir)
	if err != nil {
		return nil, err
	}
	files, err := openTable[FileEntry](cfg.FileHash, cfg.FileEntries, cfg.FileBuckets, cfg.MaxFile)
	if err != nil {
		return nil, err
	}
	fatTable, err := fat.OpenTable(cfg.FatTable, cfg.FatData, cfg.BlockLen, cfg.TotalBlocks)
	if err != nil {
		return nil, err
	}
	inlineTable, err := fat.OpenTable(cfg.InlineTable, cfg.InlineData, cfg.InlineThreshold, cfg.MaxInlineFiles)
	if err != nil {
		return nil, err
	}
	return &Meta{
		dirs: dirs, files: files,
		fatTable: fatTable, inlineTable: inlineTable,
		blockLen: cfg.BlockLen, inlineThreshold: cfg.InlineThreshold,
		resizable: cfg.Resizable,
	}, nil
}

// Open resolves name inside parent, a directory ino.
func (self *Meta) Open(parent uint32, name string) (ino uint32, isDir bool, err error) {
	enc, err := EncodeName(name)
	if err != nil {
		return 0, false, err
	}
	if idx, err := self.dirs.Lookup(parent, enc); err == nil {
		return idx, true, nil
	}
	if idx, err := self.files.Lookup(parent, enc); err == nil {
		return fileIno(idx), false, nil
	}
	return 0, false, save3derr.New(save3derr.NotFound, "fsmeta", name)
}

// List returns parent's children in sibling-list order (directories then
// files; new children are linked at the head of their family's list, so
// each family comes most recently linked first).
func (self *Meta) List(parent uint32) ([]Entry, error) {
	dirEntry, err := self.dirs.Get(parent)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for cur := dirEntry.FirstSubDir; cur != 0; {
		e, err := self.dirs.Get(cur)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: DecodeName(e.Name), Ino: cur, IsDir: true})
		cur = e.NextSibling
	}
	for cur := dirEntry.FirstSubFile; cur != 0; {
		e, err := self.files.Get(cur)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: DecodeName(e.Name), Ino: fileIno(cur), IsDir: false})
		cur = e.NextSibling
	}
	return out, nil
}

// CreateDir creates an empty subdirectory of parent.
func (self *Meta) CreateDir(parent uint32, name string) (uint32, error) {
	enc, err := EncodeName(name)
	if err != nil {
		return 0, err
	}
	if _, err := self.files.Lookup(parent, enc); err == nil {
		return 0, save3derr.New(save3derr.Duplicate, "fsmeta", name)
	}
	idx, err := self.dirs.Insert(parent, enc)
	if err != nil {
		return 0, err
	}
	if err := self.linkDirSibling(parent, idx); err != nil {
		return 0, err
	}
	mlog.Printf2("fsmeta/meta", "fsmeta.CreateDir parent=%d name=%s ino=%d", parent, name, idx)
	return idx, nil
}

// CreateFile creates a new file of the given size in parent, choosing
// inline or FAT-backed storage by comparing size to InlineThreshold.
func (self *Meta) CreateFile(parent uint32, name string, size int64) (uint32, error) {
	enc, err := EncodeName(name)
	if err != nil {
		return 0, err
	}
	if _, err := self.dirs.Lookup(parent, enc); err == nil {
		return 0, save3derr.New(save3derr.Duplicate, "fsmeta", name)
	}
	idx, err := self.files.Insert(parent, enc)
	if err != nil {
		return 0, err
	}

	var blockIndex uint32
	inline := uint32(0)
	if size <= int64(self.inlineThreshold) {
		if size > 0 {
			blockIndex, err = self.inlineTable.Allocate(1)
			if err != nil {
				self.files.Remove(idx)
				return 0, err
			}
		}
		inline = 1
	} else {
		blocks := util.DivideUp(int(size), self.blockLen)
		blockIndex, err = self.fatTable.Allocate(blocks)
		if err != nil {
			self.files.Remove(idx)
			return 0, err
		}
	}

	e, err := self.files.Get(idx)
	if err != nil {
		return 0, err
	}
	e.Inline = inline
	e.BlockIndex = blockIndex
	e.Size = uint64(size)
	if err := self.files.Set(idx, e); err != nil {
		return 0, err
	}
	if err := self.linkFileSibling(parent, idx); err != nil {
		return 0, err
	}
	mlog.Printf2("fsmeta/meta", "fsmeta.CreateFile parent=%d name=%s ino=%d size=%d", parent, name, idx, size)
	return fileIno(idx), nil
}

// FileData returns a RAF over ino's bytes for reading/writing content.
func (self *Meta) FileData(ino uint32) (raf.RAF, error) {
	if !isFileIno(ino) {
		return nil, save3derr.New(save3derr.BadParams, "fsmeta", "not a file ino")
	}
	idx := inoIndex(ino)
	e, err := self.files.Get(idx)
	if err != nil {
		return nil, err
	}
	if e.Size == 0 {
		return raf.NewZeroFile(0), nil
	}
	if e.Inline == 1 {
		return fat.OpenFile(self.inlineTable, e.BlockIndex, int64(e.Size)), nil
	}
	return fat.OpenFile(self.fatTable, e.BlockIndex, int64(e.Size)), nil
}

// ResizeFile changes ino's logical size, returning BrokenFixedSize when the
// table was opened with Resizable=false (extdata semantics).
func (self *Meta) ResizeFile(ino uint32, newSize int64) error {
	if !isFileIno(ino) {
		return save3derr.New(save3derr.BadParams, "fsmeta", "not a file ino")
	}
	if !self.resizable {
		return save3derr.New(save3derr.BrokenFixedSize, "fsmeta", "file size is fixed at creation")
	}
	idx := inoIndex(ino)
	e, err := self.files.Get(idx)
	if err != nil {
		return err
	}

	if e.Inline == 1 && newSize <= int64(self.inlineThreshold) {
		e.Size = uint64(newSize)
		return self.files.Set(idx, e)
	}

	if e.Inline == 1 {
		// migrate from the inline stream to a FAT chain.
		oldData := raf.RAF(nil)
		if e.BlockIndex != 0 {
			oldData = fat.OpenFile(self.inlineTable, e.BlockIndex, int64(e.Size))
		}
		blocks := util.DivideUp(int(newSize), self.blockLen)
		newHead, err := self.fatTable.Allocate(blocks)
		if err != nil {
			return err
		}
		newFile := fat.OpenFile(self.fatTable, newHead, int64(newSize))
		if oldData != nil {
			buf := make([]byte, e.Size)
			if err := oldData.ReadAt(0, buf); err != nil {
				return err
			}
			if err := newFile.WriteAt(0, buf); err != nil {
				return err
			}
			if err := self.inlineTable.Free(e.BlockIndex); err != nil {
				return err
			}
		}
		e.Inline = 0
		e.BlockIndex = newHead
		e.Size = uint64(newSize)
		return self.files.Set(idx, e)
	}

	// already FAT-backed: grow/shrink the chain in place.
	f := fat.OpenFile(self.fatTable, e.BlockIndex, int64(e.Size))
	if err := f.SetLength(newSize); err != nil {
		return err
	}
	e.BlockIndex = f.Head()
	e.Size = uint64(newSize)
	return self.files.Set(idx, e)
}

// Rename moves ino to (newParent, newName), which must not already
// exist in newParent.
func (self *Meta) Rename(ino uint32, newParent uint32, newName string) error {
	newEnc, err := EncodeName(newName)
	if err != nil {
		return err
	}
	if isFileIno(ino) {
		idx := inoIndex(ino)
		if hit, err := self.files.Lookup(newParent, newEnc); err == nil {
			if hit == idx {
				return nil
			}
			return save3derr.New(save3derr.Duplicate, "fsmeta", "")
		}
		e, err := self.files.Get(idx)
		if err != nil {
			return err
		}
		if err := self.unlinkFileSibling(e.ParentIno, idx); err != nil {
			return err
		}
		if err := self.rehashFile(idx, e.ParentIno, e.Name, newParent, newEnc); err != nil {
			return err
		}
		e.ParentIno = newParent
		e.Name = newEnc
		if err := self.files.Set(idx, e); err != nil {
			return err
		}
		return self.linkFileSibling(newParent, idx)
	}

	idx := ino
	if idx == RootIno {
		return save3derr.New(save3derr.BadParams, "fsmeta", "cannot rename root")
	}
	if hit, err := self.dirs.Lookup(newParent, newEnc); err == nil {
		if hit == idx {
			return nil
		}
		return save3derr.New(save3derr.Duplicate, "fsmeta", "")
	}
	e, err := self.dirs.Get(idx)
	if err != nil {
		return err
	}
	if err := self.unlinkDirSibling(e.ParentIno, idx); err != nil {
		return err
	}
	if err := self.rehashDir(idx, e.ParentIno, e.Name, newParent, newEnc); err != nil {
		return err
	}
	e.ParentIno = newParent
	e.Name = newEnc
	if err := self.dirs.Set(idx, e); err != nil {
		return err
	}
	return self.linkDirSibling(newParent, idx)
}

// rehashDir splices idx out of its (oldParent, oldName) hash bucket and
// into the (newParent, newName) bucket, leaving the free list untouched.
func (self *Meta) rehashDir(idx uint32, oldParent uint32, oldName [nameLen]byte, newParent uint32, newName [nameLen]byte) error {
	if err := unlinkHashBucket(self.dirs, idx, oldParent, oldName); err != nil {
		return err
	}
	return linkHashBucket(self.dirs, idx, newParent, newName)
}

func (self *Meta) rehashFile(idx uint32, oldParent uint32, oldName [nameLen]byte, newParent uint32, newName [nameLen]byte) error {
	if err := unlinkHashBucket(self.files, idx, oldParent, oldName); err != nil {
		return err
	}
	return linkHashBucket(self.files, idx, newParent, newName)
}

func (self *Meta) linkDirSibling(parent, child uint32) error {
	p, err := self.dirs.Get(parent)
	if err != nil {
		return err
	}
	c, err := self.dirs.Get(child)
	if err != nil {
		return err
	}
	c.NextSibling = p.FirstSubDir
	p.FirstSubDir = child
	if err := self.dirs.Set(child, c); err != nil {
		return err
	}
	return self.dirs.Set(parent, p)
}

func (self *Meta) linkFileSibling(parent, child uint32) error {
	p, err := self.dirs.Get(parent)
	if err != nil {
		return err
	}
	c, err := self.files.Get(child)
	if err != nil {
		return err
	}
	c.NextSibling = p.FirstSubFile
	p.FirstSubFile = child
	if err := self.files.Set(child, c); err != nil {
		return err
	}
	return self.dirs.Set(parent, p)
}

func (self *Meta) unlinkDirSibling(parent, child uint32) error {
	p, err := self.dirs.Get(parent)
	if err != nil {
		return err
	}
	if p.FirstSubDir == child {
		c, err := self.dirs.Get(child)
		if err != nil {
			return err
		}
		p.FirstSubDir = c.NextSibling
		return self.dirs.Set(parent, p)
	}
	cur := p.FirstSubDir
	for cur != 0 {
		e, err := self.dirs.Get(cur)
		if err != nil {
			return err
		}
		if e.NextSibling == child {
			target, err := self.dirs.Get(child)
			if err != nil {
				return err
			}
			e.NextSibling = target.NextSibling
			return self.dirs.Set(cur, e)
		}
		cur = e.NextSibling
	}
	return save3derr.New(save3derr.NotFound, "fsmeta", "child not linked under parent")
}

func (self *Meta) unlinkFileSibling(parent, child uint32) error {
	p, err := self.dirs.Get(parent)
	if err != nil {
		return err
	}
	if p.FirstSubFile == child {
		c, err := self.files.Get(child)
		if err != nil {
			return err
		}
		p.FirstSubFile = c.NextSibling
		return self.dirs.Set(parent, p)
	}
	cur := p.FirstSubFile
	for cur != 0 {
		e, err := self.files.Get(cur)
		if err != nil {
			return err
		}
		if e.NextSibling == child {
			target, err := self.files.Get(child)
			if err != nil {
				return err
			}
			e.NextSibling = target.NextSibling
			return self.files.Set(cur, e)
		}
		cur = e.NextSibling
	}
	return save3derr.New(save3derr.NotFound, "fsmeta", "child not linked under parent")
}

// RemoveDir deletes an empty subdirectory.
func (self *Meta) RemoveDir(ino uint32) error {
	if ino == RootIno {
		return save3derr.New(save3derr.BadParams, "fsmeta", "cannot remove root")
	}
	e, err := self.dirs.Get(ino)
	if err != nil {
		return err
	}
	if e.FirstSubDir != 0 || e.FirstSubFile != 0 {
		return save3derr.New(save3derr.NotEmpty, "fsmeta", "")
	}
	if err := self.unlinkDirSibling(e.ParentIno, ino); err != nil {
		return err
	}
	return self.dirs.Remove(ino)
}

// RemoveFile deletes a file and frees its data storage.
func (self *Meta) RemoveFile(ino uint32) error {
	if !isFileIno(ino) {
		return save3derr.New(save3derr.BadParams, "fsmeta", "not a file ino")
	}
	idx := inoIndex(ino)
	e, err := self.files.Get(idx)
	if err != nil {
		return err
	}
	if e.BlockIndex != 0 {
		if e.Inline == 1 {
			if err := self.inlineTable.Free(e.BlockIndex); err != nil {
				return err
			}
		} else {
			if err := self.fatTable.Free(e.BlockIndex); err != nil {
				return err
			}
		}
	}
	if err := self.unlinkFileSibling(e.ParentIno, idx); err != nil {
		return err
	}
	return self.files.Remove(idx)
}
