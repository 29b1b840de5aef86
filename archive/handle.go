package archive

import (
	"github.com/go-save3ds/save3ds/fsmeta"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

// DirHandle is a view into one directory of an open archive; it
// re-looks-up its ino's children from the shared fsmeta.Meta on every
// call rather than caching, so other handles' mutations become visible
// immediately.
type DirHandle struct {
	meta *fsmeta.Meta
	ino  uint32
}

// FileHandle is a reference-counted-in-spirit view into one file.
type FileHandle struct {
	meta *fsmeta.Meta
	ino  uint32
}

func newDirHandle(meta *fsmeta.Meta, ino uint32) *DirHandle   { return &DirHandle{meta: meta, ino: ino} }
func newFileHandle(meta *fsmeta.Meta, ino uint32) *FileHandle { return &FileHandle{meta: meta, ino: ino} }

// OpenSubDir resolves name (a host-supplied, possibly \xHH-escaped
// display name) as a subdirectory of self.
func (self *DirHandle) OpenSubDir(name string) (*DirHandle, error) {
	raw, err := DecodeName(name)
	if err != nil {
		return nil, err
	}
	ino, isDir, err := self.meta.Open(self.ino, raw)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, notFoundErr(name)
	}
	return newDirHandle(self.meta, ino), nil
}

// OpenSubFile resolves name as a file of self.
func (self *DirHandle) OpenSubFile(name string) (*FileHandle, error) {
	raw, err := DecodeName(name)
	if err != nil {
		return nil, err
	}
	ino, isDir, err := self.meta.Open(self.ino, raw)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, notFoundErr(name)
	}
	return newFileHandle(self.meta, ino), nil
}

// ListSubDir returns the display names of self's subdirectories.
func (self *DirHandle) ListSubDir() ([]string, error) {
	return self.listNames(true)
}

// ListSubFile returns the display names of self's files.
func (self *DirHandle) ListSubFile() ([]string, error) {
	return self.listNames(false)
}

func (self *DirHandle) listNames(dirs bool) ([]string, error) {
	entries, err := self.meta.List(self.ino)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir == dirs {
			out = append(out, EncodeName(e.Name))
		}
	}
	return out, nil
}

// CreateSubDir creates and returns a new subdirectory.
func (self *DirHandle) CreateSubDir(name string) (*DirHandle, error) {
	raw, err := DecodeName(name)
	if err != nil {
		return nil, err
	}
	ino, err := self.meta.CreateDir(self.ino, raw)
	if err != nil {
		return nil, err
	}
	return newDirHandle(self.meta, ino), nil
}

// CreateSubFile creates a new file of the given size. A trailing
// "\+N" suffix on name overrides size with N, letting a host request
// a file's initial size as part of its name.
func (self *DirHandle) CreateSubFile(name string, size int64) (*FileHandle, error) {
	base, suffixSize, hasSize, err := ParseCreateSizeSuffix(name)
	if err != nil {
		return nil, err
	}
	if hasSize {
		name, size = base, suffixSize
	}
	raw, err := DecodeName(name)
	if err != nil {
		return nil, err
	}
	ino, err := self.meta.CreateFile(self.ino, raw, size)
	if err != nil {
		return nil, err
	}
	return newFileHandle(self.meta, ino), nil
}

// Rename moves self under newParent with newName.
func (self *DirHandle) Rename(newParent *DirHandle, newName string) error {
	raw, err := DecodeName(newName)
	if err != nil {
		return err
	}
	return self.meta.Rename(self.ino, newParent.ino, raw)
}

// Delete removes self, which must be empty.
func (self *DirHandle) Delete() error {
	return self.meta.RemoveDir(self.ino)
}

// Ino returns the directory's fsmeta ino, for callers that need identity.
func (self *DirHandle) Ino() uint32 { return self.ino }

func (self *FileHandle) data() (raf.RAF, error) {
	return self.meta.FileData(self.ino)
}

// Len returns the file's current logical size.
func (self *FileHandle) Len() (int64, error) {
	d, err := self.data()
	if err != nil {
		return 0, err
	}
	return d.Len(), nil
}

func (self *FileHandle) ReadAt(off int64, buf []byte) error {
	d, err := self.data()
	if err != nil {
		return err
	}
	return d.ReadAt(off, buf)
}

func (self *FileHandle) WriteAt(off int64, buf []byte) error {
	d, err := self.data()
	if err != nil {
		return err
	}
	return d.WriteAt(off, buf)
}

// Resize changes the file's logical length; BrokenFixedSize for extdata.
func (self *FileHandle) Resize(n int64) error {
	return self.meta.ResizeFile(self.ino, n)
}

// Rename moves self under newParent with newName.
func (self *FileHandle) Rename(newParent *DirHandle, newName string) error {
	raw, err := DecodeName(newName)
	if err != nil {
		return err
	}
	return self.meta.Rename(self.ino, newParent.ino, raw)
}

// Delete removes self and frees its storage.
func (self *FileHandle) Delete() error {
	return self.meta.RemoveFile(self.ino)
}

func notFoundErr(name string) error {
	return save3derr.New(save3derr.NotFound, "archive", name)
}
