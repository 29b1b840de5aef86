package raf

import (
	"io"
	"os"

	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/save3derr"
)

// OSFile is a RAF backed by a byte range of a real host file: reads and
// writes go straight to *os.File, and host errors are wrapped as IoError
// before being propagated.
type OSFile struct {
	f      *os.File
	base   int64
	length int64
	owned  bool // Close() closes f iff this OSFile opened it itself
}

var _ RAF = (*OSFile)(nil)

// Open opens path, which must already exist, and exposes the whole file
// as a RAF whose length is the file's size at the time of opening.
func Open(path string, readonly bool) (*OSFile, error) {
	flag := os.O_RDWR
	if readonly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, save3derr.Wrap("raf/osfile", 0, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, save3derr.Wrap("raf/osfile", 0, err)
	}
	mlog.Printf2("raf/osfile", "raf.Open %v len=%d", path, info.Size())
	return &OSFile{f: f, length: info.Size(), owned: true}, nil
}

// Create creates (truncating if present) a host file of exactly length
// bytes and exposes it as a RAF.
func Create(path string, length int64) (*OSFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, save3derr.Wrap("raf/osfile", 0, err)
	}
	if err := f.Truncate(length); err != nil {
		f.Close()
		return nil, save3derr.Wrap("raf/osfile", 0, err)
	}
	mlog.Printf2("raf/osfile", "raf.Create %v len=%d", path, length)
	return &OSFile{f: f, length: length, owned: true}, nil
}

// FromFile wraps an already-open *os.File, exposing [base, base+length).
// Close is a no-op; the caller retains ownership of f.
func FromFile(f *os.File, base, length int64) *OSFile {
	return &OSFile{f: f, base: base, length: length}
}

func (self *OSFile) Len() int64 {
	return self.length
}

func (self *OSFile) ReadAt(off int64, buf []byte) error {
	if err := checkBounds("raf/osfile", self.length, off, len(buf)); err != nil {
		return err
	}
	n, err := self.f.ReadAt(buf, self.base+off)
	if err != nil && err != io.EOF {
		return save3derr.Wrap("raf/osfile", self.base+off, err)
	}
	if n != len(buf) {
		return save3derr.Wrap("raf/osfile", self.base+off, io.ErrUnexpectedEOF)
	}
	return nil
}

func (self *OSFile) WriteAt(off int64, buf []byte) error {
	if err := checkBounds("raf/osfile", self.length, off, len(buf)); err != nil {
		return err
	}
	_, err := self.f.WriteAt(buf, self.base+off)
	if err != nil {
		return save3derr.Wrap("raf/osfile", self.base+off, err)
	}
	return nil
}

func (self *OSFile) Commit() error {
	if err := self.f.Sync(); err != nil {
		return save3derr.Wrap("raf/osfile", self.base, err)
	}
	return nil
}

// Close releases the underlying host file descriptor, if this OSFile
// owns it (i.e. it was returned by Open or Create).
func (self *OSFile) Close() error {
	if !self.owned {
		return nil
	}
	return self.f.Close()
}
