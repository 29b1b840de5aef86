// Package dualfile implements the A/B toggle RAF layer: two data RAFs of
// equal length plus a 1-byte selector held in a small external RAF,
// where writes land on the inactive side and Commit flips which side is
// active.
//
// Commit copies the whole active side onto the inactive side after
// flipping, rather than only the byte ranges a write touched, which
// keeps both sides byte-identical at rest after every commit.
package dualfile

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

// File is a RAF that reads from whichever of two equal-length data RAFs
// the external selector currently names, and buffers writes on the other
// side until Commit flips the selector.
type File struct {
	selector raf.RAF
	pair     [2]raf.RAF
	modified bool
	length   int64
}

var _ raf.RAF = (*File)(nil)

// New wraps a 1-byte selector RAF and a pair of equal-length data RAFs.
func New(selector raf.RAF, pair [2]raf.RAF) (*File, error) {
	if selector.Len() != 1 {
		return nil, save3derr.New(save3derr.BadFormat, "dualfile", "selector must be 1 byte")
	}
	length := pair[0].Len()
	if pair[1].Len() != length {
		return nil, save3derr.New(save3derr.BadFormat, "dualfile", "pair length mismatch")
	}
	return &File{selector: selector, pair: pair, length: length}, nil
}

func (self *File) activeIndex() (byte, error) {
	var sel [1]byte
	if err := self.selector.ReadAt(0, sel[:]); err != nil {
		return 0, err
	}
	return sel[0] & 1, nil
}

func (self *File) Len() int64 {
	return self.length
}

func (self *File) ReadAt(off int64, buf []byte) error {
	if off < 0 || off+int64(len(buf)) > self.length {
		return save3derr.New(save3derr.OutOfBound, "dualfile", "")
	}
	active, err := self.activeIndex()
	if err != nil {
		return err
	}
	return self.pair[active].ReadAt(off, buf)
}

// WriteAt writes to the inactive side. The active side is left untouched
// until Commit, so a crash before Commit leaves the previously-committed
// image intact.
func (self *File) WriteAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "dualfile", "")
	}
	active, err := self.activeIndex()
	if err != nil {
		return err
	}
	inactive := 1 - active
	self.modified = true
	return self.pair[inactive].WriteAt(off, buf)
}

// Commit flushes the inactive side, flips the selector, commits the
// selector RAF, then mirrors the newly-active content back onto the
// now-inactive side so both are byte-identical at rest.
func (self *File) Commit() error {
	if !self.modified {
		return nil
	}
	mlog.Printf2("dualfile/dualfile", "dualfile.Commit")

	active, err := self.activeIndex()
	if err != nil {
		return err
	}
	inactive := 1 - active

	if err := self.pair[inactive].Commit(); err != nil {
		return err
	}
	if err := self.selector.WriteAt(0, []byte{inactive}); err != nil {
		return err
	}
	if err := self.selector.Commit(); err != nil {
		return err
	}

	buf := make([]byte, self.length)
	if err := self.pair[inactive].ReadAt(0, buf); err != nil {
		return err
	}
	if err := self.pair[active].WriteAt(0, buf); err != nil {
		return err
	}
	if err := self.pair[active].Commit(); err != nil {
		return err
	}

	self.modified = false
	return nil
}
