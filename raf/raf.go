// Package raf implements RandomAccessFile: the byte-addressable,
// length-fixed container every other layer of the archive engine (crypto,
// DualFile, DPFS, IVFS, FAT, FsMeta) is built on top of.
//
// A RAF behaves like a fixed-size []byte, except every read/write can
// fail (host I/O, or a cryptographic/hash check further down the stack),
// and composed RAFs use Commit to propagate integrity metadata upward:
// DiskFile's Commit is its underlying file's Commit; DualFile's Commit
// flips the active side; IVFS's Commit recomputes dirty hashes.
package raf

import "github.com/go-save3ds/save3ds/save3derr"

// RAF is the interface every layer implements and consumes.
type RAF interface {
	// Len returns the fixed length of this file, in bytes.
	Len() int64

	// ReadAt reads len(buf) bytes starting at off. off+len(buf) must not
	// exceed Len().
	ReadAt(off int64, buf []byte) error

	// WriteAt writes buf starting at off. off+len(buf) must not exceed
	// Len().
	WriteAt(off int64, buf []byte) error

	// Commit flushes changes so that a fresh RAF reopened over the same
	// backing storage observes them. Some layers also commit the RAFs
	// they wrap (DiskFile, SignedFile, DualFile, DPFS, FAT files), while
	// SubFile's Commit does nothing, so where a stack contains a SubFile
	// the caller drives the order itself (see the archive package's
	// Commit ordering).
	Commit() error
}

func checkBounds(layer string, length int64, off int64, n int) error {
	if off < 0 || n < 0 || off+int64(n) > length {
		return save3derr.New(save3derr.OutOfBound, layer, "")
	}
	return nil
}
