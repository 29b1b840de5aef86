// Package fsmeta implements the hashed directory and file index tables
// that live inside an archive's FAT-backed streams. Directories and
// files are modeled as concrete record types that share only the
// hash-table mechanics through a small generic core (table.go), which
// keeps the entry layouts readable while avoiding duplicating
// bucket/free-list logic twice.
package fsmeta

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

const nameLen = 16

// DirEntrySize and FileEntrySize are the on-disk record sizes, exported
// so the archive facade can compute region layouts without duplicating
// the struct definitions.
var (
	DirEntrySize  = raf.StructSize(&DirEntry{})
	FileEntrySize = raf.StructSize(&FileEntry{})
)

// RootIno is the reserved ino of the root directory.
const RootIno = 1

// DirEntry is one directory table record. FirstSubDir/FirstSubFile head
// singly-linked sibling lists (threaded via NextSibling on the child
// records) enumerated by List; these are independent of the hash chain
// used for name lookup.
type DirEntry struct {
	Name         [nameLen]byte
	ParentIno    uint32
	NextInHash   uint32
	FirstSubDir  uint32
	FirstSubFile uint32
	NextSibling  uint32
}

func (e *DirEntry) getParent() uint32          { return e.ParentIno }
func (e *DirEntry) setParent(v uint32)         { e.ParentIno = v }
func (e *DirEntry) getName() [nameLen]byte     { return e.Name }
func (e *DirEntry) setName(v [nameLen]byte)    { e.Name = v }
func (e *DirEntry) getNextHash() uint32        { return e.NextInHash }
func (e *DirEntry) setNextHash(v uint32)       { e.NextInHash = v }

// FileEntry is one file table record. A file at or below the inline-data
// threshold keeps its bytes in the shared inline table (Inline == 1);
// otherwise its data lives in the FAT table. Either way BlockIndex is the
// head of the file's chain in that table (0 for an empty inline file).
type FileEntry struct {
	Name        [nameLen]byte
	ParentIno   uint32
	NextInHash  uint32
	NextSibling uint32
	Inline      uint32
	BlockIndex  uint32
	Size        uint64
}

func (e *FileEntry) getParent() uint32       { return e.ParentIno }
func (e *FileEntry) setParent(v uint32)      { e.ParentIno = v }
func (e *FileEntry) getName() [nameLen]byte  { return e.Name }
func (e *FileEntry) setName(v [nameLen]byte) { e.Name = v }
func (e *FileEntry) getNextHash() uint32     { return e.NextInHash }
func (e *FileEntry) setNextHash(v uint32)    { e.NextInHash = v }

func bucketHash(parent uint32, name [nameLen]byte, buckets int) int {
	buf := make([]byte, 4+nameLen)
	binary.LittleEndian.PutUint32(buf, parent)
	copy(buf[4:], name[:])
	h := farm.Hash32(buf)
	return int(h % uint32(buckets))
}

// EncodeName pads or rejects a pre-escaped name into the fixed 16-byte
// slot every directory/file entry reserves. The archive facade layer is
// responsible for escaping arbitrary names into ASCII before they reach
// this package.
func EncodeName(escaped string) ([nameLen]byte, error) {
	var out [nameLen]byte
	if len(escaped) > nameLen {
		return out, save3derr.New(save3derr.NameTooLong, "fsmeta", escaped)
	}
	copy(out[:], escaped)
	return out, nil
}

// DecodeName trims the trailing NUL padding from a stored name slot.
func DecodeName(raw [nameLen]byte) string {
	n := 0
	for n < nameLen && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}
