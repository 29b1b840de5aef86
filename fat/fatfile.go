package fat

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

// File is a logical RAF built by traversing a chain of fixed-size blocks
// inside a Table's data region. Random access keeps a one-entry cursor
// cache (last block visited, its position in the chain) so sequential
// access doesn't re-walk the chain from the head every call.
type File struct {
	table  *Table
	head   uint32
	length int64

	cursorPos   int    // block position within the chain (0-based)
	cursorBlock uint32 // block index at cursorPos; 0 if cache empty
}

var _ raf.RAF = (*File)(nil)

// OpenFile wraps an existing chain starting at head with a logical
// length.
func OpenFile(table *Table, head uint32, length int64) *File {
	return &File{table: table, head: head, length: length}
}

// Head returns the chain's head block index, 0 for a zero-length file.
func (self *File) Head() uint32 {
	return self.head
}

func (self *File) Len() int64 {
	return self.length
}

// blockAt returns the block index at chain position pos (0-based),
// walking forward from the cursor cache when pos is ahead of it.
func (self *File) blockAt(pos int) (uint32, error) {
	if self.head == 0 {
		return 0, save3derr.New(save3derr.OutOfBound, "fat", "empty chain")
	}
	start := 0
	cur := self.head
	if self.cursorBlock != 0 && self.cursorPos <= pos {
		start = self.cursorPos
		cur = self.cursorBlock
	}
	for i := start; i < pos; i++ {
		next, err := self.table.nextBlock(cur)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return 0, save3derr.New(save3derr.OutOfBound, "fat", "chain shorter than logical length implies")
		}
		cur = next
	}
	self.cursorPos = pos
	self.cursorBlock = cur
	return cur, nil
}

func (self *File) ReadAt(off int64, buf []byte) error {
	return self.do(off, buf, false)
}

func (self *File) WriteAt(off int64, buf []byte) error {
	return self.do(off, buf, true)
}

func (self *File) blockLen() int64 {
	return int64(self.table.blockLen)
}

func (self *File) do(off int64, buf []byte, write bool) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "fat", "")
	}
	bl := self.blockLen()
	beginPos := int(off / bl)
	endPos := int((end + bl - 1) / bl)
	for pos := beginPos; pos < endPos; pos++ {
		block, err := self.blockAt(pos)
		if err != nil {
			return err
		}
		blockBegin := int64(pos) * bl
		blockEnd := blockBegin + bl
		dataBegin := max64(blockBegin, off)
		dataEnd := min64(blockEnd, end)
		dataOffset := int64(block-1)*bl + (dataBegin - blockBegin)
		slice := buf[dataBegin-off : dataEnd-off]
		if write {
			if err := self.table.data.WriteAt(dataOffset, slice); err != nil {
				return err
			}
		} else {
			if err := self.table.data.ReadAt(dataOffset, slice); err != nil {
				return err
			}
		}
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// SetLength grows or shrinks the chain to match newLen, allocating or
// freeing whole blocks as needed.
func (self *File) SetLength(newLen int64) error {
	bl := self.blockLen()
	oldBlocks := int((self.length + bl - 1) / bl)
	newBlocks := int((newLen + bl - 1) / bl)

	if newBlocks == oldBlocks {
		self.length = newLen
		return nil
	}
	if newBlocks < oldBlocks {
		if newBlocks == 0 {
			if err := self.table.Free(self.head); err != nil {
				return err
			}
			self.head = 0
		} else {
			tail, err := self.blockAt(newBlocks - 1)
			if err != nil {
				return err
			}
			rest, err := self.table.nextBlock(tail)
			if err != nil {
				return err
			}
			if err := self.table.writeEntry(tail, entry{U: encodeLink(0, true), V: boolFlag(newBlocks == 1)}); err != nil {
				return err
			}
			if rest != 0 {
				if err := self.table.Free(rest); err != nil {
					return err
				}
			}
		}
		self.cursorBlock = 0
		self.length = newLen
		mlog.Printf2("fat/fatfile", "fat.File.SetLength shrink to %d blocks", newBlocks)
		return nil
	}

	needed := newBlocks - oldBlocks
	added, err := self.table.Allocate(needed)
	if err != nil {
		return err
	}
	if self.head == 0 {
		self.head = added
	} else {
		tail, err := self.blockAt(oldBlocks - 1)
		if err != nil {
			return err
		}
		if err := self.table.writeEntry(tail, entry{U: encodeLink(added, false)}); err != nil {
			return err
		}
		if needed == 1 {
			// added is no longer a chain of its own, so drop its singleton flag.
			if err := self.table.writeEntry(added, entry{U: encodeLink(0, true)}); err != nil {
				return err
			}
		}
	}
	self.cursorBlock = 0
	self.length = newLen
	mlog.Printf2("fat/fatfile", "fat.File.SetLength grow to %d blocks", newBlocks)
	return nil
}

func (self *File) Commit() error {
	return self.table.data.Commit()
}
