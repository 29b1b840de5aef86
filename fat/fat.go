// Package fat implements a singly-linked block allocator (a free-list
// head plus one "next" entry per block) and the FatFile logical RAF
// built on top of it.
package fat

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

const endOfChain = uint32(1) << 31
const singletonFlag = uint32(1) << 31
const indexMask = endOfChain - 1

// entry is one FAT slot: u is the raw link word (bit31 = end-of-chain,
// low 31 bits = next block index when not end-of-chain); v is the
// singleton-flag word (bit31 set means this chain is a single block, so
// no lookup is needed to confirm it has no successor).
type entry struct {
	U uint32
	V uint32
}

const entrySize = 8 // two little-endian uint32 fields

// EntrySize is the on-disk size of one FAT entry, for callers laying out
// a table region ((totalBlocks+1) * EntrySize bytes).
const EntrySize = entrySize

// Table is the FAT allocator: entry 0 is the free-list head, entries
// 1..totalBlocks each describe one block of the data region.
type Table struct {
	table       raf.RAF
	data        raf.RAF
	blockLen    int
	totalBlocks int
	freeBlocks  int
}

// OpenTable loads a Table over an existing table RAF (totalBlocks+1
// entries, entrySize bytes each) and a data RAF of totalBlocks*blockLen
// bytes.
func OpenTable(table, data raf.RAF, blockLen, totalBlocks int) (*Table, error) {
	if blockLen <= 0 || totalBlocks < 0 {
		return nil, save3derr.New(save3derr.BadParams, "fat", "invalid block length or block count")
	}
	if table.Len() < int64(totalBlocks+1)*entrySize {
		return nil, save3derr.New(save3derr.BadFormat, "fat", "table too small for block count")
	}
	if data.Len() < int64(totalBlocks)*int64(blockLen) {
		return nil, save3derr.New(save3derr.BadFormat, "fat", "data region too small for block count")
	}
	t := &Table{table: table, data: data, blockLen: blockLen, totalBlocks: totalBlocks}
	free := 0
	cur, isEnd, err := t.readHead()
	if err != nil {
		return nil, err
	}
	for !isEnd {
		free++
		var e entry
		if err := t.readEntry(cur, &e); err != nil {
			return nil, err
		}
		cur, isEnd = decodeLink(e.U)
	}
	t.freeBlocks = free
	return t, nil
}

// FormatTable initializes a fresh table: every block chained onto the
// free list in ascending order, entry 0 pointing at block 1.
func FormatTable(table, data raf.RAF, blockLen, totalBlocks int) (*Table, error) {
	if blockLen <= 0 || totalBlocks < 0 {
		return nil, save3derr.New(save3derr.BadParams, "fat", "invalid block length or block count")
	}
	if table.Len() < int64(totalBlocks+1)*entrySize {
		return nil, save3derr.New(save3derr.BadFormat, "fat", "table too small for block count")
	}
	t := &Table{table: table, data: data, blockLen: blockLen, totalBlocks: totalBlocks, freeBlocks: totalBlocks}
	if totalBlocks == 0 {
		if err := t.writeHead(0, true); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err := t.writeHead(1, false); err != nil {
		return nil, err
	}
	for b := 1; b <= totalBlocks; b++ {
		next := uint32(b + 1)
		isEnd := b == totalBlocks
		if err := t.writeEntry(uint32(b), entry{U: encodeLink(next, isEnd)}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (self *Table) FreeBlocks() int {
	return self.freeBlocks
}

func (self *Table) readEntry(index uint32, e *entry) error {
	return raf.ReadStruct(self.table, int64(index)*entrySize, e)
}

func (self *Table) writeEntry(index uint32, e entry) error {
	return raf.WriteStruct(self.table, int64(index)*entrySize, &e)
}

func (self *Table) readHead() (uint32, bool, error) {
	var e entry
	if err := self.readEntry(0, &e); err != nil {
		return 0, true, err
	}
	next, isEnd := decodeLink(e.U)
	return next, isEnd || next == 0, nil
}

func (self *Table) writeHead(next uint32, isEnd bool) error {
	return self.writeEntry(0, entry{U: encodeLink(next, isEnd)})
}

func encodeLink(next uint32, isEnd bool) uint32 {
	if isEnd {
		return endOfChain
	}
	return next & indexMask
}

func decodeLink(u uint32) (next uint32, isEnd bool) {
	if u&endOfChain != 0 {
		return 0, true
	}
	return u & indexMask, false
}

// Allocate removes n blocks from the free list, links them into a new
// chain, and returns the chain's head block index. It returns NoSpace
// without mutating the table if fewer than n blocks are free.
func (self *Table) Allocate(n int) (uint32, error) {
	if n <= 0 {
		return 0, save3derr.New(save3derr.BadParams, "fat", "allocate requires n > 0")
	}
	if n > self.freeBlocks {
		return 0, save3derr.New(save3derr.NoSpace, "fat", "")
	}
	head, _, err := self.readHead()
	if err != nil {
		return 0, err
	}

	// walk the first n free-list nodes, recording each so the relinking
	// pass below never needs to re-derive an already-overwritten link.
	chainHead := head
	blocks := make([]uint32, n)
	cur := head
	for i := 0; i < n; i++ {
		blocks[i] = cur
		var e entry
		if err := self.readEntry(cur, &e); err != nil {
			return 0, err
		}
		next, isEnd := decodeLink(e.U)
		if isEnd && i != n-1 {
			return 0, save3derr.New(save3derr.BrokenFixedSize, "fat", "free list shorter than free_blocks count")
		}
		cur = next
	}
	newFreeHead := cur

	singleton := boolFlag(n == 1)
	for i, b := range blocks {
		if i == n-1 {
			if err := self.writeEntry(b, entry{U: encodeLink(0, true), V: singleton}); err != nil {
				return 0, err
			}
		} else {
			if err := self.writeEntry(b, entry{U: encodeLink(blocks[i+1], false), V: singleton}); err != nil {
				return 0, err
			}
		}
	}
	if err := self.writeHead(newFreeHead, newFreeHead == 0); err != nil {
		return 0, err
	}

	self.freeBlocks -= n
	mlog.Printf2("fat/fat", "fat.Allocate n=%d head=%d", n, chainHead)
	return chainHead, nil
}

func boolFlag(b bool) uint32 {
	if b {
		return singletonFlag
	}
	return 0
}

// Free walks chainHead to its tail and splices the whole chain onto the
// front of the free list.
func (self *Table) Free(chainHead uint32) error {
	if chainHead == 0 {
		return nil
	}
	head, _, err := self.readHead()
	if err != nil {
		return err
	}
	count := 0
	cur := chainHead
	for {
		count++
		var e entry
		if err := self.readEntry(cur, &e); err != nil {
			return err
		}
		next, isEnd := decodeLink(e.U)
		if isEnd {
			if err := self.writeEntry(cur, entry{U: encodeLink(head, head == 0)}); err != nil {
				return err
			}
			break
		}
		cur = next
	}
	if err := self.writeHead(chainHead, false); err != nil {
		return err
	}
	self.freeBlocks += count
	mlog.Printf2("fat/fat", "fat.Free head=%d count=%d", chainHead, count)
	return nil
}

// ChainLength returns the number of blocks in the chain starting at head.
func (self *Table) ChainLength(head uint32) (int, error) {
	if head == 0 {
		return 0, nil
	}
	count := 0
	cur := head
	for {
		count++
		var e entry
		if err := self.readEntry(cur, &e); err != nil {
			return 0, err
		}
		next, isEnd := decodeLink(e.U)
		if isEnd {
			return count, nil
		}
		cur = next
	}
}

// nextBlock returns the block following cur in its chain, or 0 if cur is
// the tail.
func (self *Table) nextBlock(cur uint32) (uint32, error) {
	var e entry
	if err := self.readEntry(cur, &e); err != nil {
		return 0, err
	}
	next, isEnd := decodeLink(e.U)
	if isEnd {
		return 0, nil
	}
	return next, nil
}
