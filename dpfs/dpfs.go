// Package dpfs implements the Dual-Partition File System layer: two
// block-granular data partitions and a selector bitmap picking, per
// block, which partition is currently active.
//
// The selector bitmap is expected to be held in a RAF with its own
// atomicity guarantee (a dualfile.File) rather than a bare backing
// file; dpfs.File only requires something satisfying raf.RAF, so the
// caller wires that up.
package dpfs

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
)

// File exposes a single logical RAF of length N backed by two physical
// partitions of length N, selecting between them at block granularity via
// a bitmap; writes always land on the currently-inactive side of a block
// and Commit flips the selector bits for every block touched since the
// last commit.
type File struct {
	selector  raf.RAF
	pair      [2]raf.RAF
	blockLen  int
	length    int64
	blockCnt  int
	chunkCnt  int
	dirty     []uint32 // per 32-block chunk, bit i set = block i in this chunk was written since last commit
}

var _ raf.RAF = (*File)(nil)

// New wraps a selector RAF (4*chunkCount bytes, chunkCount =
// ceil(ceil(len/blockLen)/32)) and a pair of equal-length data partitions.
func New(selector raf.RAF, pair [2]raf.RAF, blockLen int) (*File, error) {
	if blockLen <= 0 {
		return nil, save3derr.New(save3derr.BadParams, "dpfs", "block length must be positive")
	}
	length := pair[0].Len()
	if pair[1].Len() != length {
		return nil, save3derr.New(save3derr.BadFormat, "dpfs", "partition length mismatch")
	}
	blockCnt := util.DivideUp(int(length), blockLen)
	chunkCnt := util.DivideUp(blockCnt, 32)
	if int64(chunkCnt)*4 > selector.Len() {
		return nil, save3derr.New(save3derr.BadFormat, "dpfs", "selector too small for block count")
	}
	return &File{
		selector: selector,
		pair:     pair,
		blockLen: blockLen,
		length:   length,
		blockCnt: blockCnt,
		chunkCnt: chunkCnt,
		dirty:    make([]uint32, chunkCnt),
	}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (self *File) Len() int64 {
	return self.length
}

func (self *File) ReadAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "dpfs", "")
	}
	if len(buf) == 0 {
		return nil
	}
	beginBlock := int(off) / self.blockLen
	endBlock := util.DivideUp(int(end), self.blockLen)
	beginChunk := beginBlock / 32
	endChunk := util.DivideUp(endBlock, 32)

	selBytes := make([]byte, (endChunk-beginChunk)*4)
	if err := self.selector.ReadAt(int64(beginChunk)*4, selBytes); err != nil {
		return err
	}

	for chunkI := beginChunk; chunkI < endChunk; chunkI++ {
		dirty := self.dirty[chunkI]
		raw := selBytes[(chunkI-beginChunk)*4 : (chunkI-beginChunk+1)*4]
		selectWord := dirty ^ le32(raw)

		blockIBegin := util.IMax(chunkI*32, beginBlock)
		blockIEnd := util.IMin((chunkI+1)*32, endBlock)
		for blockI := blockIBegin; blockI < blockIEnd; blockI++ {
			shift := uint(31 - (blockI - chunkI*32))
			selectBit := (selectWord >> shift) & 1

			dataBegin := util.IMax(blockI*self.blockLen, int(off))
			dataEnd := util.IMin((blockI+1)*self.blockLen, int(end))
			if err := self.pair[selectBit].ReadAt(int64(dataBegin), buf[int64(dataBegin)-off:int64(dataEnd)-off]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (self *File) WriteAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "dpfs", "")
	}
	if len(buf) == 0 {
		return nil
	}
	beginBlock := int(off) / self.blockLen
	endBlock := util.DivideUp(int(end), self.blockLen)
	beginChunk := beginBlock / 32
	endChunk := util.DivideUp(endBlock, 32)

	selBytes := make([]byte, (endChunk-beginChunk)*4)
	if err := self.selector.ReadAt(int64(beginChunk)*4, selBytes); err != nil {
		return err
	}

	for chunkI := beginChunk; chunkI < endChunk; chunkI++ {
		raw := selBytes[(chunkI-beginChunk)*4 : (chunkI-beginChunk+1)*4]
		activeWord := le32(raw)
		writeWord := ^activeWord

		blockIBegin := util.IMax(chunkI*32, beginBlock)
		blockIEnd := util.IMin((chunkI+1)*32, endBlock)
		for blockI := blockIBegin; blockI < blockIEnd; blockI++ {
			shift := uint(31 - (blockI - chunkI*32))
			selectBit := (writeWord >> shift) & 1
			otherBit := 1 - selectBit

			blockBegin := blockI * self.blockLen
			blockEnd := util.IMin((blockI+1)*self.blockLen, int(self.length))
			dataBegin := util.IMax(blockBegin, int(off))
			dataEnd := util.IMin(blockEnd, int(end))

			if err := self.pair[selectBit].WriteAt(int64(dataBegin), buf[int64(dataBegin)-off:int64(dataEnd)-off]); err != nil {
				return err
			}

			keepBit := (self.dirty[chunkI] >> shift) & 1
			if keepBit == 0 {
				if dataBegin > blockBegin {
					margin := make([]byte, dataBegin-blockBegin)
					if err := self.pair[otherBit].ReadAt(int64(blockBegin), margin); err != nil {
						return err
					}
					if err := self.pair[selectBit].WriteAt(int64(blockBegin), margin); err != nil {
						return err
					}
				}
				if dataEnd < blockEnd {
					margin := make([]byte, blockEnd-dataEnd)
					if err := self.pair[otherBit].ReadAt(int64(dataEnd), margin); err != nil {
						return err
					}
					if err := self.pair[selectBit].WriteAt(int64(dataEnd), margin); err != nil {
						return err
					}
				}
			}

			self.dirty[chunkI] |= 1 << shift
		}
	}
	return nil
}

// Commit flips the selector bit for every block written since the last
// commit, then commits the selector RAF (a dualfile.File in the intended
// wiring, so this flip is itself atomic).
func (self *File) Commit() error {
	mlog.Printf2("dpfs/dpfs", "dpfs.Commit")
	for i, word := range self.dirty {
		if word == 0 {
			continue
		}
		raw := make([]byte, 4)
		if err := self.selector.ReadAt(int64(i)*4, raw); err != nil {
			return err
		}
		newWord := le32(raw) ^ word
		putLe32(raw, newWord)
		if err := self.selector.WriteAt(int64(i)*4, raw); err != nil {
			return err
		}
		self.dirty[i] = 0
	}
	if err := self.pair[0].Commit(); err != nil {
		return err
	}
	if err := self.pair[1].Commit(); err != nil {
		return err
	}
	return self.selector.Commit()
}
