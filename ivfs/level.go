// Package ivfs implements the DIFI hash-tree verification layer: a data
// RAF checked block-by-block against a parent RAF of SHA-256 hashes,
// with per-block cached verification status. Chain composes several
// levels bottom-up into a multi-tier tree anchored by a small root hash.
package ivfs

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
	sha256simd "github.com/minio/sha256-simd"
)

const hashLen = 32

type blockStatus uint8

const (
	statusUnverified blockStatus = 0
	statusVerified   blockStatus = 1
	statusModified   blockStatus = 2
	statusBroken     blockStatus = 3
)

// Level is a single hash-tree level: a data RAF of length len, verified
// against SHA-256 hashes for each block_len-sized block stored in a
// parent RAF (fan-in = block_len/32 blocks per parent-level block).
type Level struct {
	hash     raf.RAF
	data     raf.RAF
	blockLen int
	length   int64
	status   []blockStatus
}

var _ raf.RAF = (*Level)(nil)

// New wraps data with hash-tree verification against hash, which must
// hold at least 32 bytes per block of data.
func New(hash, data raf.RAF, blockLen int) (*Level, error) {
	if blockLen <= 0 {
		return nil, save3derr.New(save3derr.BadParams, "ivfs", "block length must be positive")
	}
	length := data.Len()
	blockCount := util.DivideUp(int(length), blockLen)
	if int64(blockCount)*hashLen > hash.Len() {
		return nil, save3derr.New(save3derr.BadFormat, "ivfs", "hash RAF too small for block count")
	}
	return &Level{
		hash:     hash,
		data:     data,
		blockLen: blockLen,
		length:   length,
		status:   make([]blockStatus, blockCount),
	}, nil
}

func (self *Level) Len() int64 {
	return self.length
}

func (self *Level) blockRange(off, end int64) (int, int) {
	begin := int(off) / self.blockLen
	last := util.DivideUp(int(end), self.blockLen)
	return begin, last
}

func (self *Level) blockDataRange(block int) (int, int) {
	begin := block * self.blockLen
	end := util.IMin((block+1)*self.blockLen, int(self.length))
	return begin, end
}

// ReadAt returns HashMismatch (after filling the affected range with a
// 0xDD sentinel) for any block whose stored hash disagrees with its
// content; already-verified or already-modified blocks are trusted
// without rehashing.
func (self *Level) ReadAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "ivfs", "")
	}
	beginBlock, endBlock := self.blockRange(off, end)
	var firstErr error

	for i := beginBlock; i < endBlock; i++ {
		blockBegin, blockEnd := self.blockDataRange(i)
		dataBegin := util.IMax(blockBegin, int(off))
		dataEnd := util.IMin(blockEnd, int(end))
		dst := buf[int64(dataBegin)-off : int64(dataEnd)-off]

		switch self.status[i] {
		case statusBroken:
			fillSentinel(dst)
			if firstErr == nil {
				firstErr = save3derr.New(save3derr.HashMismatch, "ivfs", "")
			}
		case statusVerified, statusModified:
			if err := self.data.ReadAt(int64(dataBegin), dst); err != nil {
				return err
			}
		default:
			blockBuf := make([]byte, blockEnd-blockBegin)
			if err := self.data.ReadAt(int64(blockBegin), blockBuf); err != nil {
				return err
			}
			var stored [hashLen]byte
			if err := self.hash.ReadAt(int64(i)*hashLen, stored[:]); err != nil {
				self.status[i] = statusBroken
				fillSentinel(dst)
				if firstErr == nil {
					firstErr = save3derr.New(save3derr.HashMismatch, "ivfs", "")
				}
				continue
			}
			computed := sha256simd.Sum256(blockBuf)
			if computed == stored {
				self.status[i] = statusVerified
				copy(dst, blockBuf[dataBegin-blockBegin:dataEnd-blockBegin])
			} else {
				self.status[i] = statusBroken
				mlog.Printf2("ivfs/level", "hash mismatch at block %d", i)
				fillSentinel(dst)
				if firstErr == nil {
					firstErr = save3derr.New(save3derr.HashMismatch, "ivfs", "")
				}
			}
		}
	}
	return firstErr
}

func (self *Level) WriteAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "ivfs", "")
	}
	if err := self.data.WriteAt(off, buf); err != nil {
		return err
	}
	beginBlock, endBlock := self.blockRange(off, end)
	for i := beginBlock; i < endBlock; i++ {
		self.status[i] = statusModified
	}
	return nil
}

// Commit recomputes and writes hashes for every block modified since the
// last commit, marking each verified afterward. It does not commit data
// or the hash target itself: callers composing several levels (see
// Chain) drive commit order bottom-up so each level's freshly-written
// hash bytes reach the level above before that level recomputes.
func (self *Level) Commit() error {
	mlog.Printf2("ivfs/level", "ivfs.Level.Commit")
	for i := range self.status {
		if self.status[i] != statusModified {
			continue
		}
		begin, end := self.blockDataRange(i)
		buf := make([]byte, end-begin)
		if err := self.data.ReadAt(int64(begin), buf); err != nil {
			return err
		}
		hash := sha256simd.Sum256(buf)
		if err := self.hash.WriteAt(int64(i)*hashLen, hash[:]); err != nil {
			return err
		}
		self.status[i] = statusVerified
	}
	return nil
}

func fillSentinel(buf []byte) {
	for i := range buf {
		buf[i] = 0xDD
	}
}
