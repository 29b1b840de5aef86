// Package diskfile implements the AES-128-CTR transparent-encryption RAF
// layer that sits directly on a raw archive image.
package diskfile

import (
	"crypto/aes"

	"github.com/bluele/gcache"
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

const blockLen = 16
const padCacheSize = 64

// File wraps a RAF with AES-128-CTR using a fixed key and a 128-bit base
// counter; the counter for byte offset o is base + o/16, added as a
// 128-bit big-endian integer the way the console's CTR mode does it (a
// carry out of the low byte ripples into the next one, not a simple
// per-byte wraparound).
//
// Reads and writes operate on arbitrary byte ranges: each byte is XORed
// with its block's keystream pad at its position in the block, so a
// partial 16-byte block write touches only the bytes it covers and the
// rest of that block is left as it is. Commit is the underlying
// RAF's Commit; there is no cryptographic check at this layer.
type File struct {
	data    raf.RAF
	cipher  cipherBlock
	baseCtr [16]byte
	length  int64
	pads    gcache.Cache // block index (int64) -> [16]byte keystream pad
}

// cipherBlock is the subset of cipher.Block this layer needs; declared
// locally so tests can substitute a fake without importing crypto/aes.
type cipherBlock interface {
	Encrypt(dst, src []byte)
}

var _ raf.RAF = (*File)(nil)

// New wraps data with AES-128-CTR encryption under key, starting the
// counter at ctr for offset 0.
func New(data raf.RAF, key, ctr [16]byte) (*File, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, save3derr.New(save3derr.KeyError, "diskfile", err.Error())
	}
	return &File{
		data:    data,
		cipher:  block,
		baseCtr: ctr,
		length:  data.Len(),
		pads:    gcache.New(padCacheSize).LRU().Build(),
	}, nil
}

func seekCtr(ctr [16]byte, blockIndex int64) [16]byte {
	out := ctr
	carry := blockIndex
	for i := 15; i >= 0 && carry != 0; i-- {
		sum := int64(out[i]) + carry
		out[i] = byte(sum & 0xFF)
		carry = sum >> 8
	}
	return out
}

func (self *File) getPad(blockIndex int64) [16]byte {
	if v, err := self.pads.Get(blockIndex); err == nil {
		return v.([16]byte)
	}
	ctr := seekCtr(self.baseCtr, blockIndex)
	var pad [16]byte
	self.cipher.Encrypt(pad[:], ctr[:])
	self.pads.Set(blockIndex, pad)
	return pad
}

func (self *File) Len() int64 {
	return self.length
}

func (self *File) ReadAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "diskfile", "")
	}
	if err := self.data.ReadAt(off, buf); err != nil {
		return err
	}
	beginBlock := off / blockLen
	endBlock := (end + blockLen - 1) / blockLen
	for i := beginBlock; i < endBlock; i++ {
		pad := self.getPad(i)
		dataBegin := max64(i*blockLen, off)
		dataEnd := min64((i+1)*blockLen, end)
		for p := dataBegin; p < dataEnd; p++ {
			buf[p-off] ^= pad[p-i*blockLen]
		}
	}
	return nil
}

func (self *File) WriteAt(off int64, buf []byte) error {
	end := off + int64(len(buf))
	if off < 0 || end > self.length {
		return save3derr.New(save3derr.OutOfBound, "diskfile", "")
	}
	beginBlock := off / blockLen
	endBlock := (end + blockLen - 1) / blockLen
	for i := beginBlock; i < endBlock; i++ {
		pad := self.getPad(i)
		dataBegin := max64(i*blockLen, off)
		dataEnd := min64((i+1)*blockLen, end)
		out := make([]byte, dataEnd-dataBegin)
		for p := dataBegin; p < dataEnd; p++ {
			out[p-dataBegin] = pad[p-i*blockLen] ^ buf[p-off]
		}
		if err := self.data.WriteAt(dataBegin, out); err != nil {
			return err
		}
	}
	return nil
}

func (self *File) Commit() error {
	mlog.Printf2("diskfile/diskfile", "diskfile.Commit")
	return self.data.Commit()
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
