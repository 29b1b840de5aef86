package dpfs

import (
	"math/rand"
	"testing"

	"github.com/go-save3ds/save3ds/raf"
	"github.com/stvp/assert"
)

func newTestDpfs(t *testing.T, length, blockLen int) (*File, raf.RAF, [2]raf.RAF) {
	blockCnt := (length + blockLen - 1) / blockLen
	chunkCnt := (blockCnt + 31) / 32
	selector := raf.NewZeroFile(chunkCnt * 4)
	pair := [2]raf.RAF{raf.NewZeroFile(length), raf.NewZeroFile(length)}
	f, err := New(selector, pair, blockLen)
	assert.Nil(t, err)
	return f, selector, pair
}

func TestReadWriteWithinBlock(t *testing.T) {
	f, _, _ := newTestDpfs(t, 64, 16)
	assert.Nil(t, f.WriteAt(0, []byte("hello world!!!!!")))
	out := make([]byte, 16)
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, string(out), "hello world!!!!!")
}

func TestPartialBlockPreservesMargins(t *testing.T) {
	f, _, pair := newTestDpfs(t, 32, 16)
	full := make([]byte, 32)
	rand.New(rand.NewSource(1)).Read(full)
	assert.Nil(t, pair[0].WriteAt(0, full))
	assert.Nil(t, pair[1].WriteAt(0, full))

	patch := []byte{0xAA, 0xBB}
	assert.Nil(t, f.WriteAt(5, patch))

	out := make([]byte, 32)
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, out[5:7], patch)
	assert.Equal(t, out[:5], full[:5])
	assert.Equal(t, out[7:16], full[7:16])
	assert.Equal(t, out[16:], full[16:])
}

func TestUncommittedWritesInvisibleOnFreshView(t *testing.T) {
	f, selector, pair := newTestDpfs(t, 32, 16)
	assert.Nil(t, f.WriteAt(0, make([]byte, 16)))
	// simulate a crash before commit: reopen against the same backing
	// stores without ever calling Commit.
	f2, err := New(selector, pair, 16)
	assert.Nil(t, err)
	out := make([]byte, 16)
	assert.Nil(t, f2.ReadAt(0, out))
	// original data (zero-filled by NewZeroFile) must still be visible.
	assert.Equal(t, out, make([]byte, 16))
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	f, selector, pair := newTestDpfs(t, 32, 16)
	payload := []byte("0123456789ABCDEF")
	assert.Nil(t, f.WriteAt(0, payload))
	assert.Nil(t, f.Commit())

	f2, err := New(selector, pair, 16)
	assert.Nil(t, err)
	out := make([]byte, 16)
	assert.Nil(t, f2.ReadAt(0, out))
	assert.Equal(t, out, payload)
}

func TestFuzzAgainstOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		blockLen := 8
		blocks := 1 + rng.Intn(20)
		length := blocks * blockLen
		f, _, _ := newTestDpfs(t, length, blockLen)
		oracle := raf.NewZeroFile(length)

		for i := 0; i < 60; i++ {
			off := rng.Intn(length)
			n := 1 + rng.Intn(length-off)
			buf := make([]byte, n)
			rng.Read(buf)
			assert.Nil(t, f.WriteAt(int64(off), buf))
			assert.Nil(t, oracle.WriteAt(int64(off), buf))
			if rng.Intn(4) == 0 {
				assert.Nil(t, f.Commit())
			}
			got := make([]byte, length)
			want := make([]byte, length)
			assert.Nil(t, f.ReadAt(0, got))
			assert.Nil(t, oracle.ReadAt(0, want))
			assert.Equal(t, got, want)
		}
	}
}
