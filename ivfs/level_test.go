package ivfs

import (
	"math/rand"
	"testing"

	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	sha256simd "github.com/minio/sha256-simd"
	"github.com/stvp/assert"
)

func TestReadDetectsHashMismatch(t *testing.T) {
	length := 32
	blockLen := 16
	data := raf.NewZeroFile(length)
	payload := make([]byte, length)
	rand.New(rand.NewSource(1)).Read(payload)
	assert.Nil(t, data.WriteAt(0, payload))
	hash := raf.NewZeroFile(2 * hashLen) // all-zero, won't match real content

	level, err := New(hash, data, blockLen)
	assert.Nil(t, err)
	out := make([]byte, length)
	err = level.ReadAt(0, out)
	assert.NotNil(t, err)
	assert.Equal(t, save3derr.Is(err, save3derr.HashMismatch), true)
}

func TestWriteThenCommitVerifies(t *testing.T) {
	length := 48
	blockLen := 16
	data := raf.NewZeroFile(length)
	hash := raf.NewZeroFile(3 * hashLen)

	level, err := New(hash, data, blockLen)
	assert.Nil(t, err)

	payload := make([]byte, length)
	rand.New(rand.NewSource(2)).Read(payload)
	assert.Nil(t, level.WriteAt(0, payload))
	assert.Nil(t, level.Commit())

	// reopen fresh against the same backing stores; must verify cleanly.
	level2, err := New(hash, data, blockLen)
	assert.Nil(t, err)
	out := make([]byte, length)
	assert.Nil(t, level2.ReadAt(0, out))
	assert.Equal(t, out, payload)
}

func TestTamperedBlockDetected(t *testing.T) {
	length := 32
	blockLen := 16
	data := raf.NewZeroFile(length)
	hash := raf.NewZeroFile(2 * hashLen)

	level, err := New(hash, data, blockLen)
	assert.Nil(t, err)
	payload := make([]byte, length)
	rand.New(rand.NewSource(3)).Read(payload)
	assert.Nil(t, level.WriteAt(0, payload))
	assert.Nil(t, level.Commit())

	// tamper with block 1's content directly, bypassing the hash tree.
	assert.Nil(t, data.WriteAt(16, []byte("tampered!!!!!!!!")))

	level2, err := New(hash, data, blockLen)
	assert.Nil(t, err)
	out := make([]byte, length)
	err = level2.ReadAt(0, out)
	assert.NotNil(t, err)
	assert.Equal(t, save3derr.Is(err, save3derr.HashMismatch), true)
	// block 0 (untouched) must still read correctly.
	assert.Equal(t, out[:16], payload[:16])
}

func TestFuzzAgainstOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for trial := 0; trial < 5; trial++ {
		blockLen := 4 + rng.Intn(20)
		length := blockLen * (1 + rng.Intn(15))
		blockCount := (length + blockLen - 1) / blockLen
		hash := raf.NewZeroFile(blockCount * hashLen)
		data := raf.NewZeroFile(length)

		level, err := New(hash, data, blockLen)
		assert.Nil(t, err)
		init := make([]byte, length)
		rng.Read(init)
		assert.Nil(t, level.WriteAt(0, init))
		assert.Nil(t, level.Commit())

		oracle := raf.NewZeroFile(length)
		assert.Nil(t, oracle.WriteAt(0, init))

		for i := 0; i < 40; i++ {
			off := rng.Intn(length)
			n := 1 + rng.Intn(length-off)
			buf := make([]byte, n)
			rng.Read(buf)
			assert.Nil(t, level.WriteAt(int64(off), buf))
			assert.Nil(t, oracle.WriteAt(int64(off), buf))
			if rng.Intn(3) == 0 {
				assert.Nil(t, level.Commit())
			}
			got := make([]byte, length)
			want := make([]byte, length)
			assert.Nil(t, level.ReadAt(0, got))
			assert.Nil(t, oracle.ReadAt(0, want))
			assert.Equal(t, got, want)
		}
	}
}

func TestSha256IsUsedForBlockHash(t *testing.T) {
	length := 16
	blockLen := 16
	data := raf.NewZeroFile(length)
	hash := raf.NewZeroFile(hashLen)
	level, err := New(hash, data, blockLen)
	assert.Nil(t, err)
	payload := []byte("0123456789ABCDEF")
	assert.Nil(t, level.WriteAt(0, payload))
	assert.Nil(t, level.Commit())

	expected := sha256simd.Sum256(payload)
	stored := make([]byte, hashLen)
	assert.Nil(t, hash.ReadAt(0, stored))
	assert.Equal(t, stored, expected[:])
}
