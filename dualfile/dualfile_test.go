package dualfile

import (
	"math/rand"
	"testing"

	"github.com/go-save3ds/save3ds/raf"
	"github.com/stvp/assert"
)

func newTestFile(t *testing.T, length int) (*File, raf.RAF, [2]raf.RAF) {
	selector := raf.NewZeroFile(1)
	pair := [2]raf.RAF{raf.NewZeroFile(length), raf.NewZeroFile(length)}
	f, err := New(selector, pair)
	assert.Nil(t, err)
	return f, selector, pair
}

func TestReadsInitiallyFromSideZero(t *testing.T) {
	f, _, pair := newTestFile(t, 10)
	assert.Nil(t, pair[0].WriteAt(0, []byte("0123456789")))
	assert.Nil(t, pair[1].WriteAt(0, []byte("zzzzzzzzzz")))
	out := make([]byte, 10)
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, string(out), "0123456789")
}

func TestWriteThenCommitFlipsAndMirrors(t *testing.T) {
	f, _, pair := newTestFile(t, 10)
	assert.Nil(t, pair[0].WriteAt(0, []byte("0123456789")))
	assert.Nil(t, pair[1].WriteAt(0, []byte("0123456789")))

	// write before commit must not affect a read through f (still side 0).
	assert.Nil(t, f.WriteAt(2, []byte("XY")))
	out := make([]byte, 10)
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, string(out), "0123456789")

	assert.Nil(t, f.Commit())
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, string(out), "01XY456789")

	// after commit both sides at rest must agree.
	side0 := make([]byte, 10)
	side1 := make([]byte, 10)
	assert.Nil(t, pair[0].ReadAt(0, side0))
	assert.Nil(t, pair[1].ReadAt(0, side1))
	assert.Equal(t, side0, side1)
}

func TestCommitWithoutWriteIsNoOp(t *testing.T) {
	f, selector, _ := newTestFile(t, 4)
	assert.Nil(t, f.Commit())
	sel := make([]byte, 1)
	assert.Nil(t, selector.ReadAt(0, sel))
	assert.Equal(t, sel[0], byte(0))
}

func TestOutOfBound(t *testing.T) {
	f, _, _ := newTestFile(t, 4)
	err := f.ReadAt(2, make([]byte, 4))
	assert.NotNil(t, err)
	err = f.WriteAt(-1, make([]byte, 1))
	assert.NotNil(t, err)
}

func TestFuzzAgainstOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		length := 1 + rng.Intn(200)
		selector := raf.NewZeroFile(1)
		init := make([]byte, length)
		rng.Read(init)
		pair := [2]raf.RAF{raf.NewZeroFile(length), raf.NewZeroFile(length)}
		assert.Nil(t, pair[0].WriteAt(0, init))
		assert.Nil(t, pair[1].WriteAt(0, init))

		f, err := New(selector, pair)
		assert.Nil(t, err)
		oracle := raf.NewZeroFile(length)
		assert.Nil(t, oracle.WriteAt(0, init))
		// Reads come from the active side, so they see the oracle as it
		// stood at the last Commit, not the writes made since.
		committed := make([]byte, length)
		copy(committed, init)

		for i := 0; i < 50; i++ {
			off := rng.Intn(length)
			n := 1 + rng.Intn(length-off)
			buf := make([]byte, n)
			rng.Read(buf)
			assert.Nil(t, f.WriteAt(int64(off), buf))
			assert.Nil(t, oracle.WriteAt(int64(off), buf))
			if rng.Intn(3) == 0 {
				assert.Nil(t, f.Commit())
				assert.Nil(t, oracle.ReadAt(0, committed))
			}
			got := make([]byte, length)
			assert.Nil(t, f.ReadAt(0, got))
			assert.Equal(t, got, committed)
		}
	}
}
