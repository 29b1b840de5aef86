package raf

import (
	"math/rand"
	"testing"

	"github.com/stvp/assert"
)

func TestMemoryFileReadWrite(t *testing.T) {
	f := NewMemoryFile([]byte{9, 9, 9, 9, 9, 9, 9, 9, 9})
	assert.Equal(t, f.Len(), int64(9))
	assert.Nil(t, f.WriteAt(2, []byte{1, 3, 5, 7}))
	assert.Nil(t, f.WriteAt(4, []byte{1, 3, 5, 7}))
	buf := make([]byte, 7)
	assert.Nil(t, f.ReadAt(2, buf))
	assert.Equal(t, buf, []byte{1, 3, 1, 3, 5, 7, 9})
}

func TestMemoryFileOutOfBound(t *testing.T) {
	f := NewZeroFile(4)
	err := f.ReadAt(2, make([]byte, 4))
	assert.NotNil(t, err)
}

func TestSubFile(t *testing.T) {
	parent := NewZeroFile(16)
	sub, err := NewSubFile(parent, 4, 8)
	assert.Nil(t, err)
	assert.Nil(t, sub.WriteAt(0, []byte{1, 2, 3, 4}))
	buf := make([]byte, 4)
	assert.Nil(t, parent.ReadAt(4, buf))
	assert.Equal(t, buf, []byte{1, 2, 3, 4})

	_, err = NewSubFile(parent, 10, 10)
	assert.NotNil(t, err)
}

type structFuzzHeader struct {
	Magic   [4]byte
	Version uint32
	Size    uint64
}

func TestStructIO(t *testing.T) {
	f := NewZeroFile(64)
	h := structFuzzHeader{Magic: [4]byte{'D', 'I', 'S', 'A'}, Version: 3, Size: 12345}
	assert.Nil(t, WriteStruct(f, 8, h))
	var h2 structFuzzHeader
	assert.Nil(t, ReadStruct(f, 8, &h2))
	assert.Equal(t, h, h2)
}

// fuzz interleaves random reads/writes/commits against the RAF under
// test and a plain in-memory oracle, and asserts they never diverge.
func fuzz(t *testing.T, length int, subject RAF, commit func() error, reload func() RAF, oracle RAF) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		op := rng.Intn(9)
		switch {
		case op == 0:
			assert.Nil(t, commit())
			subject = reload()
		case op < 3:
			assert.Nil(t, commit())
		default:
			pos := rng.Intn(length)
			n := rng.Intn(length-pos) + 1
			if op < 6 {
				a := make([]byte, n)
				b := make([]byte, n)
				assert.Nil(t, subject.ReadAt(int64(pos), a))
				assert.Nil(t, oracle.ReadAt(int64(pos), b))
				assert.Equal(t, a, b)
			} else {
				a := make([]byte, n)
				rng.Read(a)
				assert.Nil(t, subject.WriteAt(int64(pos), a))
				assert.Nil(t, oracle.WriteAt(int64(pos), a))
			}
		}
	}
}

func TestMemoryFileFuzz(t *testing.T) {
	length := 500
	init := make([]byte, length)
	rand.New(rand.NewSource(2)).Read(init)
	f := NewMemoryFile(append([]byte{}, init...))
	oracle := NewMemoryFile(append([]byte{}, init...))
	fuzz(t, length, f, f.Commit, func() RAF { return f }, oracle)
}
