package fat

import (
	"testing"

	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/stvp/assert"
)

func newFormatted(t *testing.T, blockLen, totalBlocks int) *Table {
	table := raf.NewZeroFile((totalBlocks + 1) * entrySize)
	data := raf.NewZeroFile(totalBlocks * blockLen)
	tbl, err := FormatTable(table, data, blockLen, totalBlocks)
	assert.Nil(t, err)
	return tbl
}

func TestFormatAllBlocksFree(t *testing.T) {
	tbl := newFormatted(t, 16, 10)
	assert.Equal(t, tbl.FreeBlocks(), 10)
}

func TestAllocateReducesFreeCount(t *testing.T) {
	tbl := newFormatted(t, 16, 10)
	head, err := tbl.Allocate(3)
	assert.Nil(t, err)
	assert.Equal(t, tbl.FreeBlocks(), 7)
	length, err := tbl.ChainLength(head)
	assert.Nil(t, err)
	assert.Equal(t, length, 3)
}

func TestAllocateExactlyAllBlocks(t *testing.T) {
	tbl := newFormatted(t, 16, 5)
	head, err := tbl.Allocate(5)
	assert.Nil(t, err)
	assert.Equal(t, tbl.FreeBlocks(), 0)
	length, err := tbl.ChainLength(head)
	assert.Nil(t, err)
	assert.Equal(t, length, 5)
}

func TestAllocateBeyondCapacityFails(t *testing.T) {
	tbl := newFormatted(t, 16, 4)
	_, err := tbl.Allocate(5)
	assert.NotNil(t, err)
	assert.Equal(t, save3derr.Is(err, save3derr.NoSpace), true)
	assert.Equal(t, tbl.FreeBlocks(), 4)
}

func TestFreeRestoresBlocks(t *testing.T) {
	tbl := newFormatted(t, 16, 10)
	head, err := tbl.Allocate(4)
	assert.Nil(t, err)
	assert.Nil(t, tbl.Free(head))
	assert.Equal(t, tbl.FreeBlocks(), 10)

	// the freed blocks must be reusable.
	head2, err := tbl.Allocate(10)
	assert.Nil(t, err)
	length, err := tbl.ChainLength(head2)
	assert.Nil(t, err)
	assert.Equal(t, length, 10)
}

func TestSingletonChain(t *testing.T) {
	tbl := newFormatted(t, 16, 3)
	head, err := tbl.Allocate(1)
	assert.Nil(t, err)
	length, err := tbl.ChainLength(head)
	assert.Nil(t, err)
	assert.Equal(t, length, 1)
}

func TestOpenRecomputesFreeCount(t *testing.T) {
	table := raf.NewZeroFile(11 * entrySize)
	data := raf.NewZeroFile(10 * 16)
	tbl, err := FormatTable(table, data, 16, 10)
	assert.Nil(t, err)
	_, err = tbl.Allocate(3)
	assert.Nil(t, err)

	reopened, err := OpenTable(table, data, 16, 10)
	assert.Nil(t, err)
	assert.Equal(t, reopened.FreeBlocks(), 7)
}

func TestFileReadWriteAcrossBlocks(t *testing.T) {
	tbl := newFormatted(t, 8, 10)
	head, err := tbl.Allocate(3)
	assert.Nil(t, err)
	f := OpenFile(tbl, head, 24)

	payload := []byte("0123456789ABCDEF01234567")[:24]
	assert.Nil(t, f.WriteAt(0, payload))
	out := make([]byte, 24)
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, out, payload)
}

func TestFileSetLengthGrowsAndPreservesData(t *testing.T) {
	tbl := newFormatted(t, 8, 10)
	head, err := tbl.Allocate(1)
	assert.Nil(t, err)
	f := OpenFile(tbl, head, 8)
	assert.Nil(t, f.WriteAt(0, []byte("ABCDEFGH")))

	assert.Nil(t, f.SetLength(24))
	assert.Equal(t, tbl.FreeBlocks(), 7)

	out := make([]byte, 8)
	assert.Nil(t, f.ReadAt(0, out))
	assert.Equal(t, string(out), "ABCDEFGH")

	assert.Nil(t, f.WriteAt(16, []byte("IJKLMNOP")))
	out2 := make([]byte, 8)
	assert.Nil(t, f.ReadAt(16, out2))
	assert.Equal(t, string(out2), "IJKLMNOP")
}

func TestFileSetLengthShrinksAndFreesBlocks(t *testing.T) {
	tbl := newFormatted(t, 8, 10)
	head, err := tbl.Allocate(4)
	assert.Nil(t, err)
	f := OpenFile(tbl, head, 32)
	assert.Equal(t, tbl.FreeBlocks(), 6)

	assert.Nil(t, f.SetLength(8))
	assert.Equal(t, tbl.FreeBlocks(), 9)
	length, err := tbl.ChainLength(f.Head())
	assert.Nil(t, err)
	assert.Equal(t, length, 1)
}

func TestFileSetLengthToZeroFreesEntireChain(t *testing.T) {
	tbl := newFormatted(t, 8, 10)
	head, err := tbl.Allocate(3)
	assert.Nil(t, err)
	f := OpenFile(tbl, head, 24)
	assert.Nil(t, f.SetLength(0))
	assert.Equal(t, tbl.FreeBlocks(), 10)
	assert.Equal(t, f.Head(), uint32(0))
}
