package ivfs

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

// Chain composes several hash-tree levels bottom-up: level 0 verifies the
// actual data, level 1 verifies level 0's hash array, and so on, with an
// implicit final level reducing the topmost explicit level's hash array to
// the single hashLen-byte root the caller holds externally (typically
// inline in a partition descriptor rather than in the image). A one-entry
// blockLens/hashRAFs chain still has two physical levels internally: the
// data level and the root-reduction level.
type Chain struct {
	levels []*Level // levels[0] is the bottom (closest to data); the last entry always reduces to root
	root   raf.RAF  // hash target for the last level; a single hashLen-byte RAF
	data   raf.RAF  // the underlying leaf data RAF, for the initial commit
}

var _ raf.RAF = (*Chain)(nil)

// NewChain builds a chain over data with one entry in blockLens and
// hashRAFs per explicit level, ordered bottom (closest to data) to top.
// Each level's hash record is itself verified by the level above it
// rather than trusted outright, so tampering anywhere in the tree
// surfaces on read; root anchors the whole thing.
func NewChain(data raf.RAF, blockLens []int, hashRAFs []raf.RAF, root raf.RAF) (*Chain, error) {
	n := len(blockLens)
	if n == 0 {
		return nil, save3derr.New(save3derr.BadParams, "ivfs", "chain needs at least one level")
	}
	if len(hashRAFs) != n {
		return nil, save3derr.New(save3derr.BadParams, "ivfs", "hashRAFs must hold one array per level")
	}

	tierData := func(i int) raf.RAF {
		if i == 0 {
			return data
		}
		return hashRAFs[i-1]
	}

	levels := make([]*Level, n+1)
	hashTarget := root
	for i := n; i >= 0; i-- {
		td := tierData(i)
		blockLen := int(td.Len())
		if i < n {
			blockLen = blockLens[i]
		}
		level, err := New(hashTarget, td, blockLen)
		if err != nil {
			return nil, err
		}
		levels[i] = level
		hashTarget = level
	}
	return &Chain{levels: levels, root: root, data: data}, nil
}

// Top returns the outward-facing RAF: reads and writes to it cascade
// down through every level's verification/dirty-tracking.
func (self *Chain) Top() raf.RAF {
	return self.levels[0]
}

func (self *Chain) Len() int64 {
	return self.Top().Len()
}

func (self *Chain) ReadAt(off int64, buf []byte) error {
	return self.Top().ReadAt(off, buf)
}

func (self *Chain) WriteAt(off int64, buf []byte) error {
	return self.Top().WriteAt(off, buf)
}

// Commit walks the chain bottom-up: each level recomputes and writes its
// hashes first (which lands in the next level's data, i.e. its
// hash-storage-as-content), and only once every hash write has landed
// does the leaf data itself commit, followed by the root storage. This
// ordering matters for crash atomicity: the leaf data (typically a DPFS
// selector flip) must not become the active view until the hashes that
// verify it are already durable, or a crash in between leaves blocks
// that were live before the commit reporting HashMismatch forever after
// reopen instead of rolling cleanly back to the pre-commit state.
func (self *Chain) Commit() error {
	mlog.Printf2("ivfs/chain", "ivfs.Chain.Commit levels=%d", len(self.levels))
	for _, level := range self.levels {
		if err := level.Commit(); err != nil {
			return err
		}
	}
	if err := self.data.Commit(); err != nil {
		return err
	}
	return self.root.Commit()
}
