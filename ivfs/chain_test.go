package ivfs

import (
	"math/rand"
	"testing"

	"github.com/go-save3ds/save3ds/raf"
	sha256simd "github.com/minio/sha256-simd"
	"github.com/stvp/assert"
)

// commitSpy wraps a raf.RAF, running onCommit just before delegating to
// the wrapped RAF's own Commit.
type commitSpy struct {
	raf.RAF
	onCommit func() error
}

func (self *commitSpy) Commit() error {
	if err := self.onCommit(); err != nil {
		return err
	}
	return self.RAF.Commit()
}

func buildChain(t *testing.T, length int, blockLens []int) (*Chain, raf.RAF, []raf.RAF, raf.RAF) {
	data := raf.NewZeroFile(length)
	hashRAFs := make([]raf.RAF, len(blockLens))
	size := length
	for i, bl := range blockLens {
		blockCount := (size + bl - 1) / bl
		hashRAFs[i] = raf.NewZeroFile(blockCount * hashLen)
		size = blockCount * hashLen
	}
	root := raf.NewZeroFile(hashLen)
	chain, err := NewChain(data, blockLens, hashRAFs, root)
	assert.Nil(t, err)
	return chain, data, hashRAFs, root
}

func TestSingleLevelChainMatchesLevel(t *testing.T) {
	chain, _, _, _ := buildChain(t, 64, []int{16})
	payload := make([]byte, 64)
	rand.New(rand.NewSource(1)).Read(payload)
	assert.Nil(t, chain.WriteAt(0, payload))
	assert.Nil(t, chain.Commit())

	out := make([]byte, 64)
	assert.Nil(t, chain.ReadAt(0, out))
	assert.Equal(t, out, payload)
}

func TestMultiLevelChainRoundTrips(t *testing.T) {
	length := 256
	chain, data, hashRAFs, root := buildChain(t, length, []int{16, 64})
	payload := make([]byte, length)
	rand.New(rand.NewSource(2)).Read(payload)
	assert.Nil(t, chain.WriteAt(0, payload))
	assert.Nil(t, chain.Commit())

	// reopening a fresh chain against the same backing stores must verify.
	chain2, err := NewChain(data, []int{16, 64}, hashRAFs, root)
	assert.Nil(t, err)
	out := make([]byte, length)
	assert.Nil(t, chain2.ReadAt(0, out))
	assert.Equal(t, out, payload)
}

// The leaf data's Commit (a DPFS selector flip in the real wiring) must
// not run until every hash write it depends on has already landed, or a
// crash between the two leaves durable data whose hash can never verify
// again. Assert this by snapshotting the hash region at the moment the
// leaf's Commit fires.
func TestChainCommitWritesHashesBeforeLeafCommits(t *testing.T) {
	length := 64
	blockLen := 16
	data := raf.NewZeroFile(length)
	hashRAF := raf.NewZeroFile(4 * hashLen)
	root := raf.NewZeroFile(hashLen)

	var hashAtLeafCommit []byte
	spy := &commitSpy{RAF: data, onCommit: func() error {
		hashAtLeafCommit = make([]byte, hashLen)
		return hashRAF.ReadAt(0, hashAtLeafCommit)
	}}

	chain, err := NewChain(spy, []int{blockLen}, []raf.RAF{hashRAF}, root)
	assert.Nil(t, err)

	payload := make([]byte, length)
	rand.New(rand.NewSource(4)).Read(payload)
	assert.Nil(t, chain.WriteAt(0, payload))
	assert.Nil(t, chain.Commit())

	want := sha256simd.Sum256(payload[:blockLen])
	assert.Equal(t, hashAtLeafCommit, want[:])
}

func TestMultiLevelChainDetectsTamperedLeaf(t *testing.T) {
	length := 128
	chain, data, hashRAFs, root := buildChain(t, length, []int{16, 32})
	payload := make([]byte, length)
	rand.New(rand.NewSource(3)).Read(payload)
	assert.Nil(t, chain.WriteAt(0, payload))
	assert.Nil(t, chain.Commit())

	assert.Nil(t, data.WriteAt(0, make([]byte, 16))) // corrupt leaf block 0 directly

	chain2, err := NewChain(data, []int{16, 32}, hashRAFs, root)
	assert.Nil(t, err)
	out := make([]byte, length)
	err = chain2.ReadAt(0, out)
	assert.NotNil(t, err)
}
