package archive

import (
	"testing"

	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/stvp/assert"
)

func testParams() FormatParams {
	return FormatParams{
		MaxDir: 4, MaxFile: 8,
		DirBuckets: 4, FileBuckets: 8,
		BlockLen: 512, Len: 524288,
	}
}

func newBareImage(t *testing.T, params FormatParams) raf.RAF {
	length, err := RawImageLen(VariantBare, params)
	assert.Nil(t, err)
	return raf.NewZeroFile(int(length))
}

func mustLayout(t *testing.T, p FormatParams) layout {
	lay, err := computeLayout(p)
	assert.Nil(t, err)
	return lay
}

// S1: format, create a directory and file, commit, reopen, and verify
// content survived.
func TestScenarioBareRoundTrip(t *testing.T) {
	params := testParams()
	raw := newBareImage(t, params)

	sd, err := FormatSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)

	root := sd.RootDir()
	docs, err := root.CreateSubDir("docs")
	assert.Nil(t, err)
	f, err := docs.CreateSubFile("readme", 100)
	assert.Nil(t, err)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	assert.Nil(t, f.WriteAt(0, payload))
	assert.Nil(t, sd.Commit())

	reopened, err := OpenSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)
	root2 := reopened.RootDir()
	docs2, err := root2.OpenSubDir("docs")
	assert.Nil(t, err)
	f2, err := docs2.OpenSubFile("readme")
	assert.Nil(t, err)

	got := make([]byte, 100)
	assert.Nil(t, f2.ReadAt(0, got))
	assert.Equal(t, got, payload)
}

// S2: renaming onto an existing name fails with Duplicate; renaming onto
// a free name succeeds and is reflected by List.
func TestScenarioRenameCollision(t *testing.T) {
	params := testParams()
	raw := newBareImage(t, params)
	sd, err := FormatSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)

	root := sd.RootDir()
	_, err = root.CreateSubFile("a", 8)
	assert.Nil(t, err)
	b, err := root.CreateSubFile("b", 8)
	assert.Nil(t, err)

	err = b.Rename(root, "a")
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.Duplicate))

	err = b.Rename(root, "c")
	assert.Nil(t, err)

	// Renaming onto its own current (parent, name) is a no-op success,
	// not a self-collision.
	err = b.Rename(root, "c")
	assert.Nil(t, err)

	names, err := root.ListSubFile()
	assert.Nil(t, err)
	assert.Equal(t, len(names), 2)
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	assert.True(t, found["a"])
	assert.True(t, found["c"])
	assert.True(t, !found["b"])
}

// S3: mutations that are never committed must not be visible after the
// backing image is reopened fresh, since neither the DPFS selector nor
// the IVFS hashes were ever flipped/written.
func TestScenarioUncommittedChangesDoNotSurviveReopen(t *testing.T) {
	params := testParams()
	raw := newBareImage(t, params)

	sd, err := FormatSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)
	assert.Nil(t, sd.Commit())

	live, err := OpenSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)
	_, err = live.RootDir().CreateSubDir("uncommitted")
	assert.Nil(t, err)
	// live.Commit() deliberately not called: this models a crash before
	// the DPFS selector (and IVFS hashes) are ever written.

	crashed, err := OpenSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)
	names, err := crashed.RootDir().ListSubDir()
	assert.Nil(t, err)
	assert.Equal(t, len(names), 0)
}

// S4: flipping a byte inside a signed container's body breaks its CMAC,
// surfacing as SignatureMismatch on the next open.
func TestScenarioSignatureMismatch(t *testing.T) {
	params := testParams()
	c := crypto{signed: true, cmacKey: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}
	length := signedHeaderLen + mustLayout(t, params).bodyLen
	var raw raf.RAF = raf.NewZeroFile(int(length))

	cont, err := formatContainer(raw, params, c, headerProvenance{}, true)
	assert.Nil(t, err)
	assert.Nil(t, cont.Commit())

	mem := raw.(*raf.MemoryFile)
	mem.Bytes()[signedHeaderLen] ^= 0xFF

	_, err = openContainer(raw, params, c, headerProvenance{}, true)
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.SignatureMismatch))
}

// S5: bit-rot inside an unsigned archive's data blocks (nothing above it
// to catch a CMAC break) surfaces as HashMismatch from IVFS on read.
func TestScenarioHashMismatch(t *testing.T) {
	params := FormatParams{MaxDir: 2, MaxFile: 4, DirBuckets: 2, FileBuckets: 4, BlockLen: 64, Len: 256}
	raw := newBareImage(t, params)

	sd, err := FormatSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)
	root := sd.RootDir()
	f, err := root.CreateSubFile("blob", 64) // > inlineThreshold(32): lands in the FAT data region
	assert.Nil(t, err)
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = 0xAB
	}
	assert.Nil(t, f.WriteAt(0, payload))
	assert.Nil(t, sd.Commit())

	lay := mustLayout(t, params)
	mem := raw.(*raf.MemoryFile)
	partition0Off := lay.hashRootSize + 1 + 2*lay.selectorWordSize
	partition1Off := partition0Off + lay.combinedSize
	// each partition holds [hash region | meta region | FAT data region];
	// the first FAT-allocated block (index 1) sits at data-region offset 0.
	blockOff := lay.hashRegionSize + lay.metaRegionSize
	mem.Bytes()[partition0Off+blockOff] ^= 0xFF
	mem.Bytes()[partition1Off+blockOff] ^= 0xFF

	reopened, err := OpenSaveData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)
	f2, err := reopened.RootDir().OpenSubFile("blob")
	assert.Nil(t, err)
	got := make([]byte, 64)
	err = f2.ReadAt(0, got)
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.HashMismatch))
}

// S6: extdata files are fixed size for their whole lifetime; a zero-size
// create request is rejected up front and a later resize always fails.
func TestScenarioExtDataFixedSize(t *testing.T) {
	params := testParams()
	raw := newBareImage(t, params)

	ed, err := FormatExtData(raw, nil, VariantBare, params, [16]byte{})
	assert.Nil(t, err)

	_, err = ed.CreateFile(1, 5, 0)
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.BadParams))

	icon, err := ed.CreateFile(1, 5, 1024)
	assert.Nil(t, err)

	err = icon.Resize(2048)
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.BrokenFixedSize))
}
