package archive

import (
	"github.com/go-save3ds/save3ds/fat"
	"github.com/go-save3ds/save3ds/fsmeta"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
)

// FormatParams are the parameters archive.Format* take to lay out a
// brand-new container: directory/file table capacities and bucket
// counts, the FAT block size, and the data region's total length.
type FormatParams struct {
	MaxDir, MaxFile int
	DirBuckets      int
	FileBuckets     int
	BlockLen        int
	Len             int64
	DuplicateData   bool // reserved: selects two-copy vs one-copy DPFS mirroring
}

func (p FormatParams) validate() error {
	if p.BlockLen <= 0 || p.Len <= 0 || p.Len%int64(p.BlockLen) != 0 {
		return save3derr.New(save3derr.BadParams, "archive", "block_len must divide len")
	}
	if p.MaxDir <= 0 || p.MaxFile <= 0 || p.DirBuckets <= 0 || p.FileBuckets <= 0 {
		return save3derr.New(save3derr.BadParams, "archive", "max_dir/max_file/bucket counts must be positive")
	}
	return nil
}

// layout describes every region inside the plaintext container body, in
// the order they're laid out: a small root hash, a DPFS dual selector,
// and two shadow copies of a combined span holding the IVFS hash region
// followed by the logical image (a meta region followed by the
// FAT-addressed data region whose block count is exactly Len/BlockLen,
// independent of table overhead). Putting the hash region inside the
// DPFS-duplicated span means a crash mid-commit can never leave a hash
// write half-durable while the image data it covers has already gone
// live, or vice versa: both flip together under the one selector.
type layout struct {
	params FormatParams

	totalBlocks     int
	inlineThreshold int
	maxInline       int

	metaRegionSize   int64
	logicalImageSize int64 // metaRegionSize + params.Len

	hashRegionSize   int64 // inside the DPFS-duplicated span, ahead of the logical image
	combinedSize     int64 // hashRegionSize + logicalImageSize; the span DPFS mirrors
	hashRootSize     int64
	selectorWordSize int64
	bodyLen          int64
}

func computeLayout(p FormatParams) (layout, error) {
	if err := p.validate(); err != nil {
		return layout{}, err
	}
	bl := int64(p.BlockLen)
	totalBlocks := int(p.Len / bl)
	inlineThreshold := p.BlockLen / 2
	maxInline := p.MaxFile

	meta := int64(p.DirBuckets)*4 +
		int64(p.MaxDir+1)*fsmeta.DirEntrySize +
		int64(p.FileBuckets)*4 +
		int64(p.MaxFile+1)*fsmeta.FileEntrySize +
		int64(totalBlocks+1)*fat.EntrySize +
		int64(maxInline+1)*fat.EntrySize +
		int64(maxInline)*int64(inlineThreshold)
	metaRegionSize := int64(util.AlignUp(int(meta), int(bl)))

	logicalImageSize := metaRegionSize + p.Len
	logicalImageBlocks := logicalImageSize / bl

	hashRegionSize := logicalImageBlocks * 32
	hashRootSize := int64(32)
	combinedSize := hashRegionSize + logicalImageSize

	dpfsBlockCount := divideUp64(combinedSize, bl)
	chunkCnt := divideUp64(dpfsBlockCount, 32)
	selectorWordSize := chunkCnt * 4

	bodyLen := hashRootSize + 1 + 2*selectorWordSize + 2*combinedSize

	return layout{
		params: p, totalBlocks: totalBlocks, inlineThreshold: inlineThreshold, maxInline: maxInline,
		metaRegionSize: metaRegionSize, logicalImageSize: logicalImageSize,
		hashRegionSize: hashRegionSize, combinedSize: combinedSize,
		hashRootSize: hashRootSize, selectorWordSize: selectorWordSize, bodyLen: bodyLen,
	}, nil
}

func divideUp64(n, d int64) int64 {
	return (n + d - 1) / d
}

// carve slices a plaintext body RAF into the physical regions layout
// describes. partition0/partition1 each hold one full shadow copy of
// the combined hash-region-plus-logical-image span; the caller further
// slices each partition's DPFS-arbitrated logical view into its hash
// and image windows.
type carvedBody struct {
	hashRoot               raf.RAF
	selectorBit            raf.RAF
	selectorA, selectorB   raf.RAF
	partition0, partition1 raf.RAF
}

func (l layout) carve(body raf.RAF) (carvedBody, error) {
	if body.Len() < l.bodyLen {
		return carvedBody{}, save3derr.New(save3derr.BadFormat, "archive", "container body too small for its own layout")
	}
	off := int64(0)
	sub := func(size int64) (raf.RAF, error) {
		f, err := raf.NewSubFile(body, off, size)
		if err != nil {
			return nil, err
		}
		off += size
		return f, nil
	}

	hashRoot, err := sub(l.hashRootSize)
	if err != nil {
		return carvedBody{}, err
	}
	selectorBit, err := sub(1)
	if err != nil {
		return carvedBody{}, err
	}
	selectorA, err := sub(l.selectorWordSize)
	if err != nil {
		return carvedBody{}, err
	}
	selectorB, err := sub(l.selectorWordSize)
	if err != nil {
		return carvedBody{}, err
	}
	partition0, err := sub(l.combinedSize)
	if err != nil {
		return carvedBody{}, err
	}
	partition1, err := sub(l.combinedSize)
	if err != nil {
		return carvedBody{}, err
	}
	return carvedBody{
		hashRoot: hashRoot, selectorBit: selectorBit,
		selectorA: selectorA, selectorB: selectorB,
		partition0: partition0, partition1: partition1,
	}, nil
}

// metaConfig slices the (already DPFS/IVFS-protected) logical image into
// the fsmeta.Config regions.
func (l layout) metaConfig(image raf.RAF, resizable bool) (fsmeta.Config, error) {
	off := int64(0)
	sub := func(size int64) (raf.RAF, error) {
		f, err := raf.NewSubFile(image, off, size)
		if err != nil {
			return nil, err
		}
		off += size
		return f, nil
	}

	dirHash, err := sub(int64(l.params.DirBuckets) * 4)
	if err != nil {
		return fsmeta.Config{}, err
	}
	dirEntries, err := sub(int64(l.params.MaxDir+1) * fsmeta.DirEntrySize)
	if err != nil {
		return fsmeta.Config{}, err
	}
	fileHash, err := sub(int64(l.params.FileBuckets) * 4)
	if err != nil {
		return fsmeta.Config{}, err
	}
	fileEntries, err := sub(int64(l.params.MaxFile+1) * fsmeta.FileEntrySize)
	if err != nil {
		return fsmeta.Config{}, err
	}
	fatTable, err := sub(int64(l.totalBlocks+1) * fat.EntrySize)
	if err != nil {
		return fsmeta.Config{}, err
	}
	inlineTable, err := sub(int64(l.maxInline+1) * fat.EntrySize)
	if err != nil {
		return fsmeta.Config{}, err
	}
	inlineData, err := sub(int64(l.maxInline) * int64(l.inlineThreshold))
	if err != nil {
		return fsmeta.Config{}, err
	}
	fatData, err := raf.NewSubFile(image, l.metaRegionSize, l.params.Len)
	if err != nil {
		return fsmeta.Config{}, err
	}

	return fsmeta.Config{
		DirHash: dirHash, DirEntries: dirEntries, DirBuckets: l.params.DirBuckets, MaxDir: l.params.MaxDir,
		FileHash: fileHash, FileEntries: fileEntries, FileBuckets: l.params.FileBuckets, MaxFile: l.params.MaxFile,
		FatTable: fatTable, FatData: fatData, BlockLen: l.params.BlockLen, TotalBlocks: l.totalBlocks,
		InlineTable: inlineTable, InlineData: inlineData, InlineThreshold: l.inlineThreshold, MaxInlineFiles: l.maxInline,
		Resizable: resizable,
	}, nil
}
