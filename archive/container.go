package archive

import (
	"github.com/go-save3ds/save3ds/diskfile"
	"github.com/go-save3ds/save3ds/dpfs"
	"github.com/go-save3ds/save3ds/dualfile"
	"github.com/go-save3ds/save3ds/fsmeta"
	"github.com/go-save3ds/save3ds/ivfs"
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
)

const signedHeaderLen = 16

// crypto bundles the optional key material a container is built with.
// Both fields are zero for a bare, unsigned/unencrypted archive.
type crypto struct {
	signed    bool
	encrypted bool
	cmacKey   [16]byte
	diskKey   [16]byte
	ctr       [16]byte
}

// headerProvenance mixes a small fixed template into the signed body so
// a header's CMAC can't be replayed across archives of a different
// type or id.
type headerProvenance struct {
	template [16]byte
}

func (p headerProvenance) Block(body []byte) []byte {
	return util.ConcatBytes(p.template[:], body)
}

// commitThrough gives a windowed view of a shared raf.RAF its own
// Commit hook, so several disjoint windows over the same underlying RAF
// (here, the hash region and the logical image both windowing the same
// dpfs.File) can route their Commit calls to the one place that makes
// them durable together.
type commitThrough struct {
	raf.RAF
	commit func() error
}

func (self commitThrough) Commit() error { return self.commit() }

// splitDpfsView slices a dpfs.File's logical span into the hash-region
// window IVFS treats as its hash storage and the logical-image window
// it treats as leaf data, so both live inside the same DPFS-mirrored
// span and flip live together under one selector commit.
func splitDpfsView(dpfsFile *dpfs.File, hashRegionSize, logicalImageSize int64) (hashWindow, imageData raf.RAF, err error) {
	hashWindow, err = raf.NewSubFile(dpfsFile, 0, hashRegionSize)
	if err != nil {
		return nil, nil, err
	}
	imageWindow, err := raf.NewSubFile(dpfsFile, hashRegionSize, logicalImageSize)
	if err != nil {
		return nil, nil, err
	}
	imageData = commitThrough{RAF: imageWindow, commit: dpfsFile.Commit}
	return hashWindow, imageData, nil
}

// container is the fully-assembled layer stack shared by SaveData,
// ExtData, and TitleDb: raw file -> SignedFile (if
// signed) -> DiskFile (if encrypted) -> DPFS -> IVFS -> fsmeta.Meta.
type container struct {
	raw    raf.RAF
	signed *signedFileHandle
	level  *ivfs.Chain
	meta   *fsmeta.Meta
	layout layout
}

// signedFileHandle carries just the Commit hook a *signedfile.File
// exposes, so container doesn't need a second concrete field type for
// the signed vs. unsigned cases.
type signedFileHandle struct {
	commit func() error
}

func buildLayers(raw raf.RAF, c crypto, provenance headerProvenance) (raf.RAF, *signedFileHandle, error) {
	body := raw
	var sf *signedFileHandle

	if c.signed {
		header, err := raf.NewSubFile(raw, 0, signedHeaderLen)
		if err != nil {
			return nil, nil, err
		}
		cipherBody, err := raf.NewSubFile(raw, signedHeaderLen, raw.Len()-signedHeaderLen)
		if err != nil {
			return nil, nil, err
		}
		sfile, err := newSignedContainer(header, cipherBody, provenance, c.cmacKey)
		if err != nil {
			return nil, nil, err
		}
		sf = sfile.handle
		body = sfile.raf
	}

	if c.encrypted {
		df, err := diskfile.New(body, c.diskKey, c.ctr)
		if err != nil {
			return nil, nil, err
		}
		body = df
	}

	return body, sf, nil
}

// signedContainer bundles a signedfile.File both as a raf.RAF (for
// building the next layer) and as a commit hook, so container.Commit
// doesn't need to import signedfile's concrete type through a wrapper
// interface trick.
type signedContainer struct {
	raf    raf.RAF
	handle *signedFileHandle
}

func formatContainer(raw raf.RAF, p FormatParams, c crypto, provenance headerProvenance, resizable bool) (*container, error) {
	lay, err := computeLayout(p)
	if err != nil {
		return nil, err
	}
	if raw.Len() != headerLen(c)+lay.bodyLen {
		return nil, save3derr.New(save3derr.BadParams, "archive", "raw image length does not match computed layout")
	}

	body, sf, err := buildLayersFormat(raw, c, provenance)
	if err != nil {
		return nil, err
	}

	carved, err := lay.carve(body)
	if err != nil {
		return nil, err
	}

	selDual, err := dualfile.New(carved.selectorBit, [2]raf.RAF{carved.selectorA, carved.selectorB})
	if err != nil {
		return nil, err
	}
	dpfsFile, err := dpfs.New(selDual, [2]raf.RAF{carved.partition0, carved.partition1}, p.BlockLen)
	if err != nil {
		return nil, err
	}
	hashWindow, imageData, err := splitDpfsView(dpfsFile, lay.hashRegionSize, lay.logicalImageSize)
	if err != nil {
		return nil, err
	}
	level, err := ivfs.NewChain(imageData, []int{p.BlockLen}, []raf.RAF{hashWindow}, carved.hashRoot)
	if err != nil {
		return nil, err
	}

	cfg, err := lay.metaConfig(level, resizable)
	if err != nil {
		return nil, err
	}
	meta, err := fsmeta.Format(cfg)
	if err != nil {
		return nil, err
	}

	mlog.Printf2("archive/container", "archive.Format block_len=%d len=%d max_dir=%d max_file=%d", p.BlockLen, p.Len, p.MaxDir, p.MaxFile)
	return &container{raw: raw, signed: sf, level: level, meta: meta, layout: lay}, nil
}

func openContainer(raw raf.RAF, p FormatParams, c crypto, provenance headerProvenance, resizable bool) (*container, error) {
	lay, err := computeLayout(p)
	if err != nil {
		return nil, err
	}

	body, sf, err := buildLayers(raw, c, provenance)
	if err != nil {
		return nil, err
	}

	carved, err := lay.carve(body)
	if err != nil {
		return nil, err
	}

	selDual, err := dualfile.New(carved.selectorBit, [2]raf.RAF{carved.selectorA, carved.selectorB})
	if err != nil {
		return nil, err
	}
	dpfsFile, err := dpfs.New(selDual, [2]raf.RAF{carved.partition0, carved.partition1}, p.BlockLen)
	if err != nil {
		return nil, err
	}
	hashWindow, imageData, err := splitDpfsView(dpfsFile, lay.hashRegionSize, lay.logicalImageSize)
	if err != nil {
		return nil, err
	}
	level, err := ivfs.NewChain(imageData, []int{p.BlockLen}, []raf.RAF{hashWindow}, carved.hashRoot)
	if err != nil {
		return nil, err
	}

	cfg, err := lay.metaConfig(level, resizable)
	if err != nil {
		return nil, err
	}
	meta, err := fsmeta.OpenMeta(cfg)
	if err != nil {
		return nil, err
	}

	return &container{raw: raw, signed: sf, level: level, meta: meta, layout: lay}, nil
}

// buildLayersFormat is buildLayers using NewUnverified/plain construction
// (no signature to check yet, since Format writes a brand-new image).
func buildLayersFormat(raw raf.RAF, c crypto, provenance headerProvenance) (raf.RAF, *signedFileHandle, error) {
	body := raw
	var sf *signedFileHandle

	if c.signed {
		header, err := raf.NewSubFile(raw, 0, signedHeaderLen)
		if err != nil {
			return nil, nil, err
		}
		cipherBody, err := raf.NewSubFile(raw, signedHeaderLen, raw.Len()-signedHeaderLen)
		if err != nil {
			return nil, nil, err
		}
		sfile, err := newUnverifiedSignedContainer(header, cipherBody, provenance, c.cmacKey)
		if err != nil {
			return nil, nil, err
		}
		sf = sfile.handle
		body = sfile.raf
	}

	if c.encrypted {
		df, err := diskfile.New(body, c.diskKey, c.ctr)
		if err != nil {
			return nil, nil, err
		}
		body = df
	}

	return body, sf, nil
}

func headerLen(c crypto) int64 {
	if c.signed {
		return signedHeaderLen
	}
	return 0
}

// Commit persists every layer bottom-up: self.level.Commit() writes the
// hash chain's levels first and only then flips the DPFS selector (both
// the hash region and the logical image live inside the same
// DPFS-duplicated span, so that flip lands both together), then the
// SignedFile MAC, then the raw backing file.
func (self *container) Commit() error {
	if err := self.level.Commit(); err != nil {
		return err
	}
	if self.signed != nil {
		if err := self.signed.commit(); err != nil {
			return err
		}
	}
	return self.raw.Commit()
}
