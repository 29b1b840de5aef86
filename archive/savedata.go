package archive

import (
	"github.com/go-save3ds/save3ds/keyengine"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

// Variant selects which key material and container framing a SaveData
// archive uses: bare, SD-resident, or NAND-resident.
type Variant int

const (
	// VariantBare is a standalone save file with no signature or
	// encryption (e.g. extracted for offline editing).
	VariantBare Variant = iota
	// VariantSD is an SD-resident save, signed and encrypted under the
	// SD keyslot pair.
	VariantSD
	// VariantNand is a NAND-resident save, signed and encrypted under
	// the NAND keyslot pair.
	VariantNand
)

// SaveData is a DISA-style archive: a single directory/file tree behind
// SignedFile/DiskFile/DPFS/IVFS.
type SaveData struct {
	c        *container
	warnings []string
}

func cryptoFor(res *keyengine.Resource, variant Variant, archiveCtr [16]byte) (crypto, error) {
	switch variant {
	case VariantBare:
		return crypto{}, nil
	case VariantSD:
		diskKey, err := res.SDDiskKey()
		if err != nil {
			return crypto{}, err
		}
		cmacKey, err := res.SDCmacKey()
		if err != nil {
			return crypto{}, err
		}
		return crypto{signed: true, encrypted: true, diskKey: diskKey, cmacKey: cmacKey, ctr: archiveCtr}, nil
	case VariantNand:
		diskKey, err := res.NandDiskKey()
		if err != nil {
			return crypto{}, err
		}
		cmacKey, err := res.NandCmacKey()
		if err != nil {
			return crypto{}, err
		}
		return crypto{signed: true, encrypted: true, diskKey: diskKey, cmacKey: cmacKey, ctr: archiveCtr}, nil
	default:
		return crypto{}, save3derr.New(save3derr.BadParams, "archive", "unknown save data variant")
	}
}

// FormatSaveData lays out a brand-new save-data image on raw (which must
// already be exactly the right length; use RawImageLen to size it).
func FormatSaveData(raw raf.RAF, res *keyengine.Resource, variant Variant, params FormatParams, provenanceTemplate [16]byte) (*SaveData, error) {
	c, err := cryptoFor(res, variant, [16]byte{})
	if err != nil {
		return nil, err
	}
	cont, err := formatContainer(raw, params, c, headerProvenance{template: provenanceTemplate}, true)
	if err != nil {
		return nil, err
	}
	return &SaveData{c: cont}, nil
}

// OpenSaveData opens an existing save-data image, verifying its
// signature (if any) as part of container construction.
func OpenSaveData(raw raf.RAF, res *keyengine.Resource, variant Variant, params FormatParams, provenanceTemplate [16]byte) (*SaveData, error) {
	c, err := cryptoFor(res, variant, [16]byte{})
	if err != nil {
		return nil, err
	}
	cont, err := openContainer(raw, params, c, headerProvenance{template: provenanceTemplate}, true)
	if err != nil {
		return nil, err
	}
	return &SaveData{c: cont}, nil
}

// RawImageLen returns the exact backing-file length FormatSaveData/
// OpenSaveData expect for params under variant.
func RawImageLen(variant Variant, params FormatParams) (int64, error) {
	lay, err := computeLayout(params)
	if err != nil {
		return 0, err
	}
	if variant == VariantBare {
		return lay.bodyLen, nil
	}
	return signedHeaderLen + lay.bodyLen, nil
}

// RootDir returns a handle to the archive's root directory.
func (self *SaveData) RootDir() *DirHandle {
	return newDirHandle(self.c.meta, 1)
}

// Commit persists every buffered mutation, bottom-up.
func (self *SaveData) Commit() error {
	return self.c.Commit()
}

// Warnings reports conditions the core detected but chose not to fail
// on, e.g. an untouched Quota.dat sibling for NAND extdata.
func (self *SaveData) Warnings() []string {
	return self.warnings
}
