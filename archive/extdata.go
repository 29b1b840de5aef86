package archive

import (
	"encoding/hex"

	"github.com/go-save3ds/save3ds/keyengine"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
)

// ExtData is a DIFF-style archive whose files are fixed size for their
// whole lifetime once created. Its two tiers are a device directory
// (deviceID, hex-encoded) holding one file per fileID: layout inherited
// directly from FsMeta's ordinary directory/file tree, just with
// Resizable=false.
type ExtData struct {
	c *container
}

// FormatExtData lays out a brand-new, empty extdata image.
func FormatExtData(raw raf.RAF, res *keyengine.Resource, variant Variant, params FormatParams, provenanceTemplate [16]byte) (*ExtData, error) {
	c, err := cryptoFor(res, variant, [16]byte{})
	if err != nil {
		return nil, err
	}
	cont, err := formatContainer(raw, params, c, headerProvenance{template: provenanceTemplate}, false)
	if err != nil {
		return nil, err
	}
	return &ExtData{c: cont}, nil
}

// OpenExtData opens an existing extdata image.
func OpenExtData(raw raf.RAF, res *keyengine.Resource, variant Variant, params FormatParams, provenanceTemplate [16]byte) (*ExtData, error) {
	c, err := cryptoFor(res, variant, [16]byte{})
	if err != nil {
		return nil, err
	}
	cont, err := openContainer(raw, params, c, headerProvenance{template: provenanceTemplate}, false)
	if err != nil {
		return nil, err
	}
	return &ExtData{c: cont}, nil
}

// RootDir returns a handle to the archive's root directory, from which
// device subdirectories hang.
func (self *ExtData) RootDir() *DirHandle {
	return newDirHandle(self.c.meta, 1)
}

func deviceDirName(deviceID uint32) string { return hex.EncodeToString(util.Uint32Bytes(deviceID)) }
func extFileName(fileID uint32) string     { return hex.EncodeToString(util.Uint32Bytes(fileID)) }

func (self *ExtData) deviceDir(deviceID uint32, create bool) (*DirHandle, error) {
	root := self.RootDir()
	name := deviceDirName(deviceID)
	dir, err := root.OpenSubDir(name)
	if err == nil {
		return dir, nil
	}
	if !save3derr.Is(err, save3derr.NotFound) || !create {
		return nil, err
	}
	return root.CreateSubDir(name)
}

// CreateFile creates a fixed-size file under (deviceID, fileID). size
// must be positive; a zero-size create request is rejected before any
// storage is touched.
func (self *ExtData) CreateFile(deviceID, fileID uint32, size int64) (*FileHandle, error) {
	if size <= 0 {
		return nil, save3derr.New(save3derr.BadParams, "archive", "extdata file size must be positive")
	}
	dir, err := self.deviceDir(deviceID, true)
	if err != nil {
		return nil, err
	}
	return dir.CreateSubFile(extFileName(fileID), size)
}

// OpenFile reopens an existing (deviceID, fileID) file.
func (self *ExtData) OpenFile(deviceID, fileID uint32) (*FileHandle, error) {
	dir, err := self.deviceDir(deviceID, false)
	if err != nil {
		return nil, err
	}
	return dir.OpenSubFile(extFileName(fileID))
}

// DeleteFile removes a (deviceID, fileID) file, and its now-empty device
// directory along with it.
func (self *ExtData) DeleteFile(deviceID, fileID uint32) error {
	dir, err := self.deviceDir(deviceID, false)
	if err != nil {
		return err
	}
	f, err := dir.OpenSubFile(extFileName(fileID))
	if err != nil {
		return err
	}
	if err := f.Delete(); err != nil {
		return err
	}
	if err := dir.Delete(); err != nil && !save3derr.Is(err, save3derr.NotEmpty) {
		return err
	}
	return nil
}

// Commit persists every buffered mutation.
func (self *ExtData) Commit() error {
	return self.c.Commit()
}
