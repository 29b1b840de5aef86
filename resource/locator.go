// Package resource locates the on-disk file backing an archive: the SD
// card's per-console sharded layout and the NAND's fixed layout. This
// is pure path/CTR computation — no directory walking, flag parsing, or
// archive parsing happens here.
package resource

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-save3ds/save3ds/keyengine"
	"github.com/go-save3ds/save3ds/save3derr"
	sha256simd "github.com/minio/sha256-simd"
)

// Locator resolves a logical path (given as its slash-separated
// components, matching what archive.Format*/Open* consumers pass in) to
// a real filesystem path plus, for SD-resident files, the per-file CTR
// diskfile.File needs beyond the archive's own disk key.
type Locator interface {
	// Resolve returns the absolute host path for path.
	Resolve(path []string) string
	// FileCTR returns the AES-CTR counter diskfile.New should use for
	// path, derived from the path itself for SD (nand files have no
	// separate per-file CTR layer beyond the archive's own).
	FileCTR(path []string) [16]byte
}

// SD locates files under a console's SD card root
// (<sdRoot>/Nintendo 3DS/<id0>/<id1>/...), where id0 is derived from the
// console's SD key Y and id1 is whatever single directory already lives
// under id0 (the console's per-title-database id, picked up from disk
// rather than recomputed).
type SD struct {
	root string
}

// OpenSD locates the id1 directory under sdRoot/Nintendo 3DS/<id0> (id0
// from res's SD key Y): the first directory entry found there.
func OpenSD(sdRoot string, res *keyengine.Resource) (*SD, error) {
	keyY, err := res.SDKeyY()
	if err != nil {
		return nil, err
	}
	id0 := keyengine.HashMovable(keyY)
	id0Dir := filepath.Join(sdRoot, "Nintendo 3DS", id0)
	entries, err := os.ReadDir(id0Dir)
	if err != nil {
		return nil, save3derr.Wrap("resource", 0, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return &SD{root: filepath.Join(id0Dir, e.Name())}, nil
		}
	}
	return nil, save3derr.New(save3derr.NotFound, "resource", "no id1 directory under SD id0")
}

func (self *SD) Resolve(path []string) string {
	parts := append([]string{self.root}, path...)
	return filepath.Join(parts...)
}

// FileCTR derives a per-file AES-CTR counter from path: each component
// prefixed with '/', the whole thing encoded as UTF-16LE-ish (ASCII byte
// then a zero byte) and null-terminated, then SHA-256'd and folded in
// half via XOR.
func (self *SD) FileCTR(path []string) [16]byte {
	return sdFileCTR(path)
}

func sdFileCTR(path []string) [16]byte {
	var raw []byte
	for _, comp := range path {
		raw = append(raw, '/')
		for i := 0; i < len(comp); i++ {
			raw = append(raw, comp[i])
		}
	}
	raw = append(raw, 0)

	wide := make([]byte, 0, len(raw)*2)
	for _, b := range raw {
		wide = append(wide, b, 0)
	}

	hash := sha256simd.Sum256(wide)
	var ctr [16]byte
	for i := range ctr {
		ctr[i] = hash[i] ^ hash[i+16]
	}
	return ctr
}

// Nand locates files under a flat NAND root; NAND files carry no
// separate per-file CTR layer (the archive's own SignedFile/DiskFile
// framing already covers them), so FileCTR always returns zero.
type Nand struct {
	root string
}

// OpenNand wraps a NAND root directory directly (no id0/id1 sharding).
func OpenNand(nandRoot string) *Nand {
	return &Nand{root: nandRoot}
}

func (self *Nand) Resolve(path []string) string {
	parts := append([]string{self.root}, path...)
	return filepath.Join(parts...)
}

func (self *Nand) FileCTR(path []string) [16]byte {
	return [16]byte{}
}

// JoinName renders path components back into the escaped, slash-joined
// form archive.EncodeName's callers work with, for logging/diagnostics.
func JoinName(path []string) string {
	return "/" + strings.Join(path, "/")
}

var (
	_ Locator = (*SD)(nil)
	_ Locator = (*Nand)(nil)
)
