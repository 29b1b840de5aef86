// Package signedfile implements the CMAC-AES128 signature RAF layer
// that sits directly on the raw image, beneath DiskFile in the archive
// stack: a header holding the CMAC, verified against
// a Provenance-wrapped view of the body on open and recomputed on
// commit.
package signedfile

import (
	"github.com/go-save3ds/save3ds/mlog"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/jacobsa/crypto/cmac"
	sha256simd "github.com/minio/sha256-simd"
)

const macLen = 16

// Provenance prepends archive-format-specific bytes (a partition
// descriptor's identifying fields) to the body before hashing, so a MAC
// computed for one archive/partition can't be replayed onto another
// with the same body bytes.
type Provenance interface {
	Block(body []byte) []byte
}

// RawProvenance uses the body unmodified, for formats with no separate
// header template to mix in.
type RawProvenance struct{}

func (RawProvenance) Block(body []byte) []byte {
	return body
}

// File is a RAF whose data body is backed by another RAF and whose
// integrity is guarded by a 16-byte AES-CMAC stored in a small header RAF.
type File struct {
	header     raf.RAF
	data       raf.RAF
	provenance Provenance
	key        [16]byte
	length     int64
	readOnly   bool
}

var _ raf.RAF = (*File)(nil)

// NewUnverified wraps data and header without checking the stored MAC,
// for formats where the header hasn't been written yet (fresh format) or
// where verification happens elsewhere.
func NewUnverified(header, data raf.RAF, provenance Provenance, key [16]byte) (*File, error) {
	if header.Len() != macLen {
		return nil, save3derr.New(save3derr.BadFormat, "signedfile", "header length must be 16")
	}
	return &File{
		header:     header,
		data:       data,
		provenance: provenance,
		key:        key,
		length:     data.Len(),
	}, nil
}

// New wraps data and header, verifying the stored MAC against the current
// body. It returns save3derr with Kind SignatureMismatch if they disagree.
func New(header, data raf.RAF, provenance Provenance, key [16]byte) (*File, error) {
	f, err := NewUnverified(header, data, provenance, key)
	if err != nil {
		return nil, err
	}
	stored := make([]byte, macLen)
	if err := header.ReadAt(0, stored); err != nil {
		return nil, err
	}
	computed, err := f.calculateSignature()
	if err != nil {
		return nil, err
	}
	if !equalBytes(stored, computed[:]) {
		mlog.Printf2("signedfile/signedfile", "signature mismatch")
		return nil, save3derr.New(save3derr.SignatureMismatch, "signedfile", "")
	}
	return f, nil
}

// NewReadOnly is like New but Commit is a no-op instead of rewriting the
// header, for archives opened without write access.
func NewReadOnly(header, data raf.RAF, provenance Provenance, key [16]byte) (*File, error) {
	f, err := New(header, data, provenance, key)
	if err != nil {
		return nil, err
	}
	f.readOnly = true
	return f, nil
}

func (self *File) calculateSignature() ([macLen]byte, error) {
	var out [macLen]byte
	body := make([]byte, self.length)
	if err := self.data.ReadAt(0, body); err != nil {
		return out, err
	}
	block := self.provenance.Block(body)
	hash := sha256simd.Sum256(block)

	mac, err := cmac.New(self.key[:])
	if err != nil {
		return out, save3derr.New(save3derr.KeyError, "signedfile", err.Error())
	}
	mac.Write(hash[:])
	copy(out[:], mac.Sum(nil))
	return out, nil
}

func (self *File) Len() int64 {
	return self.length
}

func (self *File) ReadAt(off int64, buf []byte) error {
	return self.data.ReadAt(off, buf)
}

func (self *File) WriteAt(off int64, buf []byte) error {
	if self.readOnly {
		return save3derr.New(save3derr.NotSupported, "signedfile", "read-only")
	}
	return self.data.WriteAt(off, buf)
}

// Commit recomputes the MAC over the current body and writes it to the
// header RAF, then commits data and header in that order (data must be
// durable before the signature that vouches for it).
func (self *File) Commit() error {
	if self.readOnly {
		return nil
	}
	mlog.Printf2("signedfile/signedfile", "signedfile.Commit")
	if err := self.data.Commit(); err != nil {
		return err
	}
	sig, err := self.calculateSignature()
	if err != nil {
		return err
	}
	if err := self.header.WriteAt(0, sig[:]); err != nil {
		return err
	}
	return self.header.Commit()
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
