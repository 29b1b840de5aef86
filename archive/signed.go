package archive

import (
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/signedfile"
)

// newSignedContainer opens an existing signed body, verifying its CMAC.
func newSignedContainer(header, cipherBody raf.RAF, provenance headerProvenance, key [16]byte) (signedContainer, error) {
	sf, err := signedfile.New(header, cipherBody, provenance, key)
	if err != nil {
		return signedContainer{}, err
	}
	return signedContainer{raf: sf, handle: &signedFileHandle{commit: sf.Commit}}, nil
}

// newUnverifiedSignedContainer wraps a freshly-formatted body without
// checking any (not yet written) signature.
func newUnverifiedSignedContainer(header, cipherBody raf.RAF, provenance headerProvenance, key [16]byte) (signedContainer, error) {
	sf, err := signedfile.NewUnverified(header, cipherBody, provenance, key)
	if err != nil {
		return signedContainer{}, err
	}
	return signedContainer{raf: sf, handle: &signedFileHandle{commit: sf.Commit}}, nil
}
