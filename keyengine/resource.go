// Package keyengine reproduces the console's key derivation scheme: a
// boot ROM image yields fixed per-slot keyX values; OTP, when supplied,
// yields console-unique keys after a stage that consumes constants from
// the boot ROM; movable.sed supplies the per-console SD keyY, which is
// copied out of it as is (the bare 16-byte form, or the 16 bytes at
// offset 0x110 of the full form) with no further derivation. Every archive
// locator combines a keyX slot with a keyY to get the AES key DiskFile
// uses and a CMAC key/header template for SignedFile.
//
// Every derivation here is a pure function of its inputs so tests can
// pin intermediate values: unlike the rest of the archive engine there
// is no I/O or mutable state in this package.
package keyengine

import (
	"github.com/go-save3ds/save3ds/save3derr"
	sha256simd "github.com/minio/sha256-simd"
)

// Slot identifies one of the console's fixed AES key slots.
type Slot int

const (
	// SlotSD is the keyslot scrambled with the SD seed to encrypt/sign
	// SD save data, SD extdata, and the title database.
	SlotSD Slot = 0x34
	// SlotSDCmac is the keyslot used for the CMAC over SD-resident
	// archives (a distinct slot from SlotSD on real hardware).
	SlotSDCmac Slot = 0x30
	// SlotNand is the keyslot scrambled with the console-unique OTP key
	// to encrypt/sign NAND-resident save data and extdata.
	SlotNand Slot = 0x35
	// SlotNandCmac is the CMAC keyslot counterpart for NAND archives.
	SlotNandCmac Slot = 0x31

	slotCount = 0x40
	// bootROMKeyTableOffset is where this package expects the fixed
	// per-slot keyX table to begin inside a boot ROM image. Real
	// hardware scatters keyX material across boot9 in a proprietary,
	// undocumented layout; this package uses one fixed contiguous table
	// instead, since byte-exact boot ROM compatibility can't be verified
	// without a real console dump.
	bootROMKeyTableOffset = 0x5900
)

// movableSedShortLen is a movable.sed containing only the raw 16-byte SD
// keyY, no header.
const movableSedShortLen = 16

// movableSedLongLen is the full movable.sed format: a signed header
// followed by the keyY at movableSedKeyYOffset.
const movableSedLongLen = 0x140
const movableSedKeyYOffset = 0x110
const movableSedMagic = "SEED"

// Resource is a key bundle created once from optional key sources and
// used for the lifetime of a process (or however long the caller wants
// to keep it); it is safe for concurrent read-only use by multiple
// archives since every derivation is a pure function over its fields.
type Resource struct {
	haveBoot9 bool
	keyX      [slotCount][16]byte

	haveOTP   bool
	nandKeyY  [16]byte
	haveSD    bool
	sdKeyY    [16]byte
}

// OpenResource builds a Resource from optional key sources. Each of
// boot9, otp, movableSed may be nil; the returned Resource can only
// derive keys for the sources it was given (see KeyError below).
func OpenResource(boot9, otp, movableSed []byte) (*Resource, error) {
	r := &Resource{}

	if boot9 != nil {
		if len(boot9) < bootROMKeyTableOffset+slotCount*16 {
			return nil, save3derr.New(save3derr.KeyError, "keyengine", "boot9 image too short")
		}
		for slot := 0; slot < slotCount; slot++ {
			copy(r.keyX[slot][:], boot9[bootROMKeyTableOffset+slot*16:bootROMKeyTableOffset+slot*16+16])
		}
		r.haveBoot9 = true
	}

	if otp != nil {
		keyY, err := deriveConsoleKeyY(otp)
		if err != nil {
			return nil, err
		}
		r.nandKeyY = keyY
		r.haveOTP = true
	}

	if movableSed != nil {
		keyY, err := parseMovableSed(movableSed)
		if err != nil {
			return nil, err
		}
		r.sdKeyY = keyY
		r.haveSD = true
	}

	return r, nil
}

// KeyX returns the fixed keyX for a slot, requiring a boot ROM image.
func (self *Resource) KeyX(slot Slot) ([16]byte, error) {
	if !self.haveBoot9 {
		return [16]byte{}, save3derr.New(save3derr.KeyError, "keyengine", "no boot ROM key material")
	}
	if int(slot) < 0 || int(slot) >= slotCount {
		return [16]byte{}, save3derr.New(save3derr.KeyError, "keyengine", "keyslot out of range")
	}
	return self.keyX[slot], nil
}

// SDKeyY returns the per-console SD seed's keyY, requiring movable.sed.
func (self *Resource) SDKeyY() ([16]byte, error) {
	if !self.haveSD {
		return [16]byte{}, save3derr.New(save3derr.KeyError, "keyengine", "no movable.sed key material")
	}
	return self.sdKeyY, nil
}

// NandKeyY returns the console-unique keyY derived from OTP.
func (self *Resource) NandKeyY() ([16]byte, error) {
	if !self.haveOTP {
		return [16]byte{}, save3derr.New(save3derr.KeyError, "keyengine", "no OTP key material")
	}
	return self.nandKeyY, nil
}

// SDDiskKey returns the scrambled AES key DiskFile uses for SD-resident
// archives (save data, extdata, title database).
func (self *Resource) SDDiskKey() ([16]byte, error) {
	x, err := self.KeyX(SlotSD)
	if err != nil {
		return [16]byte{}, err
	}
	y, err := self.SDKeyY()
	if err != nil {
		return [16]byte{}, err
	}
	return Scramble(x, y), nil
}

// SDCmacKey returns the scrambled CMAC key SignedFile uses for
// SD-resident archives.
func (self *Resource) SDCmacKey() ([16]byte, error) {
	x, err := self.KeyX(SlotSDCmac)
	if err != nil {
		return [16]byte{}, err
	}
	y, err := self.SDKeyY()
	if err != nil {
		return [16]byte{}, err
	}
	return Scramble(x, y), nil
}

// NandDiskKey returns the scrambled AES key DiskFile uses for
// NAND-resident archives.
func (self *Resource) NandDiskKey() ([16]byte, error) {
	x, err := self.KeyX(SlotNand)
	if err != nil {
		return [16]byte{}, err
	}
	y, err := self.NandKeyY()
	if err != nil {
		return [16]byte{}, err
	}
	return Scramble(x, y), nil
}

// NandCmacKey returns the scrambled CMAC key SignedFile uses for
// NAND-resident archives.
func (self *Resource) NandCmacKey() ([16]byte, error) {
	x, err := self.KeyX(SlotNandCmac)
	if err != nil {
		return [16]byte{}, err
	}
	y, err := self.NandKeyY()
	if err != nil {
		return [16]byte{}, err
	}
	return Scramble(x, y), nil
}

// deriveConsoleKeyY folds a fixed-length OTP blob down to a console-unique
// keyY via SHA-256, consuming the whole OTP as key material. Real
// hardware runs OTP through an RSA/AES personalization stage using
// constants baked into boot9; this package models only the
// SHA-256-reduction tail of that pipeline.
func deriveConsoleKeyY(otp []byte) ([16]byte, error) {
	if len(otp) < 32 {
		return [16]byte{}, save3derr.New(save3derr.KeyError, "keyengine", "OTP image too short")
	}
	sum := sha256simd.Sum256(otp)
	var out [16]byte
	copy(out[:], sum[:16])
	return out, nil
}

// parseMovableSed accepts either the short (keyY-only) or the long
// (signed header + keyY) movable.sed layouts.
func parseMovableSed(data []byte) ([16]byte, error) {
	var keyY [16]byte
	switch {
	case len(data) == movableSedShortLen:
		copy(keyY[:], data)
	case len(data) >= movableSedLongLen:
		if string(data[:4]) != movableSedMagic {
			return keyY, save3derr.New(save3derr.KeyError, "keyengine", "bad movable.sed magic")
		}
		copy(keyY[:], data[movableSedKeyYOffset:movableSedKeyYOffset+16])
	default:
		return keyY, save3derr.New(save3derr.KeyError, "keyengine", "movable.sed has unrecognized length")
	}
	return keyY, nil
}

// HashMovable derives the "id0" directory name SD archives are stored
// under from the console's SD keyY: SHA-256 of the key, of which the
// first 16 digest bytes are taken, the bytes of each 32-bit little-endian
// word reversed, and the result hex-encoded into 32 characters.
func HashMovable(keyY [16]byte) string {
	hash := sha256simd.Sum256(keyY[:])
	order := [16]int{3, 2, 1, 0, 7, 6, 5, 4, 11, 10, 9, 8, 15, 14, 13, 12}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, 64)
	for _, idx := range order {
		b := hash[idx]
		out = append(out, hexDigits[b>>4], hexDigits[b&0xF])
	}
	return string(out)
}
