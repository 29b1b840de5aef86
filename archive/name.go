// Package archive implements the SaveData, ExtData, and TitleDb facades
// that sit on top of fsmeta: a signed/encrypted, DPFS/IVFS-verified
// container, the BDRI title database layout, and a two-tier extdata
// container.
package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-save3ds/save3ds/save3derr"
)

// DecodeName turns a host-supplied display name into the raw bytes
// stored in fsmeta's fixed 16-byte slot: \xHH becomes the raw byte,
// \\ becomes a single backslash, everything else passes through
// unchanged. Rejects names whose raw (decoded) form exceeds 16 bytes.
func DecodeName(escaped string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(escaped); i++ {
		if escaped[i] == '\\' && i+1 < len(escaped) {
			switch escaped[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 'x':
				if i+3 < len(escaped) {
					if v, err := strconv.ParseUint(escaped[i+2:i+4], 16, 8); err == nil {
						b.WriteByte(byte(v))
						i += 3
						continue
					}
				}
			}
		}
		b.WriteByte(escaped[i])
	}
	out := b.String()
	if len(out) > 16 {
		return "", save3derr.New(save3derr.NameTooLong, "archive", escaped)
	}
	return out, nil
}

// EncodeName escapes raw on-disk bytes into the display form handed
// back to hosts: non-printable, high-bit, '/' and '\' bytes become
// \xHH escapes.
func EncodeName(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '/' || c == '\\' || c < 0x20 || c >= 0x7F:
			fmt.Fprintf(&b, `\x%02X`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ParseCreateSizeSuffix splits a "\+N" size-request suffix off a create
// request's name, letting a host request a file's initial size as part
// of its name (e.g. "icon\+1024").
func ParseCreateSizeSuffix(name string) (base string, size int64, hasSize bool, err error) {
	idx := strings.LastIndex(name, `\+`)
	if idx < 0 {
		return name, 0, false, nil
	}
	n, convErr := strconv.ParseInt(name[idx+2:], 10, 64)
	if convErr != nil {
		return "", 0, false, save3derr.New(save3derr.BadParams, "archive", "malformed \\+N size suffix")
	}
	return name[:idx], n, true, nil
}
