package archive

import (
	"testing"

	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/stvp/assert"
)

func TestDecodeNameRoundTripsEscapes(t *testing.T) {
	raw, err := DecodeName(`a\x2Fb\\c`)
	assert.Nil(t, err)
	assert.Equal(t, raw, "a/b\\c")
	assert.Equal(t, EncodeName(raw), `a\x2Fb\x5Cc`)
}

func TestDecodeNamePassesPlainASCIIThrough(t *testing.T) {
	raw, err := DecodeName("icon.bin")
	assert.Nil(t, err)
	assert.Equal(t, raw, "icon.bin")
	assert.Equal(t, EncodeName(raw), "icon.bin")
}

func TestDecodeNameChecksRawLengthNotEscapedLength(t *testing.T) {
	// 16 raw bytes, one of which needs escaping: the escaped form is
	// longer than 16 characters but the raw form still fits the slot.
	raw, err := DecodeName(`aaaaaaaaaaaaaaa\x2F`)
	assert.Nil(t, err)
	assert.Equal(t, len(raw), 16)
}

func TestDecodeNameRejectsOverlongRawName(t *testing.T) {
	_, err := DecodeName("this-name-is-far-too-long-for-the-slot")
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.NameTooLong))
}

func TestParseCreateSizeSuffix(t *testing.T) {
	base, size, hasSize, err := ParseCreateSizeSuffix(`icon\+1024`)
	assert.Nil(t, err)
	assert.True(t, hasSize)
	assert.Equal(t, base, "icon")
	assert.Equal(t, size, int64(1024))

	base, _, hasSize, err = ParseCreateSizeSuffix("icon")
	assert.Nil(t, err)
	assert.True(t, !hasSize)
	assert.Equal(t, base, "icon")
}

func TestParseCreateSizeSuffixRejectsMalformedNumber(t *testing.T) {
	_, _, _, err := ParseCreateSizeSuffix(`icon\+notanumber`)
	assert.NotNil(t, err)
	assert.True(t, save3derr.Is(err, save3derr.BadParams))
}
