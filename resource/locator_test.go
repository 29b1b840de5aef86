package resource

import (
	"testing"

	"github.com/stvp/assert"
)

func TestSDFileCTRStableAndPathSensitive(t *testing.T) {
	a := sdFileCTR([]string{"title", "00000001", "00000002", "data", "00000000.sav"})
	b := sdFileCTR([]string{"title", "00000001", "00000002", "data", "00000000.sav"})
	assert.Equal(t, a, b)

	c := sdFileCTR([]string{"title", "00000001", "00000002", "data", "00000001.sav"})
	assert.True(t, a != c)
}

func TestNandFileCTRAlwaysZero(t *testing.T) {
	n := OpenNand("/nand")
	assert.Equal(t, n.FileCTR([]string{"data", "00000000", "sysdata", "00010034", "00000000"}), [16]byte{})
}

func TestNandResolveJoinsRoot(t *testing.T) {
	n := OpenNand("/nand")
	got := n.Resolve([]string{"data", "id", "sysdata", "00010034", "00000000"})
	assert.Equal(t, got, "/nand/data/id/sysdata/00010034/00000000")
}
