package archive

import (
	"encoding/hex"

	"github.com/go-save3ds/save3ds/keyengine"
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
	"github.com/go-save3ds/save3ds/util"
)

// TitleDbBrokenBlockCount is the default number of trailing blocks a
// title database's allocator must never hand out, reserving space
// hardware sets aside for blocks it reports broken. TicketDbBrokenBlockCount
// is the ticket database's exception: it never sets any blocks aside.
const (
	TitleDbBrokenBlockCount  = 1
	TicketDbBrokenBlockCount = 0
)

// TitleDb is a flat title_id -> fixed-size-record map: layered directly
// over the same FsMeta hash-table primitive as SaveData, but with every
// record filed as a same-size file at the root, keyed by the title id
// encoded as its 16-hex-digit name.
type TitleDb struct {
	c          *container
	recordSize int64
}

func titleIDName(titleID uint64) string {
	return hex.EncodeToString(util.Uint64Bytes(titleID))
}

// titleDbParams derives the fsmeta layout parameters for a title
// database of capacity records of recordSize bytes, each rounded up to
// whole blocks, holding back brokenBlocks worth of space per
// TitleDbBrokenBlockCount.
func titleDbParams(capacity int, recordSize int64, blockLen int, brokenBlocks int) FormatParams {
	dataBlocks := capacity*util.DivideUp(int(recordSize), blockLen) + brokenBlocks
	buckets := capacity
	if buckets < 1 {
		buckets = 1
	}
	return FormatParams{
		MaxDir: 1, MaxFile: capacity,
		DirBuckets: 1, FileBuckets: buckets,
		BlockLen: blockLen, Len: int64(dataBlocks) * int64(blockLen),
	}
}

// FormatTitleDb lays out a brand-new, empty title database.
func FormatTitleDb(raw raf.RAF, res *keyengine.Resource, variant Variant, capacity int, recordSize int64, blockLen int, brokenBlocks int, provenanceTemplate [16]byte) (*TitleDb, error) {
	params := titleDbParams(capacity, recordSize, blockLen, brokenBlocks)
	c, err := cryptoFor(res, variant, [16]byte{})
	if err != nil {
		return nil, err
	}
	cont, err := formatContainer(raw, params, c, headerProvenance{template: provenanceTemplate}, false)
	if err != nil {
		return nil, err
	}
	return &TitleDb{c: cont, recordSize: recordSize}, nil
}

// OpenTitleDb opens an existing title database.
func OpenTitleDb(raw raf.RAF, res *keyengine.Resource, variant Variant, capacity int, recordSize int64, blockLen int, brokenBlocks int, provenanceTemplate [16]byte) (*TitleDb, error) {
	params := titleDbParams(capacity, recordSize, blockLen, brokenBlocks)
	c, err := cryptoFor(res, variant, [16]byte{})
	if err != nil {
		return nil, err
	}
	cont, err := openContainer(raw, params, c, headerProvenance{template: provenanceTemplate}, false)
	if err != nil {
		return nil, err
	}
	return &TitleDb{c: cont, recordSize: recordSize}, nil
}

// Lookup returns the raw record bytes for titleID, or NotFound.
func (self *TitleDb) Lookup(titleID uint64) ([]byte, error) {
	root := newDirHandle(self.c.meta, 1)
	f, err := root.OpenSubFile(titleIDName(titleID))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, self.recordSize)
	if err := f.ReadAt(0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Put creates or overwrites titleID's record.
func (self *TitleDb) Put(titleID uint64, record []byte) error {
	if int64(len(record)) != self.recordSize {
		return save3derr.New(save3derr.BadParams, "archive", "record size mismatch")
	}
	root := newDirHandle(self.c.meta, 1)
	name := titleIDName(titleID)
	f, err := root.OpenSubFile(name)
	if err != nil {
		f, err = root.CreateSubFile(name, self.recordSize)
		if err != nil {
			return err
		}
	}
	return f.WriteAt(0, record)
}

// Delete removes titleID's record.
func (self *TitleDb) Delete(titleID uint64) error {
	root := newDirHandle(self.c.meta, 1)
	f, err := root.OpenSubFile(titleIDName(titleID))
	if err != nil {
		return err
	}
	return f.Delete()
}

// Commit persists every buffered mutation.
func (self *TitleDb) Commit() error {
	return self.c.Commit()
}
