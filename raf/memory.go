package raf

// MemoryFile is a RAF backed by a plain byte slice: the backing store
// for unit tests and for small in-memory regions (selector bits, DPFS
// bitmaps) that never need to touch the host filesystem directly.
type MemoryFile struct {
	data []byte
}

var _ RAF = (*MemoryFile)(nil)

// NewMemoryFile wraps data directly (no copy); the returned RAF's length
// is fixed at len(data).
func NewMemoryFile(data []byte) *MemoryFile {
	return &MemoryFile{data: data}
}

// NewZeroFile allocates a zero-filled MemoryFile of the given length.
func NewZeroFile(length int) *MemoryFile {
	return &MemoryFile{data: make([]byte, length)}
}

// CloneFrom copies the full contents of another RAF into a new MemoryFile.
func CloneFrom(f RAF) (*MemoryFile, error) {
	buf := make([]byte, f.Len())
	if err := f.ReadAt(0, buf); err != nil {
		return nil, err
	}
	return &MemoryFile{data: buf}, nil
}

func (self *MemoryFile) Len() int64 {
	return int64(len(self.data))
}

func (self *MemoryFile) ReadAt(off int64, buf []byte) error {
	if err := checkBounds("raf/memory", self.Len(), off, len(buf)); err != nil {
		return err
	}
	copy(buf, self.data[off:int(off)+len(buf)])
	return nil
}

func (self *MemoryFile) WriteAt(off int64, buf []byte) error {
	if err := checkBounds("raf/memory", self.Len(), off, len(buf)); err != nil {
		return err
	}
	copy(self.data[off:int(off)+len(buf)], buf)
	return nil
}

func (self *MemoryFile) Commit() error {
	return nil
}

// Bytes returns the backing slice directly; callers must not mutate it
// concurrently with in-flight ReadAt/WriteAt calls.
func (self *MemoryFile) Bytes() []byte {
	return self.data
}
