package raf

// SubFile exposes a fixed byte range of a parent RAF as a RAF of its
// own: used to carve a container image into header/table/partition
// regions without copying.
type SubFile struct {
	parent      RAF
	begin, size int64
}

var _ RAF = (*SubFile)(nil)

// NewSubFile returns the [begin, begin+size) window of parent.
func NewSubFile(parent RAF, begin, size int64) (*SubFile, error) {
	if begin < 0 || size < 0 || begin+size > parent.Len() {
		return nil, checkBounds("raf/subfile", parent.Len(), begin, int(size))
	}
	return &SubFile{parent: parent, begin: begin, size: size}, nil
}

func (self *SubFile) Len() int64 {
	return self.size
}

func (self *SubFile) ReadAt(off int64, buf []byte) error {
	if err := checkBounds("raf/subfile", self.size, off, len(buf)); err != nil {
		return err
	}
	return self.parent.ReadAt(self.begin+off, buf)
}

func (self *SubFile) WriteAt(off int64, buf []byte) error {
	if err := checkBounds("raf/subfile", self.size, off, len(buf)); err != nil {
		return err
	}
	return self.parent.WriteAt(self.begin+off, buf)
}

func (self *SubFile) Commit() error {
	return nil
}
