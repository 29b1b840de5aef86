package fsmeta

import (
	"github.com/go-save3ds/save3ds/raf"
	"github.com/go-save3ds/save3ds/save3derr"
)

// record is implemented by *DirEntry and *FileEntry so table[E, P] can
// serve as the shared hash-bucket/free-list engine for both.
type record interface {
	getParent() uint32
	setParent(uint32)
	getName() [nameLen]byte
	setName([nameLen]byte)
	getNextHash() uint32
	setNextHash(uint32)
}

// table is a hash-indexed array of fixed-layout entries: a bucket array
// of entry indices keyed by hash(parent, name) mod buckets, collision
// chains threaded through each entry's NextInHash field, and a free list
// of unused slots threaded the same way with entry index 0 (never a real
// record) holding the free list's head.
type table[E any, P interface {
	*E
	record
}] struct {
	hash      raf.RAF
	entries   raf.RAF
	buckets   int
	capacity  int
	entrySize int64
	free      int
}

func entrySizeOf[E any, P interface {
	*E
	record
}]() int64 {
	var zero E
	return raf.StructSize(P(&zero))
}

// formatTable zeroes the bucket array and chains entries 1..capacity
// onto the free list (entry 0 is the reserved free-list head).
func formatTable[E any, P interface {
	*E
	record
}](hash, entries raf.RAF, buckets, capacity int) (*table[E, P], error) {
	t := &table[E, P]{hash: hash, entries: entries, buckets: buckets, capacity: capacity, entrySize: entrySizeOf[E, P]()}
	if hash.Len() < int64(buckets)*4 {
		return nil, save3derr.New(save3derr.BadFormat, "fsmeta", "bucket array too small")
	}
	if entries.Len() < int64(capacity+1)*t.entrySize {
		return nil, save3derr.New(save3derr.BadFormat, "fsmeta", "entry array too small")
	}
	if err := hash.WriteAt(0, make([]byte, int64(buckets)*4)); err != nil {
		return nil, err
	}
	for i := 1; i <= capacity; i++ {
		var e E
		p := P(&e)
		if i < capacity {
			p.setNextHash(uint32(i + 1))
		} else {
			p.setNextHash(0)
		}
		if err := t.writeEntry(uint32(i), e); err != nil {
			return nil, err
		}
	}
	head := uint32(0)
	if capacity > 0 {
		head = 1
	}
	if err := t.writeFreeHead(head); err != nil {
		return nil, err
	}
	t.free = capacity
	return t, nil
}

// openTable loads an existing table and recomputes the free count by
// walking the free list.
func openTable[E any, P interface {
	*E
	record
}](hash, entries raf.RAF, buckets, capacity int) (*table[E, P], error) {
	t := &table[E, P]{hash: hash, entries: entries, buckets: buckets, capacity: capacity, entrySize: entrySizeOf[E, P]()}
	cur, err := t.readFreeHead()
	if err != nil {
		return nil, err
	}
	count := 0
	for cur != 0 {
		count++
		e, err := t.readEntry(cur)
		if err != nil {
			return nil, err
		}
		cur = P(&e).getNextHash()
	}
	t.free = count
	return t, nil
}

func (t *table[E, P]) Free() int {
	return t.free
}

func (t *table[E, P]) readEntry(idx uint32) (E, error) {
	var e E
	err := raf.ReadStruct(t.entries, int64(idx)*t.entrySize, P(&e))
	return e, err
}

func (t *table[E, P]) writeEntry(idx uint32, e E) error {
	return raf.WriteStruct(t.entries, int64(idx)*t.entrySize, P(&e))
}

func (t *table[E, P]) readFreeHead() (uint32, error) {
	var e E
	if err := raf.ReadStruct(t.entries, 0, P(&e)); err != nil {
		return 0, err
	}
	return P(&e).getNextHash(), nil
}

func (t *table[E, P]) writeFreeHead(idx uint32) error {
	var e E
	P(&e).setNextHash(idx)
	return raf.WriteStruct(t.entries, 0, P(&e))
}

func (t *table[E, P]) bucketSlot(bucket int) (uint32, error) {
	var buf [4]byte
	if err := t.hash.ReadAt(int64(bucket)*4, buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[:]), nil
}

func (t *table[E, P]) setBucketSlot(bucket int, idx uint32) error {
	var buf [4]byte
	putLe32(buf[:], idx)
	return t.hash.WriteAt(int64(bucket)*4, buf[:])
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Lookup returns the entry index whose (parent, name) matches, or
// NotFound.
func (t *table[E, P]) Lookup(parent uint32, name [nameLen]byte) (uint32, error) {
	bucket := bucketHash(parent, name, t.buckets)
	cur, err := t.bucketSlot(bucket)
	if err != nil {
		return 0, err
	}
	for cur != 0 {
		e, err := t.readEntry(cur)
		if err != nil {
			return 0, err
		}
		p := P(&e)
		if p.getParent() == parent && p.getName() == name {
			return cur, nil
		}
		cur = p.getNextHash()
	}
	return 0, save3derr.New(save3derr.NotFound, "fsmeta", "")
}

// Insert allocates a free entry, sets its (parent, name), links it into
// its hash bucket, and returns its index. Every other field of the
// zero-valued E is left at its zero value for the caller to fill in.
func (t *table[E, P]) Insert(parent uint32, name [nameLen]byte) (uint32, error) {
	if _, err := t.Lookup(parent, name); err == nil {
		return 0, save3derr.New(save3derr.Duplicate, "fsmeta", "")
	}
	head, err := t.readFreeHead()
	if err != nil {
		return 0, err
	}
	if head == 0 {
		return 0, save3derr.New(save3derr.NoSpace, "fsmeta", "")
	}
	freeEntry, err := t.readEntry(head)
	if err != nil {
		return 0, err
	}
	nextFree := P(&freeEntry).getNextHash()
	if err := t.writeFreeHead(nextFree); err != nil {
		return 0, err
	}

	bucket := bucketHash(parent, name, t.buckets)
	bucketHead, err := t.bucketSlot(bucket)
	if err != nil {
		return 0, err
	}

	var e E
	p := P(&e)
	p.setParent(parent)
	p.setName(name)
	p.setNextHash(bucketHead)
	if err := t.writeEntry(head, e); err != nil {
		return 0, err
	}
	if err := t.setBucketSlot(bucket, head); err != nil {
		return 0, err
	}
	t.free--
	return head, nil
}

// Remove unlinks idx from its hash bucket and returns it to the free
// list.
func (t *table[E, P]) Remove(idx uint32) error {
	e, err := t.readEntry(idx)
	if err != nil {
		return err
	}
	p := P(&e)
	parent, name := p.getParent(), p.getName()
	bucket := bucketHash(parent, name, t.buckets)

	head, err := t.bucketSlot(bucket)
	if err != nil {
		return err
	}
	if head == idx {
		if err := t.setBucketSlot(bucket, p.getNextHash()); err != nil {
			return err
		}
	} else {
		cur := head
		for cur != 0 {
			ce, err := t.readEntry(cur)
			if err != nil {
				return err
			}
			cp := P(&ce)
			next := cp.getNextHash()
			if next == idx {
				cp.setNextHash(p.getNextHash())
				if err := t.writeEntry(cur, ce); err != nil {
					return err
				}
				break
			}
			cur = next
		}
	}

	freeHead, err := t.readFreeHead()
	if err != nil {
		return err
	}
	var zero E
	zp := P(&zero)
	zp.setNextHash(freeHead)
	if err := t.writeEntry(idx, zero); err != nil {
		return err
	}
	if err := t.writeFreeHead(idx); err != nil {
		return err
	}
	t.free++
	return nil
}

// unlinkHashBucket splices idx out of the hash chain for (parent, name)
// without touching the free list, for callers that reuse the slot under
// a different key (Rename) rather than releasing it (Remove).
func unlinkHashBucket[E any, P interface {
	*E
	record
}](t *table[E, P], idx uint32, parent uint32, name [nameLen]byte) error {
	bucket := bucketHash(parent, name, t.buckets)
	head, err := t.bucketSlot(bucket)
	if err != nil {
		return err
	}
	if head == idx {
		e, err := t.readEntry(idx)
		if err != nil {
			return err
		}
		return t.setBucketSlot(bucket, P(&e).getNextHash())
	}
	cur := head
	for cur != 0 {
		ce, err := t.readEntry(cur)
		if err != nil {
			return err
		}
		cp := P(&ce)
		next := cp.getNextHash()
		if next == idx {
			target, err := t.readEntry(idx)
			if err != nil {
				return err
			}
			cp.setNextHash(P(&target).getNextHash())
			return t.writeEntry(cur, ce)
		}
		cur = next
	}
	return save3derr.New(save3derr.NotFound, "fsmeta", "entry not linked under its hash bucket")
}

// linkHashBucket threads idx onto the front of the (parent, name) hash
// chain; the entry at idx must already have parent/name set to match.
func linkHashBucket[E any, P interface {
	*E
	record
}](t *table[E, P], idx uint32, parent uint32, name [nameLen]byte) error {
	bucket := bucketHash(parent, name, t.buckets)
	bucketHead, err := t.bucketSlot(bucket)
	if err != nil {
		return err
	}
	e, err := t.readEntry(idx)
	if err != nil {
		return err
	}
	P(&e).setNextHash(bucketHead)
	if err := t.writeEntry(idx, e); err != nil {
		return err
	}
	return t.setBucketSlot(bucket, idx)
}

// Get returns the raw entry at idx for higher-level field access
// (sibling list pointers, size, storage location, ...).
func (t *table[E, P]) Get(idx uint32) (E, error) {
	return t.readEntry(idx)
}

// Set writes back a raw entry previously obtained from Get.
func (t *table[E, P]) Set(idx uint32, e E) error {
	return t.writeEntry(idx, e)
}
