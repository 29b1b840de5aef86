package raf

import (
	"bytes"
	"encoding/binary"
)

// ReadStruct decodes a fixed-layout little-endian struct from f at off.
// dst must be a pointer to a struct made only of fixed-size fields
// (ints, byte arrays, nested such structs) per encoding/binary's rules;
// every on-disk record in this module (FAT entries, directory/file
// entries, DISA/DIFI/BDRI headers) is such a struct.
func ReadStruct(f RAF, off int64, dst interface{}) error {
	n := binary.Size(dst)
	buf := make([]byte, n)
	if err := f.ReadAt(off, buf); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, dst)
}

// WriteStruct encodes src (same shape constraints as ReadStruct) and
// writes it to f at off.
func WriteStruct(f RAF, off int64, src interface{}) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, src); err != nil {
		return err
	}
	return f.WriteAt(off, buf.Bytes())
}

// StructSize returns the encoded size of a fixed-layout struct value.
func StructSize(v interface{}) int64 {
	return int64(binary.Size(v))
}
