// Package gid extracts the calling goroutine's id, for tagging log lines
// so interleaved output from concurrently open archives stays readable.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// GetGoroutineID parses the running goroutine's id out of a runtime stack
// dump. See http://blog.sgmansfield.com/2015/12/goroutine-ids/.
func GetGoroutineID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}
