// Package goroutineid extracts the calling goroutine's ID from its
// runtime stack header. The view runtime records the loop goroutine's
// ID so dispatch from the loop itself can run inline instead of
// deadlocking on a synchronous hand-off.
package goroutineid

import (
	"bytes"
	"runtime"
	"sync"
)

// The first stack line is "goroutine N [state]:"; 64 bytes always
// covers it, and runtime.Stack truncates the rest.
var bufPool = sync.Pool{
	New: func() any { return make([]byte, 64) },
}

var header = []byte("goroutine ")

// Get returns the current goroutine's ID, or 0 when the stack header
// cannot be parsed.
func Get() int64 {
	buf := bufPool.Get().([]byte)
	n := runtime.Stack(buf, false)
	id := parse(buf[:n])
	//lint:ignore SA6002 a []byte slice header is pointer-like
	bufPool.Put(buf)
	return id
}

// parse reads the decimal ID following the "goroutine " header. The
// header sits at offset zero of a single-goroutine stack dump.
func parse(stack []byte) int64 {
	rest, ok := bytes.CutPrefix(stack, header)
	if !ok {
		return 0
	}
	var id int64
	var digits bool
	for _, b := range rest {
		if b < '0' || b > '9' {
			break
		}
		digits = true
		id = id*10 + int64(b-'0')
	}
	if !digits {
		return 0
	}
	return id
}
