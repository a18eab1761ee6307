package util

import (
	"bytes"
	"runtime"
	"strconv"
)

// GoroutineID extracts the calling goroutine's numeric id by parsing the
// header line of runtime.Stack's output. It is intentionally only used on
// the cold reentrancy-detection path (the compute family) — never on
// Get/Put's hot path — where the cost of a small stack capture is
// acceptable in exchange for detecting same-goroutine reentrancy without
// threading a token through every caller-supplied callback.
func GoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
