package libcuda

import "bytes"

// CString returns a pointer to a NUL-terminated copy of s. The copy lives in
// Go memory, so the caller must keep the result reachable (runtime.KeepAlive)
// until the driver call that consumes it has returned.
//
// Like C strings, anything after an embedded NUL in s is invisible to the
// driver.
func CString(s string) *byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return &buf[0]
}

// GoString converts a NUL-padded byte buffer filled in by the driver.
func GoString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// IsTerminated reports whether b ends with a NUL byte and can therefore be
// handed to ModuleLoadData as-is.
func IsTerminated(b []byte) bool {
	return len(b) > 0 && b[len(b)-1] == 0
}
