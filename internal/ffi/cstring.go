package ffi

import "unsafe"

// ByteSlicePtr returns a pointer to the first element, or 0 for an empty slice.
func ByteSlicePtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Int32Ptr returns a pointer to an int32 as uintptr.
func Int32Ptr(p *int32) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// CString allocates a null-terminated C string from a Go string.
// The caller is responsible for keeping the returned byte slice alive
// for as long as the C code needs it.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// GoString copies a null-terminated C string owned by the shim.
//
//go:nocheckptr
func GoString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// cBuffer returns the string written into buf up to its terminator or n bytes.
func cBuffer(buf []byte, n int) string {
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i])
		}
	}
	return string(buf[:n])
}
