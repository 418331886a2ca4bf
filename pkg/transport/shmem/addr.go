package shmem

import "unsafe"

// bytesAddr returns the address of b's backing array, used to report a
// Region's Pointer() (§3).
func bytesAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
