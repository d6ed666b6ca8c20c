package logbuffer

import "unsafe"

// ptrAt32/ptrAt64 compute a typed pointer into a byte slice at a fixed
// offset, for use with sync/atomic. Callers are responsible for offset
// alignment (int64 metadata offsets in this package are 8-byte aligned,
// int32 offsets 4-byte aligned).
func ptrAt32(b []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&b[offset])
}

func ptrAt64(b []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&b[offset])
}
