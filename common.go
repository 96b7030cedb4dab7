package strpool

import (
	"fmt"
	"unsafe"

	_ "go4.org/unsafe/assume-no-moving-gc"
)

// castStringToBytes returns the bytes backing in without copying. The result must not be modified
func castStringToBytes(in string) []byte {
	return unsafe.Slice(unsafe.StringData(in), len(in))
}

// castBytesToString returns a string sharing memory with in. Only used on buffer bytes below size, which are never written again
func castBytesToString(in []byte) string {
	if len(in) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(in), len(in))
}

// allocSlice is make() that reports a refused allocation as ErrOutOfMemory instead of panicking
func allocSlice[T any](n int) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: allocating %d elements: %v", ErrOutOfMemory, n, r)
		}
	}()
	return make([]T, n), nil
}
