package strpool

import (
	"fmt"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// HashFunc digests string content to the 32-bit value the set places entries by
type HashFunc func(in []byte) uint32

// XXHash32 is the default digest
func XXHash32(in []byte) uint32 {
	return xxhash.Checksum32(in)
}

// XXHash64 folds a 64-bit xxhash into 32 bits
func XXHash64(in []byte) uint32 {
	h := xxhash.Checksum64(in)
	return uint32(h) ^ uint32(h>>32)
}

// DJB2 is Bernstein's hash (hash*33 + c), kept for comparison with older pools
func DJB2(in []byte) uint32 {
	hash := uint32(5381)
	for _, c := range in {
		hash = hash<<5 + hash + uint32(c)
	}
	return hash
}

// HashFuncByName resolves the names accepted on the command line
func HashFuncByName(name string) (HashFunc, error) {
	switch strings.ToLower(name) {
	case "", "xxhash", "xxhash32":
		return XXHash32, nil
	case "xxhash64":
		return XXHash64, nil
	case "djb2":
		return DJB2, nil
	}
	return nil, fmt.Errorf("%w: unknown hash %q", ErrInvalidConfig, name)
}
