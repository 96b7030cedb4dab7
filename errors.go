package strpool

import "errors"

var (
	// ErrOutOfMemory is returned when storage for the buffer or the set cannot be allocated,
	// either because the runtime refused the allocation or a MemoryBudget is exhausted
	ErrOutOfMemory = errors.New("strpool: out of memory")
	// ErrCapacityExceeded is returned when growth would pass the largest representable size
	ErrCapacityExceeded = errors.New("strpool: capacity exceeded")
	// ErrSetFull is returned when no slot could be found even after a rehash
	ErrSetFull = errors.New("strpool: set full")
	// ErrInvalidArgument is returned for nil content or out of range prefix/range bounds
	ErrInvalidArgument = errors.New("strpool: invalid argument")
	// ErrClosed is returned when inserting into a pool that has been closed
	ErrClosed = errors.New("strpool: pool closed")
	// ErrInvalidConfig is returned by New when the configuration does not validate
	ErrInvalidConfig = errors.New("strpool: invalid config")
)
