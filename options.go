package strpool

import (
	"fmt"
	"math"
)

// Defaults. The set geometry follows Vitter's analysis of coalesced hashing
// (CACM 25(12), doi:10.1145/358728.358745).
const (
	DefaultSetCapacity    = 16
	DefaultLoadFactor     = 0.68
	DefaultCellarRatio    = 0.14
	DefaultBufferCapacity = 16

	// MaxBufferSize is the largest buffer a Ref can address
	MaxBufferSize = math.MaxUint32
	// MaxSetCapacity is the largest slot count a chain link can address
	MaxSetCapacity = math.MaxUint32
)

// Config holds the sizing and behaviour of a Pool.
type Config struct {
	// SetCapacity is the initial number of slots, table and cellar together.
	SetCapacity int
	// LoadFactor is the occupancy above which the set doubles. 0 < LoadFactor <= 1.
	LoadFactor float64
	// CellarRatio is the fraction of slots reserved as cellar. 0 <= CellarRatio < 1.
	CellarRatio float64
	// BufferCapacity is the initial size of the backing buffer in bytes.
	BufferCapacity int

	// MaxBufferSize caps buffer growth; appends past it fail with ErrCapacityExceeded.
	MaxBufferSize uint64
	// MaxSetCapacity caps set growth; a rehash past it fails with ErrCapacityExceeded.
	MaxSetCapacity uint64

	Hash     HashFunc
	Observer Observer
	Budget   *MemoryBudget
}

// DefaultConfig returns the library defaults.
func DefaultConfig() Config {
	return Config{
		SetCapacity:    DefaultSetCapacity,
		LoadFactor:     DefaultLoadFactor,
		CellarRatio:    DefaultCellarRatio,
		BufferCapacity: DefaultBufferCapacity,
		MaxBufferSize:  MaxBufferSize,
		MaxSetCapacity: MaxSetCapacity,
		Hash:           XXHash32,
		Observer:       nopObserver{},
	}
}

// Validate reports the first setting that cannot produce a working pool.
func (c Config) Validate() error {
	switch {
	case c.SetCapacity < 2:
		return fmt.Errorf("%w: set capacity %d, need at least 2", ErrInvalidConfig, c.SetCapacity)
	case !(c.LoadFactor > 0 && c.LoadFactor <= 1):
		return fmt.Errorf("%w: load factor %v outside (0, 1]", ErrInvalidConfig, c.LoadFactor)
	case !(c.CellarRatio >= 0 && c.CellarRatio < 1):
		return fmt.Errorf("%w: cellar ratio %v outside [0, 1)", ErrInvalidConfig, c.CellarRatio)
	case c.BufferCapacity < 1:
		return fmt.Errorf("%w: buffer capacity %d, need at least 1", ErrInvalidConfig, c.BufferCapacity)
	case c.MaxBufferSize > MaxBufferSize || c.MaxBufferSize < uint64(c.BufferCapacity):
		return fmt.Errorf("%w: max buffer size %d outside [%d, %d]", ErrInvalidConfig, c.MaxBufferSize, c.BufferCapacity, uint64(MaxBufferSize))
	case c.MaxSetCapacity > MaxSetCapacity || c.MaxSetCapacity < uint64(c.SetCapacity):
		return fmt.Errorf("%w: max set capacity %d outside [%d, %d]", ErrInvalidConfig, c.MaxSetCapacity, c.SetCapacity, uint64(MaxSetCapacity))
	case c.Hash == nil:
		return fmt.Errorf("%w: no hash function", ErrInvalidConfig)
	}
	if _, table := splitCapacity(c.SetCapacity, c.CellarRatio); table < 1 {
		return fmt.Errorf("%w: cellar ratio %v leaves no table slots at capacity %d", ErrInvalidConfig, c.CellarRatio, c.SetCapacity)
	}
	return nil
}

// Option configures a Pool.
type Option func(*Config)

// WithSetCapacity sets the initial slot count.
func WithSetCapacity(n int) Option {
	return func(c *Config) {
		c.SetCapacity = n
	}
}

// WithLoadFactor sets the resize threshold.
func WithLoadFactor(f float64) Option {
	return func(c *Config) {
		c.LoadFactor = f
	}
}

// WithCellarRatio sets the fraction of slots reserved as cellar.
func WithCellarRatio(r float64) Option {
	return func(c *Config) {
		c.CellarRatio = r
	}
}

// WithBufferCapacity sets the initial buffer size in bytes.
func WithBufferCapacity(n int) Option {
	return func(c *Config) {
		c.BufferCapacity = n
	}
}

// WithMaxBufferSize caps buffer growth.
func WithMaxBufferSize(n uint64) Option {
	return func(c *Config) {
		c.MaxBufferSize = n
	}
}

// WithMaxSetCapacity caps set growth.
func WithMaxSetCapacity(n uint64) Option {
	return func(c *Config) {
		c.MaxSetCapacity = n
	}
}

// WithHashFunc replaces the digest.
//
// If nil is passed, XXHash32 is used.
func WithHashFunc(h HashFunc) Option {
	return func(c *Config) {
		if h == nil {
			h = XXHash32
		}
		c.Hash = h
	}
}

// WithObserver installs an event observer.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		if o == nil {
			o = nopObserver{}
		}
		c.Observer = o
	}
}

// WithLogger routes pool events to a structured logger.
func WithLogger(l *Logger) Option {
	return func(c *Config) {
		if l == nil {
			c.Observer = nopObserver{}
			return
		}
		c.Observer = l
	}
}

// WithMemoryBudget charges buffer and set storage against b.
func WithMemoryBudget(b *MemoryBudget) Option {
	return func(c *Config) {
		c.Budget = b
	}
}
