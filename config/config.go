// Package config models the kernel's compile-time configuration options
// (spec.md §6), resolved once at kernel construction time via a functional
// options pattern grounded on the eventloop package's options.go
// (LoopOption / loopOptionImpl / resolveLoopOptions).
package config

import (
	"io"

	"github.com/joeycumines/logiface"
)

// PriorityDirection selects whether a lower numeric priority value means
// higher or lower scheduling priority.
type PriorityDirection int

const (
	// LowerIsHigher: priority 0 preempts priority 1 (the default).
	LowerIsHigher PriorityDirection = iota
	// LowerIsLower: priority 0 is the least urgent.
	LowerIsLower
)

// Config holds the resolved compile-time options.
type Config struct {
	PriorityDirection PriorityDirection
	PriorityLevels    int // P, maximum priority levels, <= 32
	UseCPUBitScan     bool
	TimerSkipLevels   int // shipped value: 1
	TickRateHz        int

	OutputBufferSize int
	IdleStackSize    int

	StaticAllocationEnabled  bool
	DynamicAllocationEnabled bool
	DynamicPoolSize          int

	IPCEnabled          bool
	SemaphoreEnabled    bool
	MutexEnabled        bool
	RecursiveMutexEnabled bool
	QueueEnabled        bool

	DebugLoggingEnabled bool
	LogWriter           io.Writer
	LogLevel            logiface.Level

	RecursiveMutexMaxDepth int
}

// Default returns the configuration the reference board boots with: 32
// priority levels, lower-number-is-higher priority, a 1-level timer list,
// 1000 Hz tick rate, both allocation paths enabled, all IPC types enabled,
// and debug logging off.
func Default() Config {
	return Config{
		PriorityDirection:        LowerIsHigher,
		PriorityLevels:           32,
		UseCPUBitScan:            true,
		TimerSkipLevels:          1,
		TickRateHz:               1000,
		OutputBufferSize:         256,
		IdleStackSize:            512,
		StaticAllocationEnabled:  true,
		DynamicAllocationEnabled: true,
		DynamicPoolSize:          16 * 1024,
		IPCEnabled:               true,
		SemaphoreEnabled:         true,
		MutexEnabled:             true,
		RecursiveMutexEnabled:    true,
		QueueEnabled:             true,
		DebugLoggingEnabled:      false,
		LogLevel:                 logiface.LevelDisabled,
		RecursiveMutexMaxDepth:   255,
	}
}

// Option configures a Config. Options are applied in order by Resolve.
type Option interface {
	apply(*Config) error
}

type optionFunc func(*Config) error

func (f optionFunc) apply(c *Config) error { return f(c) }

// WithPriorityLevels sets P, the number of distinct priority levels.
// Values above 32 are rejected by Resolve (the ready bitmap is 32 bits).
func WithPriorityLevels(n int) Option {
	return optionFunc(func(c *Config) error {
		c.PriorityLevels = n
		return nil
	})
}

// WithPriorityDirection selects which numeric direction is "higher
// priority."
func WithPriorityDirection(d PriorityDirection) Option {
	return optionFunc(func(c *Config) error {
		c.PriorityDirection = d
		return nil
	})
}

// WithTickRate sets the platform tick rate in Hz, used by millisecond
// helpers (ticks = ms * rate / 1000).
func WithTickRate(hz int) Option {
	return optionFunc(func(c *Config) error {
		c.TickRateHz = hz
		return nil
	})
}

// WithCPUBitScan toggles use of the CPU port's optional bit-scan
// instruction in place of the portable fallback.
func WithCPUBitScan(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.UseCPUBitScan = enabled
		return nil
	})
}

// WithDynamicAllocation enables dynamic thread creation backed
// by a default byte pool of the given size in bytes.
func WithDynamicAllocation(enabled bool, poolSize int) Option {
	return optionFunc(func(c *Config) error {
		c.DynamicAllocationEnabled = enabled
		c.DynamicPoolSize = poolSize
		return nil
	})
}

// WithStaticAllocation toggles the static (caller-supplied control block)
// creation path.
func WithStaticAllocation(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.StaticAllocationEnabled = enabled
		return nil
	})
}

// WithIPC is the master IPC enable switch. It sets only IPCEnabled; the
// per-type switches below keep their own values.
func WithIPC(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.IPCEnabled = enabled
		return nil
	})
}

// WithSemaphore toggles the counting semaphore primitive.
func WithSemaphore(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.SemaphoreEnabled = enabled
		return nil
	})
}

// WithMutex toggles the non-recursive priority-inheritance mutex.
func WithMutex(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.MutexEnabled = enabled
		return nil
	})
}

// WithRecursiveMutex toggles the recursive mutex, and its nesting ceiling.
func WithRecursiveMutex(enabled bool, maxDepth int) Option {
	return optionFunc(func(c *Config) error {
		c.RecursiveMutexEnabled = enabled
		if maxDepth > 0 {
			c.RecursiveMutexMaxDepth = maxDepth
		}
		return nil
	})
}

// WithQueue toggles the bounded message queue primitive.
func WithQueue(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.QueueEnabled = enabled
		return nil
	})
}

// WithDebugLogging turns on structured debug logging, emitted via w at the
// given minimum level (see klog).
func WithDebugLogging(w io.Writer, level logiface.Level) Option {
	return optionFunc(func(c *Config) error {
		c.DebugLoggingEnabled = true
		c.LogWriter = w
		c.LogLevel = level
		return nil
	})
}

// WithOutputBufferSize sets the formatted-output scratch buffer size used
// by kprintf call sites.
func WithOutputBufferSize(n int) Option {
	return optionFunc(func(c *Config) error {
		c.OutputBufferSize = n
		return nil
	})
}

// WithIdleStackSize sets the stack size reserved for the board's idle
// thread.
func WithIdleStackSize(n int) Option {
	return optionFunc(func(c *Config) error {
		c.IdleStackSize = n
		return nil
	})
}

// Resolve folds a Default() Config through opts, in order, the same way
// eventloop's resolveLoopOptions folds LoopOption values into
// loopOptions.
func Resolve(opts ...Option) (Config, error) {
	c := Default()
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(&c); err != nil {
			return Config{}, err
		}
	}
	if c.PriorityLevels <= 0 || c.PriorityLevels > 32 {
		return Config{}, errInvalidPriorityLevels
	}
	if !c.StaticAllocationEnabled && !c.DynamicAllocationEnabled {
		return Config{}, errNoAllocationPath
	}
	return c, nil
}

type configError string

func (e configError) Error() string { return string(e) }

const (
	errInvalidPriorityLevels = configError("config: priority levels must be in [1, 32]")
	errNoAllocationPath      = configError("config: at least one of static or dynamic allocation must be enabled")
)
