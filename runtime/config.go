package runtime

import (
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
)

// Environment variables honored by DefaultConfig.
const (
	EnvAlwaysAlloc = "CAIRN_ALWAYS_ALLOC"
	EnvMemLimit    = "CAIRN_MEM_LIMIT"
)

// Config tunes one interpreter instance.
type Config struct {
	// Scale multiplies every pool's segment unit count. 1 is the
	// default tuning; larger values trade memory for fewer fills.
	Scale int

	// MemLimit is the soft quota in bytes; 0 disables it.
	MemLimit uint64

	// DataStackInitial is the data stack's starting capacity in
	// cells.
	DataStackInitial int

	// DataStackLimit bounds data stack depth; 0 means unbounded.
	DataStackLimit int

	// MaxFrameDepth bounds call recursion; 0 means unbounded.
	MaxFrameDepth int

	// AlwaysDirect bypasses data pooling, giving external memory
	// checkers one platform allocation per request.
	AlwaysDirect bool

	// Logger, when set, is propagated to every package in the core.
	Logger *zap.Logger
}

// DefaultConfig returns production tuning with the environment
// overrides applied. The env package caches the environment on first
// read; reloading here makes each call observe the variables as they
// are at that moment.
func DefaultConfig() Config {
	env.Load()
	return Config{
		Scale:            1,
		MemLimit:         uint64(env.Int64(EnvMemLimit, 0)),
		DataStackInitial: 256,
		DataStackLimit:   100_000,
		MaxFrameDepth:    2048,
		AlwaysDirect:     env.Bool(EnvAlwaysAlloc),
	}
}
