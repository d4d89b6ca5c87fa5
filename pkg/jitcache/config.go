package jitcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultCacheSize      = 128 * 1024 * 1024
	DefaultPurgeQueueSize = 1024

	// CodeAlignment is the alignment of every function start.
	CodeAlignment = 4
)

// Config configures a Cache. Zero fields take their defaults.
type Config struct {
	Size           int
	PurgeQueueSize int

	// By default pages are either writable or executable, never both: a Map
	// flips the pages it touches to rw-, copies, then flips them to r-x.
	// Other functions sharing those pages cannot run while the copy is in
	// progress, so callers must not execute code from the cache concurrently
	// with Map. AllowReadWriteExecute maps touched pages rwx instead, which
	// keeps neighbours runnable at the cost of writable code.
	AllowReadWriteExecute bool

	// Registerer receives the cache metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Size:           DefaultCacheSize,
		PurgeQueueSize: DefaultPurgeQueueSize,
	}
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = DefaultCacheSize
	}
	if c.PurgeQueueSize <= 0 {
		c.PurgeQueueSize = DefaultPurgeQueueSize
	}
	return c
}
