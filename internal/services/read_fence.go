package services

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// fenceStripes bounds the fence's memory regardless of how many relations are read
const fenceStripes = 256

// readFence tells a read-through whether an eviction ran while it was reading.
// Keys share generation counters by hash; a collision only costs a skipped cache fill.
type readFence struct {
	gens [fenceStripes]atomic.Uint64
}

func (f *readFence) stripe(key string) *atomic.Uint64 {
	return &f.gens[xxhash.Sum64String(key)%fenceStripes]
}

// load returns the current generation of key
func (f *readFence) load(key string) uint64 {
	return f.stripe(key).Load()
}

// bump must run before the cache entry for key is deleted
func (f *readFence) bump(key string) {
	f.stripe(key).Add(1)
}

func (f *readFence) bumpAll() {
	for i := range f.gens {
		f.gens[i].Add(1)
	}
}
