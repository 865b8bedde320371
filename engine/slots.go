package engine

import (
	"sync/atomic"

	"github.com/wippyai/wasm-audio/backend"
)

var (
	slots      [backend.NumKinds]atomic.Bool
	live       atomic.Int64
	generation atomic.Uint64
)

func acquireSlot(k backend.Kind) bool {
	if slots[k].CompareAndSwap(false, true) {
		live.Add(1)
		return true
	}
	return false
}

func releaseSlot(k backend.Kind) {
	if slots[k].CompareAndSwap(true, false) {
		live.Add(-1)
	}
}

// LiveInstances returns the number of engine instances alive in the process.
func LiveInstances() int {
	return int(live.Load())
}
