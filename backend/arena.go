package backend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/wasm"
)

// Arena bounds.
const (
	DefaultHeapSize  = 512 << 10
	DefaultStackSize = 8 << 10
	MaxHeapSize      = 64 << 20
	MinStackSize     = 1 << 10
)

// ArenaConfig sizes a backend's private memory arena.
type ArenaConfig struct {
	HeapSize  int `koanf:"heap_size"`
	StackSize int `koanf:"stack_size"`
}

// DefaultArenaConfig returns 512 KiB of heap and 8 KiB of stack.
func DefaultArenaConfig() ArenaConfig {
	return ArenaConfig{HeapSize: DefaultHeapSize, StackSize: DefaultStackSize}
}

// Arena is the memory budget owned by exactly one runtime. Each backend maps
// it onto its own mechanism: a reserved slice, store limits or a page limit.
type Arena struct {
	heap    []byte
	once    sync.Once
	owner   atomic.Pointer[string]
	heapLen int
	stack   int
}

// NewArena validates sizes. The heap must be a positive multiple of the wasm
// page size and no larger than MaxHeapSize; the stack must be at least MinStackSize.
func NewArena(cfg ArenaConfig) (*Arena, error) {
	if cfg.HeapSize <= 0 || cfg.HeapSize%wasm.PageSize != 0 || cfg.HeapSize > MaxHeapSize {
		return nil, errors.New(errors.PhaseInit, errors.KindInit).
			Value(cfg.HeapSize).
			Detail("arena heap %d must be a positive multiple of %d up to %d", cfg.HeapSize, wasm.PageSize, MaxHeapSize).
			Build()
	}
	if cfg.StackSize < MinStackSize {
		return nil, errors.New(errors.PhaseInit, errors.KindInit).
			Value(cfg.StackSize).
			Detail("arena stack %d below minimum %d", cfg.StackSize, MinStackSize).
			Build()
	}
	return &Arena{heapLen: cfg.HeapSize, stack: cfg.StackSize}, nil
}

// Claim binds the arena to its owning runtime. A second claim fails.
func (a *Arena) Claim(owner string) error {
	if !a.owner.CompareAndSwap(nil, &owner) {
		return errors.Busy(errors.PhaseInit, owner, fmt.Sprintf("arena already owned by %s", *a.owner.Load()))
	}
	return nil
}

// Owner returns the claiming runtime's name, or "".
func (a *Arena) Owner() string {
	if p := a.owner.Load(); p != nil {
		return *p
	}
	return ""
}

// HeapSize returns the heap budget in bytes.
func (a *Arena) HeapSize() int { return a.heapLen }

// StackSize returns the stack budget in bytes.
func (a *Arena) StackSize() int { return a.stack }

// Pages returns the heap budget in wasm pages.
func (a *Arena) Pages() uint32 { return uint32(a.heapLen / wasm.PageSize) }

// Reserve allocates the heap on first use and returns it on every call.
func (a *Arena) Reserve() []byte {
	a.once.Do(func() {
		a.heap = make([]byte, a.heapLen)
	})
	return a.heap
}

// Reserved reports whether the heap has been allocated.
func (a *Arena) Reserved() bool {
	return a.heap != nil
}
