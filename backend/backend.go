// Package backend defines the contract every execution strategy implements:
// create a runtime, load one image with one resolved export, call it, and
// release everything in reverse order.
//
// Backends register themselves from init:
//
//	func init() {
//	    backend.Register(backend.Interp, "wazero-interpreter", New)
//	}
//
// and callers pick them up with a blank import of backend/all.
package backend

import (
	"context"
	"time"

	wasmaudio "github.com/wippyai/wasm-audio"
)

// Runtime is a created backend. It owns its arena and produces at most one
// Instance at a time.
type Runtime interface {
	Kind() Kind
	Name() string

	// Load turns an image into an instance with export resolved and its
	// signature checked. The image is never retained or modified.
	Load(ctx context.Context, image []byte, export Export) (Instance, error)

	Close(ctx context.Context) error
}

// Instance is one loaded module with one resolved export.
type Instance interface {
	// Call invokes the export with f's params and stores the result in f.
	// A guest fault returns a trap error and leaves the result zero.
	Call(f *Frame) error

	// Close releases the export handle, then the instance, then the module.
	// Calling it again is a no-op.
	Close(ctx context.Context) error
}

// ThreadBinder is implemented by instances that need per-thread setup
// before the first call from a new thread.
type ThreadBinder interface {
	BindThread() error
}

// Stage is one timed sub-step of Load.
type Stage struct {
	Name     string
	Duration time.Duration
}

// StagedLoader is implemented by instances that time their load sub-steps.
type StagedLoader interface {
	Stages() []Stage
}

// MemoryView is implemented by instances that expose linear memory.
type MemoryView interface {
	Memory() wasmaudio.Memory
}
