package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
)

// loaded is the immutable state published to callers once Load succeeds.
type loaded struct {
	inst   backend.Instance
	binder backend.ThreadBinder
	export backend.Export
	kind   backend.Kind
	gen    uint64
}

// Handle owns one backend runtime and at most one loaded instance.
//
// Select, Create, Load and Destroy are serialized by a mutex and belong on
// the control side. Call is lock-free and may run concurrently with Destroy.
type Handle struct {
	rt       backend.Runtime
	active   atomic.Pointer[loaded]
	cfg      backend.Config
	mu       sync.Mutex
	inflight atomic.Int32
	kind     backend.Kind
}

// NewHandle returns an empty handle. Select a kind before loading.
func NewHandle(cfg backend.Config) *Handle {
	return &Handle{cfg: cfg}
}

// Kind returns the selected backend kind.
func (h *Handle) Kind() backend.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

// Select picks the backend kind. It fails while an instance is loaded.
// Switching kinds closes a created but unloaded runtime.
func (h *Handle) Select(ctx context.Context, kind backend.Kind) error {
	if !kind.Valid() {
		return errors.InvalidInput(errors.PhaseInit, "cannot select "+kind.String())
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active.Load() != nil {
		return errors.Busy(errors.PhaseInit, kind.String(), "handle is loaded, destroy it first")
	}
	if h.kind == kind {
		return nil
	}
	if h.rt != nil {
		if err := h.rt.Close(ctx); err != nil {
			Logger().Warn("close runtime on reselect", zap.Stringer("kind", h.kind), zap.Error(err))
		}
		h.rt = nil
	}
	h.kind = kind
	return nil
}

// Create brings the selected backend's runtime up. It is a no-op when the
// runtime already exists.
func (h *Handle) Create(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createLocked()
}

func (h *Handle) createLocked() error {
	if h.rt != nil {
		return nil
	}
	if !h.kind.Valid() {
		return errors.NotInitialized(errors.PhaseInit, "backend selection")
	}
	rt, err := backend.New(h.kind, h.cfg)
	if err != nil {
		return err
	}
	h.rt = rt
	return nil
}

// Load loads image and resolves export, creating the runtime if needed. It
// fails with a busy error when this handle is already loaded or another
// handle holds the process-wide slot for the same kind.
func (h *Handle) Load(ctx context.Context, image []byte, export backend.Export) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active.Load() != nil {
		return errors.Busy(errors.PhaseLoad, h.kind.String(), "handle already loaded")
	}
	if err := h.createLocked(); err != nil {
		return err
	}
	if !acquireSlot(h.kind) {
		return errors.Busy(errors.PhaseLoad, h.kind.String(), "another instance of this backend is live")
	}

	inst, err := h.rt.Load(ctx, image, export)
	if err != nil {
		releaseSlot(h.kind)
		return err
	}

	l := &loaded{
		inst:   inst,
		export: export,
		kind:   h.kind,
		gen:    generation.Add(1),
	}
	l.binder, _ = inst.(backend.ThreadBinder)
	h.active.Store(l)

	Logger().Debug("instance loaded",
		zap.Stringer("kind", h.kind),
		zap.String("runtime", h.rt.Name()),
		zap.String("export", export.Name))
	return nil
}

// Call invokes the loaded export. With nothing loaded it zeroes the result
// and returns nil. env may be nil, which skips per-thread setup.
func (h *Handle) Call(env *ThreadEnv, f *backend.Frame) error {
	h.inflight.Add(1)
	l := h.active.Load()
	if l == nil {
		h.inflight.Add(-1)
		f.SetResult(0)
		return nil
	}
	if l.binder != nil && env != nil && env.gens[l.kind] != l.gen {
		if err := env.bind(l); err != nil {
			h.inflight.Add(-1)
			f.SetResult(0)
			return env.setupFailed(l.kind, err)
		}
	}
	err := l.inst.Call(f)
	h.inflight.Add(-1)
	return err
}

// Loaded reports whether an instance is loaded.
func (h *Handle) Loaded() bool {
	return h.active.Load() != nil
}

// Export returns the loaded export, if any.
func (h *Handle) Export() (backend.Export, bool) {
	if l := h.active.Load(); l != nil {
		return l.export, true
	}
	return backend.Export{}, false
}

// RuntimeName returns the created runtime's name, or "".
func (h *Handle) RuntimeName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rt == nil {
		return ""
	}
	return h.rt.Name()
}

// Stages returns the load stages of the loaded instance when its backend
// times them.
func (h *Handle) Stages() []backend.Stage {
	if l := h.active.Load(); l != nil {
		if s, ok := l.inst.(backend.StagedLoader); ok {
			return s.Stages()
		}
	}
	return nil
}

// Memory returns the loaded instance's memory when its backend exposes it.
func (h *Handle) Memory() wasmaudio.Memory {
	if l := h.active.Load(); l != nil {
		if m, ok := l.inst.(backend.MemoryView); ok {
			return m.Memory()
		}
	}
	return nil
}

// Destroy unpublishes the instance, waits for an in-flight call to leave,
// closes the instance, then closes the runtime. It is safe to call more
// than once and on a handle that never loaded.
func (h *Handle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	if l := h.active.Swap(nil); l != nil {
		for h.inflight.Load() != 0 {
			runtime.Gosched()
		}
		if err := l.inst.Close(ctx); err != nil {
			firstErr = err
		}
		releaseSlot(l.kind)
		Logger().Debug("instance destroyed", zap.Stringer("kind", l.kind))
	}
	if h.rt != nil {
		if err := h.rt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		h.rt = nil
	}
	return firstErr
}
