package engine

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
)

// Rack holds one Handle per backend kind and the active selector. The
// selector is the only state shared between the control side and the
// real-time caller.
type Rack struct {
	handles [backend.NumKinds]*Handle
	active  atomic.Uint32
}

// NewRack creates a handle for every backend kind, with bypass active.
// Runtimes are created on first load.
func NewRack(cfg backend.Config) *Rack {
	r := &Rack{}
	for _, k := range backend.Order {
		h := NewHandle(cfg)
		h.kind = k
		r.handles[k] = h
	}
	return r
}

// Handle returns the handle for k, or nil for bypass.
func (r *Rack) Handle(k backend.Kind) *Handle {
	if !k.Valid() {
		return nil
	}
	return r.handles[k]
}

// SetActive switches the backend used by Call. The change is observed at the
// next call boundary. Selecting bypass silences the stream.
func (r *Rack) SetActive(k backend.Kind) error {
	if k >= backend.NumKinds {
		return errors.InvalidInput(errors.PhaseCall, "unknown backend "+k.String())
	}
	prev := backend.Kind(r.active.Swap(uint32(k)))
	if prev != k {
		Logger().Info("active backend changed", zap.Stringer("from", prev), zap.Stringer("to", k))
	}
	return nil
}

// Active returns the selected backend kind.
func (r *Rack) Active() backend.Kind {
	return backend.Kind(r.active.Load())
}

// Call reads the selector once and calls that backend. It returns the kind
// it used so callers can attribute the result.
func (r *Rack) Call(env *ThreadEnv, f *backend.Frame) (backend.Kind, error) {
	k := backend.Kind(r.active.Load())
	if !k.Valid() {
		f.SetResult(0)
		return backend.Bypass, nil
	}
	return k, r.handles[k].Call(env, f)
}

// Prepare loads every image in images with export. Failures are returned per
// kind and do not stop the remaining loads.
func (r *Rack) Prepare(ctx context.Context, images map[backend.Kind][]byte, export backend.Export) map[backend.Kind]error {
	failed := make(map[backend.Kind]error)
	for _, k := range backend.Order {
		image, ok := images[k]
		if !ok {
			continue
		}
		if err := r.handles[k].Load(ctx, image, export); err != nil {
			Logger().Warn("backend unavailable", zap.Stringer("kind", k), zap.Error(err))
			failed[k] = err
		}
	}
	return failed
}

// Loaded lists the kinds with a loaded instance, in benchmark order.
func (r *Rack) Loaded() []backend.Kind {
	out := make([]backend.Kind, 0, len(backend.Order))
	for _, k := range backend.Order {
		if r.handles[k].Loaded() {
			out = append(out, k)
		}
	}
	return out
}

// Close switches to bypass and destroys every handle.
func (r *Rack) Close(ctx context.Context) error {
	r.active.Store(uint32(backend.Bypass))
	var firstErr error
	for _, k := range backend.Order {
		if err := r.handles[k].Destroy(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
