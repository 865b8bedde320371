// Package transpiled runs the guest program translated to Go and linked into
// the binary. There is nothing to decode or compile: Load ignores the image
// and binds the native module to linear memory taken from the arena, so its
// load time is near zero by construction.
package transpiled

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/guest/native"
	"github.com/wippyai/wasm-audio/wasm"
)

// Name identifies this backend in errors and reports.
const Name = "go-transpiled"

func init() {
	backend.Register(backend.Transpiled, Name, New)
}

type callFunc func(m *native.Module, f *backend.Frame)

type entry struct {
	call callFunc
	sig  backend.Signature
}

// exports is the link table of the translated module.
var exports = map[string]entry{
	guest.ExportSample: {sig: backend.SigF32ToF32, call: func(m *native.Module, f *backend.Frame) {
		f.SetF32(m.GetSample(f.ParamF32(0)))
	}},
	guest.ExportBlock: {sig: backend.SigF32ToF32, call: func(m *native.Module, f *backend.Frame) {
		f.SetF32(m.RenderBlock(f.ParamF32(0)))
	}},
	guest.ExportAdd: {sig: backend.SigI32I32ToI32, call: func(m *native.Module, f *backend.Frame) {
		f.SetI32(m.Add(f.ParamI32(0), f.ParamI32(1)))
	}},
	guest.ExportFault: {sig: backend.SigF32ToF32, call: func(m *native.Module, f *backend.Frame) {
		f.SetF32(m.Fault(f.ParamF32(0)))
	}},
}

// Runtime owns the arena that backs the translated module's memory.
type Runtime struct {
	arena  *backend.Arena
	log    *zap.Logger
	live   atomic.Bool
	closed atomic.Bool
}

var _ backend.Runtime = (*Runtime)(nil)

// New creates the runtime and claims its arena. The heap is reserved lazily
// at first Load.
func New(cfg backend.Config) (backend.Runtime, error) {
	arena, err := backend.NewArena(cfg.Arena)
	if err != nil {
		return nil, errors.InitFailed(Name, "arena", err)
	}
	if err := arena.Claim(Name); err != nil {
		return nil, err
	}
	return &Runtime{arena: arena, log: cfg.Log().Named("transpiled")}, nil
}

func (r *Runtime) Kind() backend.Kind { return backend.Transpiled }
func (r *Runtime) Name() string       { return Name }

// Load resets the first memory page and binds export from the link table.
// Only one instance may use the arena at a time.
func (r *Runtime) Load(_ context.Context, _ []byte, export backend.Export) (backend.Instance, error) {
	if r.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseLoad, Name+" runtime")
	}
	e, ok := exports[export.Name]
	if !ok {
		return nil, errors.ExportNotFound(Name, export.Name)
	}
	core, err := e.sig.Core()
	if err != nil {
		return nil, errors.Load(Name, "link table", err)
	}
	if err := backend.CheckSignature(Name, export, core); err != nil {
		return nil, err
	}
	if !r.live.CompareAndSwap(false, true) {
		return nil, errors.Busy(errors.PhaseInstantiate, Name, "arena memory in use by another instance")
	}

	mem := r.arena.Reserve()[:wasm.PageSize]
	clear(mem)

	r.log.Debug("module linked", zap.String("export", export.Name))
	return &Instance{
		rt:     r,
		mod:    native.New(mem),
		call:   e.call,
		export: export.Name,
		trap:   errors.Trap(Name, export.Name, nil),
	}, nil
}

// Close releases the arena claim. The heap is left to the garbage collector.
func (r *Runtime) Close(context.Context) error {
	r.closed.Store(true)
	return nil
}

// Instance is the translated module bound to one export.
type Instance struct {
	rt     *Runtime
	mod    *native.Module
	call   callFunc
	export string
	trap   *errors.Error
}

var (
	_ backend.Instance   = (*Instance)(nil)
	_ backend.MemoryView = (*Instance)(nil)
)

// Call runs the export. A guest fault panics inside the module and is
// recovered here as the instance's trap error, which keeps the first cause.
func (i *Instance) Call(f *backend.Frame) (err error) {
	if i.call == nil {
		f.SetResult(0)
		return nil
	}
	defer func() {
		if v := recover(); v != nil {
			t, ok := v.(*native.Trap)
			if !ok {
				panic(v)
			}
			f.SetResult(0)
			err = i.trap.Latch(t)
		}
	}()
	i.call(i.mod, f)
	return nil
}

// Memory returns the module's linear memory, or nil after Close.
func (i *Instance) Memory() wasmaudio.Memory {
	if i.mod == nil {
		return nil
	}
	return wasmaudio.BytesMemory(i.mod.Memory())
}

// Close unbinds the export and the module and frees the arena for the next Load.
func (i *Instance) Close(context.Context) error {
	if i.mod == nil {
		return nil
	}
	i.call = nil
	i.mod = nil
	i.rt.live.Store(false)
	return nil
}
