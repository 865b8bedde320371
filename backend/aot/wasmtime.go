//go:build cgo && !wasmer

package aot

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/bytecodealliance/wasmtime-go/v13"
	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/wasm"
)

// Name identifies this backend in errors and reports.
const Name = "wasmtime"

// Available reports whether a native runtime is linked in.
const Available = true

func newEngine(cfg backend.AOTConfig) (*wasmtime.Engine, error) {
	c := wasmtime.NewConfig()
	switch cfg.OptLevel {
	case "", "speed":
		c.SetCraneliftOptLevel(wasmtime.OptLevelSpeed)
	case "none":
		c.SetCraneliftOptLevel(wasmtime.OptLevelNone)
	case "speed_and_size":
		c.SetCraneliftOptLevel(wasmtime.OptLevelSpeedAndSize)
	default:
		return nil, errors.New(errors.PhaseInit, errors.KindInit).
			Backend(Name).
			Detail("unknown opt level %q", cfg.OptLevel).
			Build()
	}
	return wasmtime.NewEngineWithConfig(c), nil
}

// Precompile compiles wasm bytecode to a serialized wasmtime artifact. The
// artifact only loads into an engine with the same configuration and version.
func Precompile(bytecode []byte, cfg backend.Config) ([]byte, error) {
	engine, err := newEngine(cfg.AOT)
	if err != nil {
		return nil, err
	}

	mod, err := wasmtime.NewModule(engine, bytecode)
	if err != nil {
		return nil, errors.Load(Name, "compile", err)
	}

	out, err := mod.Serialize()
	runtime.KeepAlive(engine)
	if err != nil {
		return nil, errors.Load(Name, "serialize", err)
	}
	return out, nil
}

// Runtime holds one wasmtime engine. Every instance gets its own store,
// limited to the arena's heap budget.
type Runtime struct {
	engine *wasmtime.Engine
	arena  *backend.Arena
	log    *zap.Logger
	closed atomic.Bool
}

var _ backend.Runtime = (*Runtime)(nil)

// New creates the engine and claims the arena.
func New(cfg backend.Config) (backend.Runtime, error) {
	arena, err := backend.NewArena(cfg.Arena)
	if err != nil {
		return nil, errors.InitFailed(Name, "arena", err)
	}
	if err := arena.Claim(Name); err != nil {
		return nil, err
	}
	engine, err := newEngine(cfg.AOT)
	if err != nil {
		return nil, err
	}
	r := &Runtime{engine: engine, arena: arena, log: cfg.Log().Named("aot")}
	r.log.Debug("runtime created", zap.String("runtime", Name), zap.String("opt_level", cfg.AOT.OptLevel))
	return r, nil
}

func (r *Runtime) Kind() backend.Kind { return backend.AOT }
func (r *Runtime) Name() string       { return Name }

// Load deserializes image, instantiates it with no imports and resolves export.
func (r *Runtime) Load(_ context.Context, image []byte, export backend.Export) (backend.Instance, error) {
	if r.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseLoad, Name+" runtime")
	}
	if err := checkImage(image); err != nil {
		return nil, err
	}

	mod, err := wasmtime.NewModuleDeserialize(r.engine, image)
	if err != nil {
		return nil, errors.Load(Name, "deserialize", err)
	}

	store := wasmtime.NewStore(r.engine)
	store.Limiter(int64(r.arena.HeapSize()), -1, 1, 1, 1)

	inst, err := wasmtime.NewInstance(store, mod, nil)
	if err != nil {
		return nil, errors.Instantiation(Name, err)
	}

	fn := inst.GetFunc(store, export.Name)
	if fn == nil {
		return nil, errors.ExportNotFound(Name, export.Name)
	}
	ft := fn.Type(store)
	core := wasm.FuncType{Params: valTypes(ft.Params()), Results: valTypes(ft.Results())}
	if err := backend.CheckSignature(Name, export, core); err != nil {
		return nil, err
	}

	i := &Instance{
		fn:     fn,
		inst:   inst,
		mod:    mod,
		store:  store,
		params: core.Params,
		export: export.Name,
		trap:   errors.Trap(Name, export.Name, nil),
		log:    r.log,
	}
	if ext := inst.GetExport(store, guest.ExportMemory); ext != nil {
		i.mem = ext.Memory()
	}
	return i, nil
}

// Close drops the engine. wasmtime frees it by finalizer once the last
// instance referencing it is gone.
func (r *Runtime) Close(context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.engine = nil
	return nil
}

func valTypes(in []*wasmtime.ValType) []wasm.ValType {
	out := make([]wasm.ValType, len(in))
	for i, t := range in {
		switch t.Kind() {
		case wasmtime.KindI32:
			out[i] = wasm.ValI32
		case wasmtime.KindI64:
			out[i] = wasm.ValI64
		case wasmtime.KindF32:
			out[i] = wasm.ValF32
		case wasmtime.KindF64:
			out[i] = wasm.ValF64
		}
	}
	return out
}

// Instance is one wasmtime instance in its own store.
type Instance struct {
	fn     *wasmtime.Func
	inst   *wasmtime.Instance
	mod    *wasmtime.Module
	store  *wasmtime.Store
	mem    *wasmtime.Memory
	log    *zap.Logger
	trap   *errors.Error
	export string
	params []wasm.ValType
}

var (
	_ backend.Instance     = (*Instance)(nil)
	_ backend.ThreadBinder = (*Instance)(nil)
	_ backend.MemoryView   = (*Instance)(nil)
)

// BindThread performs the per-thread setup for the calling goroutine.
func (i *Instance) BindThread() error {
	bindThread(i.log, i.export)
	return nil
}

// Call invokes the export. Traps come back as errors from wasmtime.
func (i *Instance) Call(f *backend.Frame) error {
	if i.fn == nil {
		f.SetResult(0)
		return nil
	}

	var (
		res any
		err error
	)
	switch len(i.params) {
	case 0:
		res, err = i.fn.Call(i.store)
	case 1:
		res, err = i.fn.Call(i.store, boxArg(i.params[0], f.Param(0)))
	default:
		res, err = i.fn.Call(i.store, boxArg(i.params[0], f.Param(0)), boxArg(i.params[1], f.Param(1)))
	}
	if err != nil {
		f.SetResult(0)
		return i.trap.Latch(err)
	}
	storeResult(f, res)
	return nil
}

// Memory returns a view of the exported memory, or nil.
func (i *Instance) Memory() wasmaudio.Memory {
	if i.mem == nil || i.store == nil {
		return nil
	}
	return wasmaudio.BytesMemory(i.mem.UnsafeData(i.store))
}

// Close drops the function and instance handles, then the module, then the
// store. wasmtime only frees them by finalizer.
func (i *Instance) Close(context.Context) error {
	if i.store == nil {
		return nil
	}
	store := i.store
	i.fn = nil
	i.mem = nil
	i.inst = nil
	i.mod = nil
	i.store = nil
	runtime.KeepAlive(store)
	return nil
}
