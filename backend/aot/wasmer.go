//go:build cgo && wasmer

package aot

import (
	"context"
	"sync/atomic"

	"github.com/wasmerio/wasmer-go/wasmer"
	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/wasm"
)

// Name identifies this backend in errors and reports.
const Name = "wasmer"

// Available reports whether a native runtime is linked in.
const Available = true

// Precompile compiles wasm bytecode to a serialized wasmer artifact.
func Precompile(bytecode []byte, _ backend.Config) ([]byte, error) {
	store := wasmer.NewStore(wasmer.NewEngine())
	defer store.Close()

	mod, err := wasmer.NewModule(store, bytecode)
	if err != nil {
		return nil, errors.Load(Name, "compile", err)
	}
	defer mod.Close()

	out, err := mod.Serialize()
	if err != nil {
		return nil, errors.Load(Name, "serialize", err)
	}
	return out, nil
}

// Runtime holds one wasmer engine. Every instance gets its own store.
// wasmer has no store limiter, so the arena budget is checked against the
// instantiated memory instead.
type Runtime struct {
	engine *wasmer.Engine
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
	r := &Runtime{engine: wasmer.NewEngine(), arena: arena, log: cfg.Log().Named("aot")}
	if cfg.AOT.OptLevel != "" && cfg.AOT.OptLevel != "speed" {
		r.log.Warn("opt level is fixed by the wasmer engine, ignoring", zap.String("opt_level", cfg.AOT.OptLevel))
	}
	r.log.Debug("runtime created", zap.String("runtime", Name))
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

	store := wasmer.NewStore(r.engine)
	mod, err := wasmer.DeserializeModule(store, image)
	if err != nil {
		store.Close()
		return nil, errors.Load(Name, "deserialize", err)
	}

	inst, err := wasmer.NewInstance(mod, wasmer.NewImportObject())
	if err != nil {
		mod.Close()
		store.Close()
		return nil, errors.Instantiation(Name, err)
	}

	i := &Instance{inst: inst, mod: mod, store: store, export: export.Name, trap: errors.Trap(Name, export.Name, nil), log: r.log}

	if mem, err := inst.Exports.GetMemory(guest.ExportMemory); err == nil {
		if size := len(mem.Data()); size > r.arena.HeapSize() {
			_ = i.Close(context.Background())
			return nil, errors.Instantiation(Name, errors.OutOfBounds(errors.PhaseInstantiate, 0, uint32(size), uint32(r.arena.HeapSize())))
		}
		i.mem = mem
	}

	fn, err := inst.Exports.GetRawFunction(export.Name)
	if err != nil || fn == nil {
		_ = i.Close(context.Background())
		return nil, errors.ExportNotFound(Name, export.Name)
	}
	ft := fn.Type()
	core := wasm.FuncType{Params: valTypes(ft.Params()), Results: valTypes(ft.Results())}
	if err := backend.CheckSignature(Name, export, core); err != nil {
		_ = i.Close(context.Background())
		return nil, err
	}
	i.fn = fn
	i.params = core.Params
	return i, nil
}

// Close drops the engine reference. wasmer frees it by finalizer.
func (r *Runtime) Close(context.Context) error {
	r.closed.Store(true)
	r.engine = nil
	return nil
}

func valTypes(in []*wasmer.ValueType) []wasm.ValType {
	out := make([]wasm.ValType, len(in))
	for i, t := range in {
		switch t.Kind() {
		case wasmer.I32:
			out[i] = wasm.ValI32
		case wasmer.I64:
			out[i] = wasm.ValI64
		case wasmer.F32:
			out[i] = wasm.ValF32
		case wasmer.F64:
			out[i] = wasm.ValF64
		}
	}
	return out
}

// Instance is one wasmer instance in its own store.
type Instance struct {
	fn     *wasmer.Function
	inst   *wasmer.Instance
	mod    *wasmer.Module
	store  *wasmer.Store
	mem    *wasmer.Memory
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

// Call invokes the export. Traps come back as errors from wasmer.
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
		res, err = i.fn.Call()
	case 1:
		res, err = i.fn.Call(boxArg(i.params[0], f.Param(0)))
	default:
		res, err = i.fn.Call(boxArg(i.params[0], f.Param(0)), boxArg(i.params[1], f.Param(1)))
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
	if i.mem == nil {
		return nil
	}
	return wasmaudio.BytesMemory(i.mem.Data())
}

// Close drops the function handle, then closes the instance, the module and the store.
func (i *Instance) Close(context.Context) error {
	if i.store == nil {
		return nil
	}
	i.fn = nil
	i.mem = nil
	i.inst.Close()
	i.inst = nil
	i.mod.Close()
	i.mod = nil
	i.store.Close()
	i.store = nil
	return nil
}
