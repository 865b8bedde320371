// Package interp runs raw wasm bytecode on wazero's interpreter.
//
// Load is split into three separately timed stages: a structural validation
// of the image, compilation, and instantiation. Calls go through
// CallWithStack with a stack buffer allocated once at load.
package interp

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/wasm"
)

// Name identifies this backend in errors and reports.
const Name = "wazero-interpreter"

// Load stage names.
const (
	StageValidate    = "validate"
	StageCompile     = "compile"
	StageInstantiate = "instantiate"
)

func init() {
	backend.Register(backend.Interp, Name, New)
}

// Runtime wraps one wazero runtime in interpreter mode.
type Runtime struct {
	rt     wazero.Runtime
	arena  *backend.Arena
	log    *zap.Logger
	cfg    backend.Config
	closed atomic.Bool
}

var _ backend.Runtime = (*Runtime)(nil)

// New creates the interpreter runtime. The arena heap becomes the
// per-instance memory page limit.
func New(cfg backend.Config) (backend.Runtime, error) {
	arena, err := backend.NewArena(cfg.Arena)
	if err != nil {
		return nil, errors.InitFailed(Name, "arena", err)
	}
	if err := arena.Claim(Name); err != nil {
		return nil, err
	}

	rtCfg := wazero.NewRuntimeConfigInterpreter().
		WithMemoryLimitPages(arena.Pages()).
		WithCloseOnContextDone(false)

	r := &Runtime{
		rt:    wazero.NewRuntimeWithConfig(context.Background(), rtCfg),
		arena: arena,
		cfg:   cfg,
		log:   cfg.Log().Named("interp"),
	}
	r.log.Debug("runtime created", zap.Uint32("memory_limit_pages", arena.Pages()))
	return r, nil
}

func (r *Runtime) Kind() backend.Kind { return backend.Interp }
func (r *Runtime) Name() string       { return Name }

// Load validates, compiles and instantiates image, then resolves export.
func (r *Runtime) Load(ctx context.Context, image []byte, export backend.Export) (backend.Instance, error) {
	if r.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseLoad, Name+" runtime")
	}
	if len(image) == 0 {
		return nil, errors.Load(Name, "empty image", nil)
	}

	stages := make([]backend.Stage, 0, 3)
	mark := time.Now()
	lap := func(name string) {
		now := time.Now()
		stages = append(stages, backend.Stage{Name: name, Duration: now.Sub(mark)})
		mark = now
	}

	if r.cfg.Interp.Validate {
		if err := validate(image, export); err != nil {
			return nil, err
		}
		lap(StageValidate)
	}

	compiled, err := r.rt.CompileModule(ctx, image)
	if err != nil {
		return nil, errors.Load(Name, "compile", err)
	}
	lap(StageCompile)

	mod, err := r.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(Name, err)
	}
	lap(StageInstantiate)

	fn := mod.ExportedFunction(export.Name)
	if fn == nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, errors.ExportNotFound(Name, export.Name)
	}
	def := fn.Definition()
	if err := backend.CheckSignature(Name, export, coreType(def.ParamTypes(), def.ResultTypes())); err != nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, err
	}

	size := max(len(def.ParamTypes()), len(def.ResultTypes()), 1)
	inst := &Instance{
		fn:       fn,
		mod:      mod,
		compiled: compiled,
		ctx:      context.Background(),
		stack:    make([]uint64, size),
		export:   export,
		results:  len(def.ResultTypes()),
		stages:   stages,
		trap:     errors.Trap(Name, export.Name, nil),
	}

	r.log.Debug("module loaded",
		zap.String("export", export.Name),
		zap.Int("image_bytes", len(image)),
		zap.Int("stages", len(stages)))
	return inst, nil
}

// Close releases the wazero runtime and everything compiled in it.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.rt.Close(ctx)
}

// validate is the structural decode stage. It checks the header, section
// order, export presence and signature without compiling anything.
func validate(image []byte, export backend.Export) error {
	info, err := wasm.Inspect(image)
	if err != nil {
		return errors.Load(Name, "validate", err)
	}
	ft, err := info.ExportedFunc(export.Name)
	if err != nil {
		if stderrors.Is(err, wasm.ErrExportNotFound) {
			return errors.ExportNotFound(Name, export.Name)
		}
		return errors.Load(Name, "validate", err)
	}
	return backend.CheckSignature(Name, export, ft)
}

func coreType(params, results []api.ValueType) wasm.FuncType {
	ft := wasm.FuncType{
		Params:  make([]wasm.ValType, len(params)),
		Results: make([]wasm.ValType, len(results)),
	}
	for i, p := range params {
		ft.Params[i] = wasm.ValType(p)
	}
	for i, r := range results {
		ft.Results[i] = wasm.ValType(r)
	}
	return ft
}

// Instance is one instantiated module with its resolved export.
type Instance struct {
	fn       api.Function
	mod      api.Module
	compiled wazero.CompiledModule
	ctx      context.Context
	export   backend.Export
	stack    []uint64
	stages   []backend.Stage
	trap     *errors.Error
	results  int
	closed   bool
}

var (
	_ backend.Instance     = (*Instance)(nil)
	_ backend.StagedLoader = (*Instance)(nil)
	_ backend.MemoryView   = (*Instance)(nil)
)

// Call copies f's params into the preallocated stack and invokes the export.
func (i *Instance) Call(f *backend.Frame) error {
	if i.fn == nil {
		f.SetResult(0)
		return nil
	}
	n := copy(i.stack, f.Params())
	clear(i.stack[n:])
	if err := i.fn.CallWithStack(i.ctx, i.stack); err != nil {
		f.SetResult(0)
		return i.trap.Latch(err)
	}
	if i.results > 0 {
		f.SetResult(i.stack[0])
	} else {
		f.SetResult(0)
	}
	return nil
}

// Stages returns the timed load stages.
func (i *Instance) Stages() []backend.Stage {
	return i.stages
}

// Memory returns a read view of the instance's linear memory, or nil.
func (i *Instance) Memory() wasmaudio.Memory {
	if i.mod == nil {
		return nil
	}
	if m := i.mod.Memory(); m != nil {
		return memory{m: m}
	}
	return nil
}

// Close drops the function handle, then closes the module, then the compiled code.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.fn = nil

	var firstErr error
	if i.mod != nil {
		if err := i.mod.Close(ctx); err != nil {
			firstErr = err
		}
		i.mod = nil
	}
	if i.compiled != nil {
		if err := i.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.compiled = nil
	}
	return firstErr
}
