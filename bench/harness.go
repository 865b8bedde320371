// Package bench measures every backend through load, first call and steady
// state, one backend at a time in a fixed order.
//
// A Harness runs once. A backend that fails at any step is reported as
// failed with the step and error; the remaining backends are still
// measured. Backends named in Config.Keep stay loaded in the rack afterwards
// so the real-time bridge can use them; everything else is destroyed.
package bench

import (
	"context"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/engine"
	"github.com/wippyai/wasm-audio/errors"
)

// DefaultIterations is the steady-state call count.
const DefaultIterations = 10_000

// Images maps each backend kind to the image it loads. The transpiled
// backend ignores its image, so it may be absent.
type Images map[backend.Kind][]byte

// Config controls a run.
type Config struct {
	Scenario   Scenario
	Iterations int
	Order      []backend.Kind
	Keep       []backend.Kind

	// Clock returns the current time. Durations are differences of its
	// values. Defaults to time.Now.
	Clock func() time.Time

	// OnState observes every state change. kind is Bypass outside
	// Loading and Measuring. It runs on the harness goroutine.
	OnState func(s State, kind backend.Kind)

	Logger *zap.Logger
}

// DefaultConfig measures the sample scenario on every backend.
func DefaultConfig() Config {
	return Config{
		Scenario:   SampleScenario,
		Iterations: DefaultIterations,
		Order:      backend.Order[:],
	}
}

// Harness runs one benchmark against a rack.
type Harness struct {
	rack  *engine.Rack
	cfg   Config
	log   *zap.Logger
	state atomic.Int32
	kind  atomic.Uint32
	ran   atomic.Bool
	sink  uint64
}

// New returns an idle harness. Zero config fields take their defaults.
func New(rack *engine.Rack, cfg Config) *Harness {
	def := DefaultConfig()
	if cfg.Scenario.Export.Name == "" {
		cfg.Scenario = def.Scenario
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = def.Iterations
	}
	if len(cfg.Order) == 0 {
		cfg.Order = def.Order
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{rack: rack, cfg: cfg, log: log.Named("bench")}
}

// State returns the current state and, while loading or measuring, the
// backend being worked on.
func (h *Harness) State() (State, backend.Kind) {
	return State(h.state.Load()), backend.Kind(h.kind.Load())
}

func (h *Harness) enter(s State, k backend.Kind) {
	h.kind.Store(uint32(k))
	h.state.Store(int32(s))
	if h.cfg.OnState != nil {
		h.cfg.OnState(s, k)
	}
}

// Run measures every backend in order and returns the report. It can be
// called once; later calls fail with an invalid input error.
func (h *Harness) Run(ctx context.Context, images Images) (*Report, error) {
	if !h.ran.CompareAndSwap(false, true) {
		return nil, errors.InvalidInput(errors.PhaseBench, "harness already ran")
	}

	env := engine.NewThreadEnv()
	defer env.Release()

	rep := &Report{
		Scenario:   h.cfg.Scenario.Name,
		Iterations: h.cfg.Iterations,
	}
	for _, k := range h.cfg.Order {
		if err := ctx.Err(); err != nil {
			rep.add(Result{Backend: k, Failed: true, FailPhase: PhaseLoad, Err: err})
			continue
		}
		res := h.measure(ctx, env, k, images[k], rep)
		rep.add(res)

		if res.Failed || !slices.Contains(h.cfg.Keep, k) {
			if hd := h.rack.Handle(k); hd != nil {
				if err := hd.Destroy(ctx); err != nil {
					h.log.Warn("destroy after measurement", zap.Stringer("kind", k), zap.Error(err))
				}
			}
		}
	}

	h.enter(StateReporting, backend.Bypass)
	for _, r := range rep.Results {
		if r.Failed {
			h.log.Warn("backend failed",
				zap.Stringer("kind", r.Backend),
				zap.String("phase", string(r.FailPhase)),
				zap.Error(r.Err))
			continue
		}
		h.log.Info("backend measured",
			zap.Stringer("kind", r.Backend),
			zap.Duration("load", r.Load),
			zap.Duration("first_call", r.FirstCall),
			zap.Duration("per_call", r.PerCall),
			zap.Bool("sane", r.Sane))
	}
	h.enter(StateDone, backend.Bypass)
	return rep, nil
}

func (h *Harness) measure(ctx context.Context, env *engine.ThreadEnv, k backend.Kind, image []byte, rep *Report) Result {
	res := Result{Backend: k, Iterations: h.cfg.Iterations}
	fail := func(p Phase, err error) Result {
		res.Failed = true
		res.FailPhase = p
		res.Err = err
		return res
	}

	hd := h.rack.Handle(k)
	if hd == nil {
		return fail(PhaseLoad, errors.InvalidInput(errors.PhaseBench, "cannot benchmark "+k.String()))
	}
	clock := h.cfg.Clock

	h.enter(StateLoading, k)
	start := clock()
	if err := hd.Create(ctx); err != nil {
		return fail(PhaseLoad, err)
	}
	if err := hd.Load(ctx, image, h.cfg.Scenario.Export); err != nil {
		return fail(PhaseLoad, err)
	}
	loaded := clock()
	res.Load = loaded.Sub(start)
	res.Runtime = hd.RuntimeName()
	res.Stages = hd.Stages()
	rep.Samples = append(rep.Samples, Sample{Backend: k, Phase: PhaseLoad, Duration: res.Load})

	h.enter(StateMeasuring, k)
	var base backend.Frame
	if h.cfg.Scenario.Args != nil {
		h.cfg.Scenario.Args(&base)
	}

	f := base
	if err := hd.Call(env, &f); err != nil {
		return fail(PhaseFirstCall, err)
	}
	res.FirstCall = clock().Sub(loaded)
	rep.Samples = append(rep.Samples, Sample{Backend: k, Phase: PhaseFirstCall, Duration: res.FirstCall})
	res.Sane = h.cfg.Scenario.Check == nil || h.cfg.Scenario.Check(&f)
	if h.cfg.Scenario.Format != nil {
		res.Value = h.cfg.Scenario.Format(&f)
	}

	runtime.GC()
	var acc uint64
	n := h.cfg.Iterations
	start = clock()
	for i := 0; i < n; i++ {
		f = base
		if err := hd.Call(env, &f); err != nil {
			return fail(PhaseSteady, err)
		}
		acc += f.Result()
	}
	res.Steady = clock().Sub(start)
	h.sink += acc
	res.PerCall = res.Steady / time.Duration(n)
	rep.Samples = append(rep.Samples, Sample{Backend: k, Phase: PhaseSteady, Duration: res.Steady})
	return res
}
