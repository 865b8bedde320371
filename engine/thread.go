package engine

import (
	"runtime"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
)

// ThreadEnv records, for one calling goroutine, which loaded instances have
// done their per-thread setup. It must only be used from that goroutine.
type ThreadEnv struct {
	gens  [backend.NumKinds]uint64
	setup [backend.NumKinds]*errors.Error
	pins  int
}

// NewThreadEnv returns an environment with nothing bound.
func NewThreadEnv() *ThreadEnv {
	e := &ThreadEnv{}
	for k := range e.setup {
		e.setup[k] = errors.New(errors.PhaseCall, errors.KindInit).
			Backend(backend.Kind(k).String()).
			Detail("thread setup").
			Build()
	}
	return e
}

// Bound reports whether the instance currently loaded for k was set up on
// this environment's thread.
func (e *ThreadEnv) Bound(k backend.Kind) bool {
	return k < backend.NumKinds && e.gens[k] != 0
}

func (e *ThreadEnv) bind(l *loaded) error {
	if err := l.binder.BindThread(); err != nil {
		return err
	}
	e.gens[l.kind] = l.gen
	e.pins++
	return nil
}

// setupFailed returns this thread's setup error for k, keeping the first cause.
func (e *ThreadEnv) setupFailed(k backend.Kind, cause error) error {
	return e.setup[k].Latch(cause)
}

// Release undoes every OS thread pin taken by thread setup and forgets all
// bindings. Call it from the owning goroutine when it stops calling.
func (e *ThreadEnv) Release() {
	for ; e.pins > 0; e.pins-- {
		runtime.UnlockOSThread()
	}
	clear(e.gens[:])
}
