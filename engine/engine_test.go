package engine

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-audio/backend"
	_ "github.com/wippyai/wasm-audio/backend/all"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/guest/native"
	"github.com/wippyai/wasm-audio/wasm"
)

func newHandle(t *testing.T, kind backend.Kind) *Handle {
	t.Helper()
	h := NewHandle(backend.DefaultConfig())
	require.NoError(t, h.Select(context.Background(), kind))
	t.Cleanup(func() { _ = h.Destroy(context.Background()) })
	return h
}

func sample(t *testing.T, h *Handle) float32 {
	t.Helper()
	var f backend.Frame
	f.PushF32(0)
	require.NoError(t, h.Call(nil, &f))
	return f.F32()
}

func TestHandleLifecycle(t *testing.T) {
	for _, kind := range []backend.Kind{backend.Transpiled, backend.Interp} {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			h := newHandle(t, kind)

			assert.False(t, h.Loaded())
			assert.Zero(t, sample(t, h))

			require.NoError(t, h.Load(ctx, guest.Module(), backend.SampleExport))
			assert.True(t, h.Loaded())
			assert.NotEmpty(t, h.RuntimeName())

			ref := native.New(make([]byte, wasm.PageSize))
			for i := 0; i < 100; i++ {
				assert.InDelta(t, ref.GetSample(0), sample(t, h), 1e-5)
			}

			exp, ok := h.Export()
			require.True(t, ok)
			assert.Equal(t, guest.ExportSample, exp.Name)
			assert.NotNil(t, h.Memory())

			require.NoError(t, h.Destroy(ctx))
			assert.False(t, h.Loaded())
			assert.Empty(t, h.RuntimeName())
			assert.Nil(t, h.Memory())
		})
	}
}

func TestCallAfterDestroyIsSilent(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, backend.Transpiled)
	require.NoError(t, h.Load(ctx, nil, backend.SampleExport))
	assert.NotZero(t, sample(t, h))

	require.NoError(t, h.Destroy(ctx))
	require.NoError(t, h.Destroy(ctx))

	var f backend.Frame
	f.PushF32(0)
	f.SetF32(123)
	require.NoError(t, h.Call(nil, &f))
	assert.Zero(t, f.F32())
}

func TestDestroyNeverLoaded(t *testing.T) {
	h := NewHandle(backend.DefaultConfig())
	assert.NoError(t, h.Destroy(context.Background()))
}

func TestLoadWithoutSelect(t *testing.T) {
	h := NewHandle(backend.DefaultConfig())
	err := h.Load(context.Background(), guest.Module(), backend.SampleExport)
	assert.Equal(t, errors.KindNotInitialized, errors.KindOf(err))
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, backend.Transpiled)

	err := h.Select(ctx, backend.Bypass)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	require.NoError(t, h.Create(ctx))
	require.NoError(t, h.Select(ctx, backend.Interp))
	assert.Equal(t, backend.Interp, h.Kind())

	require.NoError(t, h.Load(ctx, guest.Module(), backend.SampleExport))
	err = h.Select(ctx, backend.Transpiled)
	assert.ErrorIs(t, err, errors.ErrBusy)
	assert.Equal(t, backend.Interp, h.Kind())

	require.NoError(t, h.Destroy(ctx))
	require.NoError(t, h.Select(ctx, backend.Transpiled))
}

func TestDoubleLoadIsBusy(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, backend.Transpiled)
	require.NoError(t, h.Load(ctx, nil, backend.SampleExport))

	err := h.Load(ctx, nil, backend.SampleExport)
	assert.ErrorIs(t, err, errors.ErrBusy)
	assert.True(t, h.Loaded())
}

func TestOneInstancePerKind(t *testing.T) {
	ctx := context.Background()
	base := LiveInstances()

	a := newHandle(t, backend.Interp)
	b := newHandle(t, backend.Interp)

	require.NoError(t, a.Load(ctx, guest.Module(), backend.SampleExport))
	assert.Equal(t, base+1, LiveInstances())

	err := b.Load(ctx, guest.Module(), backend.SampleExport)
	assert.ErrorIs(t, err, errors.ErrBusy)
	assert.Equal(t, base+1, LiveInstances())

	require.NoError(t, a.Destroy(ctx))
	require.NoError(t, b.Load(ctx, guest.Module(), backend.SampleExport))
	require.NoError(t, b.Destroy(ctx))
	assert.Equal(t, base, LiveInstances())
}

func TestFailedLoadReleasesSlot(t *testing.T) {
	ctx := context.Background()
	base := LiveInstances()
	h := newHandle(t, backend.Interp)

	err := h.Load(ctx, []byte("garbage"), backend.SampleExport)
	require.Error(t, err)
	assert.True(t, errors.IsLoad(err), "%v", err)
	assert.False(t, h.Loaded())
	assert.Equal(t, base, LiveInstances())

	require.NoError(t, h.Load(ctx, guest.Module(), backend.SampleExport))
}

func TestRepeatedLoadDestroyDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	base := LiveInstances()
	h := newHandle(t, backend.Interp)

	for i := 0; i < 50; i++ {
		require.NoError(t, h.Load(ctx, guest.Module(), backend.SampleExport))
		sample(t, h)
		require.NoError(t, h.Destroy(ctx))
	}
	assert.Equal(t, base, LiveInstances())
}

func TestTrapPropagates(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, backend.Interp)
	require.NoError(t, h.Load(ctx, guest.Module(), backend.FaultExport))

	var f backend.Frame
	f.PushF32(1)
	err := h.Call(nil, &f)
	assert.True(t, errors.IsTrap(err))
	assert.Zero(t, f.F32())
	assert.True(t, h.Loaded())
}

func TestStages(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, backend.Interp)
	assert.Nil(t, h.Stages())
	require.NoError(t, h.Load(ctx, guest.Module(), backend.SampleExport))

	stages := h.Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, "validate", stages[0].Name)
}

func TestDestroyDuringCalls(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, backend.Transpiled)
	require.NoError(t, h.Load(ctx, nil, backend.SampleExport))

	var (
		wg    sync.WaitGroup
		stop  atomic.Bool
		calls atomic.Int64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var f backend.Frame
		for !stop.Load() {
			f.Reset()
			f.PushF32(0)
			if err := h.Call(nil, &f); err != nil {
				t.Error(err)
				return
			}
			calls.Add(1)
		}
	}()

	for calls.Load() < 1000 && !t.Failed() {
		runtime.Gosched()
	}
	require.NoError(t, h.Destroy(ctx))
	assert.Zero(t, sample(t, h))
	stop.Store(true)
	wg.Wait()
}

type fakeInstance struct {
	binds  int
	calls  int
	bindFn func() error
}

func (f *fakeInstance) Call(fr *backend.Frame) error {
	f.calls++
	fr.SetF32(1)
	return nil
}

func (f *fakeInstance) Close(context.Context) error { return nil }

func (f *fakeInstance) BindThread() error {
	f.binds++
	if f.bindFn != nil {
		return f.bindFn()
	}
	return nil
}

func publish(h *Handle, inst *fakeInstance) *loaded {
	l := &loaded{inst: inst, binder: inst, kind: backend.AOT, gen: generation.Add(1)}
	h.active.Store(l)
	return l
}

func TestThreadEnvBindsOncePerInstance(t *testing.T) {
	h := NewHandle(backend.DefaultConfig())
	env := NewThreadEnv()
	defer env.Release()

	inst := &fakeInstance{}
	publish(h, inst)
	assert.False(t, env.Bound(backend.AOT))

	var f backend.Frame
	for i := 0; i < 10; i++ {
		require.NoError(t, h.Call(env, &f))
	}
	assert.Equal(t, 1, inst.binds)
	assert.Equal(t, 10, inst.calls)
	assert.True(t, env.Bound(backend.AOT))

	// a reload is a new generation and needs setup again
	next := &fakeInstance{}
	publish(h, next)
	require.NoError(t, h.Call(env, &f))
	assert.Equal(t, 1, next.binds)

	// nil env skips setup
	other := &fakeInstance{}
	publish(h, other)
	require.NoError(t, h.Call(nil, &f))
	assert.Zero(t, other.binds)
	assert.Equal(t, 1, other.calls)

	env.Release()
	assert.False(t, env.Bound(backend.AOT))
	h.active.Store(nil)
}

func TestThreadSetupFailure(t *testing.T) {
	h := NewHandle(backend.DefaultConfig())
	env := NewThreadEnv()
	defer env.Release()

	noThread := stderrors.New("no thread")
	inst := &fakeInstance{bindFn: func() error { return noThread }}
	publish(h, inst)

	var f backend.Frame
	f.SetF32(5)
	err := h.Call(env, &f)
	assert.ErrorIs(t, err, errors.ErrInit)
	assert.ErrorIs(t, err, noThread)
	assert.False(t, errors.IsTrap(err))
	assert.Zero(t, f.F32())
	assert.Zero(t, inst.calls)
	assert.False(t, env.Bound(backend.AOT))
	assert.Zero(t, h.inflight.Load())

	// every retry reports through the same error
	allocs := testing.AllocsPerRun(100, func() {
		if again := h.Call(env, &f); again != err {
			t.Fatalf("retry returned %v", again)
		}
	})
	assert.Zero(t, allocs)
	assert.Zero(t, inst.calls)
	h.active.Store(nil)
}

func TestRackSelector(t *testing.T) {
	ctx := context.Background()
	r := NewRack(backend.DefaultConfig())
	t.Cleanup(func() { _ = r.Close(ctx) })

	assert.Equal(t, backend.Bypass, r.Active())
	assert.Nil(t, r.Handle(backend.Bypass))
	assert.Equal(t, backend.Interp, r.Handle(backend.Interp).Kind())

	failed := r.Prepare(ctx, map[backend.Kind][]byte{
		backend.Transpiled: nil,
		backend.Interp:     guest.Module(),
	}, backend.SampleExport)
	assert.Empty(t, failed)
	assert.Equal(t, []backend.Kind{backend.Transpiled, backend.Interp}, r.Loaded())

	var f backend.Frame
	f.PushF32(0)
	used, err := r.Call(nil, &f)
	require.NoError(t, err)
	assert.Equal(t, backend.Bypass, used)
	assert.Zero(t, f.F32())

	require.NoError(t, r.SetActive(backend.Interp))
	used, err = r.Call(nil, &f)
	require.NoError(t, err)
	assert.Equal(t, backend.Interp, used)
	assert.NotZero(t, f.F32())

	// AOT has nothing loaded and plays silence
	require.NoError(t, r.SetActive(backend.AOT))
	used, err = r.Call(nil, &f)
	require.NoError(t, err)
	assert.Equal(t, backend.AOT, used)
	assert.Zero(t, f.F32())

	assert.ErrorIs(t, r.SetActive(backend.NumKinds), errors.ErrInvalidInput)
	assert.Equal(t, backend.AOT, r.Active())

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, backend.Bypass, r.Active())
	assert.Empty(t, r.Loaded())
}

func TestRackPrepareIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	r := NewRack(backend.DefaultConfig())
	t.Cleanup(func() { _ = r.Close(ctx) })

	failed := r.Prepare(ctx, map[backend.Kind][]byte{
		backend.AOT:        {},
		backend.Transpiled: nil,
		backend.Interp:     []byte{0, 1, 2},
	}, backend.SampleExport)

	require.Contains(t, failed, backend.AOT)
	require.Contains(t, failed, backend.Interp)
	assert.NotContains(t, failed, backend.Transpiled)
	assert.Equal(t, []backend.Kind{backend.Transpiled}, r.Loaded())
}

func TestBypassDoesNotAllocate(t *testing.T) {
	r := NewRack(backend.DefaultConfig())
	env := NewThreadEnv()
	var f backend.Frame
	allocs := testing.AllocsPerRun(1000, func() {
		f.Reset()
		f.PushF32(0)
		_, _ = r.Call(env, &f)
	})
	assert.Zero(t, allocs)
	assert.Zero(t, f.F32())
}

func TestTranspiledCallDoesNotAllocate(t *testing.T) {
	ctx := context.Background()
	r := NewRack(backend.DefaultConfig())
	t.Cleanup(func() { _ = r.Close(ctx) })
	require.NoError(t, r.Handle(backend.Transpiled).Load(ctx, nil, backend.SampleExport))
	require.NoError(t, r.SetActive(backend.Transpiled))

	env := NewThreadEnv()
	var f backend.Frame
	allocs := testing.AllocsPerRun(1000, func() {
		f.Reset()
		f.PushF32(0)
		_, _ = r.Call(env, &f)
	})
	assert.Zero(t, allocs)
}

func TestTrapDoesNotAllocate(t *testing.T) {
	ctx := context.Background()
	r := NewRack(backend.DefaultConfig())
	t.Cleanup(func() { _ = r.Close(ctx) })
	require.NoError(t, r.Handle(backend.Transpiled).Load(ctx, nil, backend.FaultExport))
	require.NoError(t, r.SetActive(backend.Transpiled))

	env := NewThreadEnv()
	var f backend.Frame
	f.PushF32(0)
	_, first := r.Call(env, &f)
	require.True(t, errors.IsTrap(first))

	allocs := testing.AllocsPerRun(1000, func() {
		f.Reset()
		f.PushF32(0)
		if _, err := r.Call(env, &f); err != first {
			t.Fatalf("trap returned %v", err)
		}
	})
	assert.Zero(t, allocs)
	assert.Zero(t, f.F32())
}
