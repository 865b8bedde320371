package aot

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/guest/native"
	"github.com/wippyai/wasm-audio/wasm"
)

func requireAvailable(t *testing.T) {
	t.Helper()
	if !Available {
		t.Skip("aot backend not compiled in (needs cgo)")
	}
}

func precompiled(t *testing.T) []byte {
	t.Helper()
	image, err := Precompile(guest.Module(), backend.DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, image)
	return image
}

func newRuntime(t *testing.T) backend.Runtime {
	t.Helper()
	rt, err := New(backend.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestUnavailableWithoutCgo(t *testing.T) {
	if Available {
		t.Skip("aot backend compiled in")
	}
	_, err := New(backend.DefaultConfig())
	assert.True(t, errors.IsInit(err))
	_, err = Precompile(guest.Module(), backend.DefaultConfig())
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestLoadAndCall(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	rt := newRuntime(t)
	assert.Equal(t, backend.AOT, rt.Kind())
	assert.Equal(t, Name, rt.Name())

	inst, err := rt.Load(ctx, precompiled(t), backend.SampleExport)
	require.NoError(t, err)
	defer inst.Close(ctx)

	binder, ok := inst.(backend.ThreadBinder)
	require.True(t, ok)
	require.NoError(t, binder.BindThread())
	defer runtime.UnlockOSThread()

	ref := native.New(make([]byte, wasm.PageSize))
	var f backend.Frame
	for i := 0; i < 500; i++ {
		f.Reset()
		f.PushF32(0)
		require.NoError(t, inst.Call(&f))
		require.InDelta(t, ref.GetSample(0), f.F32(), 1e-5, "sample %d", i)
	}

	mem := inst.(backend.MemoryView).Memory()
	require.NotNil(t, mem)
	phase, err := mem.ReadF32(guest.PhaseAddr)
	require.NoError(t, err)
	assert.NotZero(t, phase)
}

func TestAddAndTrap(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	rt := newRuntime(t)
	image := precompiled(t)

	add, err := rt.Load(ctx, image, backend.AddExport)
	require.NoError(t, err)
	var f backend.Frame
	f.PushI32(42).PushI32(58)
	require.NoError(t, add.Call(&f))
	assert.Equal(t, int32(100), f.I32())
	require.NoError(t, add.Close(ctx))

	fault, err := rt.Load(ctx, image, backend.FaultExport)
	require.NoError(t, err)
	defer fault.Close(ctx)
	f.Reset()
	f.PushF32(0)
	err = fault.Call(&f)
	assert.True(t, errors.IsTrap(err))
	assert.Zero(t, f.F32())
}

func TestCorruptedImages(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	rt := newRuntime(t)
	image := precompiled(t)

	tests := []struct {
		name  string
		image []byte
	}{
		{"empty", nil},
		{"zero length", []byte{}},
		{"raw wasm", guest.Module()},
		{"truncated", image[:len(image)/2]},
		{"garbage", []byte("definitely not a native artifact")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.Load(ctx, tt.image, backend.SampleExport)
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalidImage, errors.KindOf(err), "%v", err)
		})
	}

	// the runtime is still usable afterwards
	inst, err := rt.Load(ctx, image, backend.SampleExport)
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx))
}

func TestResolveFailures(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	rt := newRuntime(t)
	image := precompiled(t)

	_, err := rt.Load(ctx, image, backend.Export{Name: "nope", Sig: backend.SigF32ToF32})
	assert.ErrorIs(t, err, errors.ErrExportNotFound)

	_, err = rt.Load(ctx, image, backend.Export{Name: guest.ExportAdd, Sig: backend.SigF32ToF32})
	assert.ErrorIs(t, err, errors.ErrSignature)
}

func TestCloseIsIdempotent(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	inst, err := newRuntime(t).Load(ctx, precompiled(t), backend.SampleExport)
	require.NoError(t, err)

	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))

	var f backend.Frame
	f.SetF32(1)
	require.NoError(t, inst.Call(&f))
	assert.Zero(t, f.F32())
	assert.Nil(t, inst.(backend.MemoryView).Memory())
}

func TestRuntimeCloseReleasesInOrder(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	image := precompiled(t)

	for i := 0; i < 5; i++ {
		rt, err := New(backend.DefaultConfig())
		require.NoError(t, err)
		inst, err := rt.Load(ctx, image, backend.SampleExport)
		require.NoError(t, err)

		var f backend.Frame
		f.PushF32(0)
		require.NoError(t, inst.Call(&f))

		require.NoError(t, inst.Close(ctx))
		require.NoError(t, rt.Close(ctx))
		require.NoError(t, rt.Close(ctx))

		_, err = rt.Load(ctx, image, backend.SampleExport)
		assert.Equal(t, errors.KindNotInitialized, errors.KindOf(err))
	}
}

func TestTrapKeepsFirstCause(t *testing.T) {
	requireAvailable(t)
	ctx := context.Background()
	inst, err := newRuntime(t).Load(ctx, precompiled(t), backend.FaultExport)
	require.NoError(t, err)
	defer inst.Close(ctx)

	var f backend.Frame
	f.PushF32(0)
	first := inst.Call(&f)
	require.True(t, errors.IsTrap(first))
	assert.Same(t, first, inst.Call(&f))
}
