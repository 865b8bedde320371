package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-audio/backend"
	_ "github.com/wippyai/wasm-audio/backend/all"
	"github.com/wippyai/wasm-audio/engine"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/guest/native"
	"github.com/wippyai/wasm-audio/wasm"
)

func newRack(t *testing.T, images map[backend.Kind][]byte, export backend.Export) *engine.Rack {
	t.Helper()
	r := engine.NewRack(backend.DefaultConfig())
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	require.Empty(t, r.Prepare(context.Background(), images, export))
	return r
}

func TestBypassIsSilent(t *testing.T) {
	src := NewSource(engine.NewRack(backend.DefaultConfig()))
	defer src.Close()

	allocs := testing.AllocsPerRun(1000, func() {
		if v := src.Next(); v != 0 {
			t.Fatalf("bypass produced %v", v)
		}
	})
	assert.Zero(t, allocs)

	st := src.Stats().Snapshot()
	assert.Equal(t, st.Calls, st.Bypassed)
	assert.Zero(t, st.Traps)
	assert.Zero(t, st.Peak)
}

func TestSourceFollowsSelector(t *testing.T) {
	r := newRack(t, map[backend.Kind][]byte{
		backend.Transpiled: nil,
		backend.Interp:     guest.Module(),
	}, backend.SampleExport)
	src := NewSource(r)
	defer src.Close()

	ref := native.New(make([]byte, wasm.PageSize))
	require.NoError(t, r.SetActive(backend.Transpiled))
	for i := 0; i < 200; i++ {
		require.InDelta(t, ref.GetSample(0), src.Next(), 1e-5)
	}

	// the interpreter has its own phase and starts over
	ref = native.New(make([]byte, wasm.PageSize))
	require.NoError(t, r.SetActive(backend.Interp))
	for i := 0; i < 200; i++ {
		require.InDelta(t, ref.GetSample(0), src.Next(), 1e-5)
	}

	require.NoError(t, r.SetActive(backend.Bypass))
	assert.Zero(t, src.Next())

	st := src.Stats().Snapshot()
	assert.Equal(t, uint64(401), st.Calls)
	assert.Equal(t, uint64(1), st.Bypassed)
	assert.Greater(t, st.Peak, float32(0.9))
	assert.LessOrEqual(t, st.Peak, float32(1))
}

func TestUnloadedBackendIsSilent(t *testing.T) {
	r := engine.NewRack(backend.DefaultConfig())
	require.NoError(t, r.SetActive(backend.Interp))
	src := NewSource(r)
	defer src.Close()

	for i := 0; i < 10; i++ {
		assert.Zero(t, src.Next())
	}
	assert.Zero(t, src.Stats().Snapshot().Traps)
}

func TestTrapBecomesSilence(t *testing.T) {
	r := newRack(t, map[backend.Kind][]byte{
		backend.Transpiled: nil,
		backend.Interp:     guest.Module(),
	}, backend.FaultExport)
	src := NewSource(r)
	defer src.Close()

	for _, k := range []backend.Kind{backend.Transpiled, backend.Interp} {
		require.NoError(t, r.SetActive(k))
		for i := 0; i < 3; i++ {
			assert.Zero(t, src.Next())
		}
	}

	st := src.Stats().Snapshot()
	assert.Equal(t, uint64(6), st.Traps)
	assert.Equal(t, uint64(6), st.Calls)
	assert.Zero(t, st.SetupErrors)

	tr, ok := src.FirstTrap(backend.Transpiled)
	require.True(t, ok)
	assert.True(t, errors.IsTrap(tr.Err))
	assert.Equal(t, uint64(1), tr.Call)

	tr, ok = src.FirstTrap(backend.Interp)
	require.True(t, ok)
	assert.Equal(t, uint64(4), tr.Call)

	_, ok = src.FirstTrap(backend.AOT)
	assert.False(t, ok)
	_, ok = src.FirstTrap(backend.NumKinds)
	assert.False(t, ok)

	src.ReportTraps()
	src.ReportTraps()
}

func TestTrapDoesNotAllocate(t *testing.T) {
	r := newRack(t, map[backend.Kind][]byte{backend.Transpiled: nil}, backend.FaultExport)
	require.NoError(t, r.SetActive(backend.Transpiled))
	src := NewSource(r)
	defer src.Close()

	allocs := testing.AllocsPerRun(1000, func() {
		if v := src.Next(); v != 0 {
			t.Fatalf("trapped sample produced %v", v)
		}
	})
	assert.Zero(t, allocs)

	st := src.Stats().Snapshot()
	assert.Equal(t, st.Calls, st.Traps)
	tr, ok := src.FirstTrap(backend.Transpiled)
	require.True(t, ok)
	assert.Equal(t, uint64(1), tr.Call)
}

func TestSetupErrorsAreNotTraps(t *testing.T) {
	src := NewSource(engine.NewRack(backend.DefaultConfig()))
	defer src.Close()

	setup := errors.New(errors.PhaseCall, errors.KindInit).Backend("aot").Detail("thread setup").Build()
	src.fail(backend.AOT, setup, 1)
	src.fail(backend.AOT, setup, 2)

	st := src.Stats().Snapshot()
	assert.Equal(t, uint64(2), st.SetupErrors)
	assert.Zero(t, st.Traps)
	_, ok := src.FirstTrap(backend.AOT)
	assert.False(t, ok)

	src.fail(backend.AOT, errors.Trap("aot", "fault", nil), 3)
	st = src.Stats().Snapshot()
	assert.Equal(t, uint64(1), st.Traps)
	tr, ok := src.FirstTrap(backend.AOT)
	require.True(t, ok)
	assert.Equal(t, uint64(3), tr.Call)
}

func TestSourceAfterDestroy(t *testing.T) {
	ctx := context.Background()
	r := newRack(t, map[backend.Kind][]byte{backend.Transpiled: nil}, backend.SampleExport)
	require.NoError(t, r.SetActive(backend.Transpiled))
	src := NewSource(r)
	defer src.Close()

	assert.NotZero(t, src.Next())
	require.NoError(t, r.Handle(backend.Transpiled).Destroy(ctx))
	for i := 0; i < 10; i++ {
		assert.Zero(t, src.Next())
	}
}

func TestSourceDoesNotAllocate(t *testing.T) {
	r := newRack(t, map[backend.Kind][]byte{backend.Transpiled: nil}, backend.SampleExport)
	require.NoError(t, r.SetActive(backend.Transpiled))
	src := NewSource(r)
	defer src.Close()

	allocs := testing.AllocsPerRun(1000, func() { src.Next() })
	assert.Zero(t, allocs)
}

func TestProcessMix(t *testing.T) {
	r := newRack(t, map[backend.Kind][]byte{backend.Transpiled: nil}, backend.SampleExport)
	require.NoError(t, r.SetActive(backend.Transpiled))
	src := NewSource(r)
	defer src.Close()
	p := NewProcessor(src)

	out := [][]float32{
		make([]float32, 64),
		make([]float32, 64),
		{1, 1, 1},
	}
	for i := range out[0] {
		out[0][i] = 0.5
	}
	p.Process(out, 1)

	ref := native.New(make([]byte, wasm.PageSize))
	for i := 0; i < 64; i++ {
		tone := ref.GetSample(0) * DefaultToneGain
		assert.InDelta(t, 0.5+tone, out[0][i], 1e-6)
		assert.InDelta(t, tone, out[1][i], 1e-6)
	}
	assert.InDelta(t, out[1][0], out[2][0], 1e-6, "input channel was cleared")
	assert.Zero(t, p.Position())
}

func TestProcessPlaybackWraps(t *testing.T) {
	src := NewSource(engine.NewRack(backend.DefaultConfig()))
	defer src.Close()
	p := NewProcessor(src)
	p.PlaybackGain = 1
	p.SetPlayback([][]float32{{1, 2, 3}})

	out := [][]float32{make([]float32, 5), make([]float32, 5)}
	p.Process(out, 0)
	assert.Equal(t, []float32{1, 2, 3, 1, 2}, out[0])
	assert.Equal(t, []float32{1, 2, 3, 1, 2}, out[1])
	assert.Equal(t, 2, p.Position())

	// the default gain keeps playback silent
	p.PlaybackGain = DefaultPlaybackGain
	p.Process(out, 0)
	assert.Equal(t, make([]float32, 5), out[0])

	p.SetPlayback([][]float32{{}})
	p.PlaybackGain = 1
	p.Process(out, 0)
	assert.Equal(t, make([]float32, 5), out[1])
}

func TestProcessDoesNotAllocate(t *testing.T) {
	r := newRack(t, map[backend.Kind][]byte{backend.Transpiled: nil}, backend.SampleExport)
	require.NoError(t, r.SetActive(backend.Transpiled))
	src := NewSource(r)
	defer src.Close()
	p := NewProcessor(src)
	p.SetPlayback([][]float32{make([]float32, 100), make([]float32, 80)})

	out := [][]float32{make([]float32, 256), make([]float32, 256)}
	allocs := testing.AllocsPerRun(100, func() { p.Process(out, 0) })
	assert.Zero(t, allocs)
}

func TestMeasure(t *testing.T) {
	assert.Equal(t, Level{}, Measure(nil))
	lv := Measure([][]float32{{1, -1}, {-2, 2}})
	assert.Equal(t, float32(2), lv.Peak)
	assert.InDelta(t, 1.5811, lv.RMS, 1e-4)
}
