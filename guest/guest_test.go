package guest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/guest/native"
	"github.com/wippyai/wasm-audio/wasm"
)

func TestModuleStructure(t *testing.T) {
	info, err := wasm.Inspect(guest.Module())
	require.NoError(t, err)

	require.Len(t, info.Memories, 1)
	assert.Equal(t, wasm.Limits{Min: 1, Max: 1, HasMax: true}, info.Memories[0])

	sigs := map[string]string{
		guest.ExportSample: "(f32) -> f32",
		guest.ExportBlock:  "(f32) -> f32",
		guest.ExportFault:  "(f32) -> f32",
		guest.ExportAdd:    "(i32, i32) -> i32",
	}
	for name, want := range sigs {
		sig, err := info.ExportedFunc(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, sig.String(), name)
	}

	// sin is internal
	_, err = info.ExportedFunc("sin")
	assert.ErrorIs(t, err, wasm.ErrExportNotFound)
}

func TestModuleReturnsCopy(t *testing.T) {
	a := guest.Module()
	a[0] = 0xff
	b := guest.Module()
	assert.Equal(t, byte(0x00), b[0])
}

// The encoded guest and the Go translation must agree sample for sample.
func TestModuleMatchesNative(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, guest.Module())
	require.NoError(t, err)

	fn := mod.ExportedFunction(guest.ExportSample)
	require.NotNil(t, fn)

	ref := native.New(make([]byte, wasm.PageSize))
	for i := 0; i < 2000; i++ {
		res, err := fn.Call(ctx, api.EncodeF32(0))
		require.NoError(t, err)
		got := api.DecodeF32(res[0])
		want := ref.GetSample(0)
		require.InDelta(t, want, got, 1e-5, "sample %d", i)
	}

	add := mod.ExportedFunction(guest.ExportAdd)
	res, err := add.Call(ctx, api.EncodeI32(42), api.EncodeI32(58))
	require.NoError(t, err)
	assert.Equal(t, int32(100), api.DecodeI32(res[0]))

	_, err = mod.ExportedFunction(guest.ExportFault).Call(ctx, api.EncodeF32(0))
	assert.Error(t, err)
}
