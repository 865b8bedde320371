package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/backend/aot"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&app{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestBenchCommand(t *testing.T) {
	out, err := execute(t, "bench", "--plain", "-n", "100", "--scenario", "add", "--corrupt-aot")
	require.NoError(t, err)
	assert.Contains(t, out, "scenario add, 100 iterations")
	assert.Contains(t, out, "failed at load")
	assert.Contains(t, out, "transpiled")
	assert.Contains(t, out, "interp load stages:")
}

func TestBenchRejectsUnknownScenario(t *testing.T) {
	_, err := execute(t, "bench", "--scenario", "fib")
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	out, err := execute(t, "render", "--engine", "transpiled", "--blocks", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "engine transpiled, 8 blocks")
	assert.Contains(t, out, "traps 0")
	assert.NotContains(t, out, "peak 0.0000  rms")
}

func TestRenderBypass(t *testing.T) {
	out, err := execute(t, "render", "--engine", "bypass", "--blocks", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "peak 0.0000  rms 0.0000")
}

// writeLoop writes a mono 16-bit WAV holding a constant 0.5.
func writeLoop(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loop.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 48000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 48000},
		Data:           []int{16384, 16384, 16384, 16384},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestRenderPlayback(t *testing.T) {
	t.Setenv("WASMAUDIO_AUDIO__PLAYBACK_GAIN", "1")
	out, err := execute(t, "render", "--engine", "bypass", "--blocks", "2", "--playback", writeLoop(t))
	require.NoError(t, err)
	assert.Contains(t, out, "peak 0.5000  rms 0.5000")
}

func TestRenderMissingPlayback(t *testing.T) {
	_, err := execute(t, "render", "--engine", "bypass", "--playback", filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}

func TestRenderUnknownEngine(t *testing.T) {
	_, err := execute(t, "render", "--engine", "wamr")
	assert.Error(t, err)
}

func TestPlayHeadless(t *testing.T) {
	t.Setenv("WASMAUDIO_ENGINE__ACTIVE", "transpiled")
	t.Setenv("WASMAUDIO_BENCH__ITERATIONS", "10")
	out, err := execute(t, "play", "-d", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "played transpiled")
	assert.Contains(t, out, "traps 0")
}

func TestPrecompileCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guest.aot")
	_, err := execute(t, "precompile", "-o", path)
	if !aot.Available {
		assert.Error(t, err)
		return
	}
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// the written image is usable through aot.image
	t.Setenv("WASMAUDIO_AOT__IMAGE", path)
	out, err := execute(t, "render", "--engine", "aot", "--blocks", "2")
	require.NoError(t, err)
	assert.NotContains(t, out, "unavailable")
}

func TestScenarioFor(t *testing.T) {
	assert.Equal(t, "block", scenarioFor(backend.BlockExport).Name)
	assert.Equal(t, "sample", scenarioFor(backend.SampleExport).Name)
	assert.Equal(t, "fault", scenarioFor(backend.FaultExport).Name)
}

func TestMeter(t *testing.T) {
	assert.Equal(t, "░░░░", meter(0, 4))
	assert.Equal(t, "██░░", meter(0.5, 4))
	assert.Equal(t, "████", meter(2, 4))
	assert.Equal(t, "░░░░", meter(-1, 4))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
