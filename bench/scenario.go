package bench

import (
	"math"
	"strconv"

	"github.com/wippyai/wasm-audio/backend"
)

// Scenario is one guest export measured by the harness.
type Scenario struct {
	Name   string
	Export backend.Export

	// Args pushes the neutral argument. It runs once; the resulting frame
	// is copied for every call.
	Args func(f *backend.Frame)

	// Check is the sanity check applied to the first call's result.
	Check func(f *backend.Frame) bool

	// Format renders the first call's result for the report.
	Format func(f *backend.Frame) string
}

// BlockFrames is the frame count render_block advances per call.
const BlockFrames = 64

var (
	// SampleScenario calls get_sample(0): a finite value in [-1, 1].
	SampleScenario = Scenario{
		Name:   "sample",
		Export: backend.SampleExport,
		Args:   func(f *backend.Frame) { f.PushF32(0) },
		Check:  unitRange,
		Format: formatF32,
	}

	// AddScenario calls add(42, 58), which must return 100.
	AddScenario = Scenario{
		Name:   "add",
		Export: backend.AddExport,
		Args:   func(f *backend.Frame) { f.PushI32(42).PushI32(58) },
		Check:  func(f *backend.Frame) bool { return f.I32() == 100 },
		Format: func(f *backend.Frame) string { return strconv.Itoa(int(f.I32())) },
	}

	// BlockScenario calls render_block(BlockFrames), a heavier call for comparing
	// backends by per-call cost.
	BlockScenario = Scenario{
		Name:   "block",
		Export: backend.BlockExport,
		Args:   func(f *backend.Frame) { f.PushF32(BlockFrames) },
		Check:  unitRange,
		Format: formatF32,
	}
)

// Scenarios lists the built-in scenarios by name.
var Scenarios = map[string]Scenario{
	SampleScenario.Name: SampleScenario,
	AddScenario.Name:    AddScenario,
	BlockScenario.Name:  BlockScenario,
}

func unitRange(f *backend.Frame) bool {
	v := float64(f.F32())
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= 1
}

func formatF32(f *backend.Frame) string {
	return strconv.FormatFloat(float64(f.F32()), 'f', 6, 32)
}
