// Package guest builds the oscillator guest program that every backend runs.
//
// The module has one page of memory (min = max = 1) and exports:
//
//	get_sample(f32) -> f32     next sample of a 220 Hz sine at 44.1 kHz; argument ignored
//	render_block(f32) -> f32   advance n samples, return the last one
//	add(i32, i32) -> i32
//	fault(f32) -> f32          executes unreachable
//	memory
//
// The oscillator phase is an f32 at PhaseAddr. Package native holds the same
// program written in Go; both follow the identical f32 operation order.
package guest

import (
	"math"
	"sync"

	"github.com/wippyai/wasm-audio/wasm"
)

// Export names.
const (
	ExportSample = "get_sample"
	ExportBlock  = "render_block"
	ExportAdd    = "add"
	ExportFault  = "fault"
	ExportMemory = "memory"
)

// PhaseAddr is the linear-memory address of the oscillator phase.
const PhaseAddr = 16

const (
	Frequency  = 220.0
	SampleRate = 44100.0
)

// Oscillator constants, rounded to f32 once so both implementations agree bit for bit.
const (
	Pi        = float32(math.Pi)
	TwoPi     = float32(2 * math.Pi)
	HalfPi    = float32(math.Pi / 2)
	Increment = float32(2 * math.Pi * Frequency / SampleRate)
)

// Taylor coefficients of sin on [-pi/2, pi/2], evaluated in x^2 by Horner's rule.
const (
	C3  = float32(-1.0 / 6)
	C5  = float32(1.0 / 120)
	C7  = float32(-1.0 / 5040)
	C9  = float32(1.0 / 362880)
	C11 = float32(-1.0 / 39916800)
)

// Function indices in the module.
const (
	funcSin uint32 = iota
	funcSample
	funcBlock
	funcAdd
	funcFault
)

var (
	typeF32ToF32    = wasm.FuncType{Params: []wasm.ValType{wasm.ValF32}, Results: []wasm.ValType{wasm.ValF32}}
	typeI32I32ToI32 = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
)

var encoded = sync.OnceValue(func() []byte {
	return build().Encode()
})

// Module returns the guest as a wasm binary. Each call returns a fresh copy.
func Module() []byte {
	src := encoded()
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func build() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{typeF32ToF32, typeI32I32ToI32},
		Funcs: []wasm.Func{
			funcSin:    {Type: 0, Locals: []wasm.LocalDecl{{Count: 1, Type: wasm.ValF32}}, Body: sinBody()},
			funcSample: {Type: 0, Locals: []wasm.LocalDecl{{Count: 1, Type: wasm.ValF32}}, Body: sampleBody()},
			funcBlock:  {Type: 0, Locals: []wasm.LocalDecl{{Count: 1, Type: wasm.ValF32}}, Body: blockBody()},
			funcAdd:    {Type: 1, Body: addBody()},
			funcFault:  {Type: 0, Body: wasm.NewCode().Op(wasm.OpUnreachable).End().Bytes()},
		},
		Memory: &wasm.Limits{Min: 1, Max: 1, HasMax: true},
		Exports: []wasm.Export{
			{Name: ExportMemory, Kind: wasm.KindMemory, Index: 0},
			{Name: ExportSample, Kind: wasm.KindFunc, Index: funcSample},
			{Name: ExportBlock, Kind: wasm.KindFunc, Index: funcBlock},
			{Name: ExportAdd, Kind: wasm.KindFunc, Index: funcAdd},
			{Name: ExportFault, Kind: wasm.KindFunc, Index: funcFault},
		},
	}
}

// sin(x): fold into [-pi, pi], then into [-pi/2, pi/2], then the odd polynomial.
// local 0 = x, local 1 = x*x
func sinBody() []byte {
	c := wasm.NewCode()

	c.LocalGet(0).F32Const(Pi).Op(wasm.OpF32Gt).If().
		LocalGet(0).F32Const(TwoPi).Op(wasm.OpF32Sub).LocalSet(0).
		End()
	c.LocalGet(0).F32Const(-Pi).Op(wasm.OpF32Lt).If().
		LocalGet(0).F32Const(TwoPi).Op(wasm.OpF32Add).LocalSet(0).
		End()
	c.LocalGet(0).F32Const(HalfPi).Op(wasm.OpF32Gt).If().
		F32Const(Pi).LocalGet(0).Op(wasm.OpF32Sub).LocalSet(0).
		End()
	c.LocalGet(0).F32Const(-HalfPi).Op(wasm.OpF32Lt).If().
		F32Const(-Pi).LocalGet(0).Op(wasm.OpF32Sub).LocalSet(0).
		End()

	c.LocalGet(0).LocalGet(0).Op(wasm.OpF32Mul).LocalSet(1)

	c.F32Const(C11)
	for _, k := range []float32{C9, C7, C5, C3, 1} {
		c.LocalGet(1).Op(wasm.OpF32Mul).F32Const(k).Op(wasm.OpF32Add)
	}
	c.LocalGet(0).Op(wasm.OpF32Mul)

	return c.End().Bytes()
}

// get_sample: phase += inc; wrap at 2pi; store; return sin(phase).
// local 1 = new phase
func sampleBody() []byte {
	c := wasm.NewCode()

	c.I32Const(0).F32Load(PhaseAddr).F32Const(Increment).Op(wasm.OpF32Add).LocalTee(1).
		F32Const(TwoPi).Op(wasm.OpF32Gt).If().
		LocalGet(1).F32Const(TwoPi).Op(wasm.OpF32Sub).LocalSet(1).
		End()
	c.I32Const(0).LocalGet(1).F32Store(PhaseAddr)
	c.LocalGet(1).Call(funcSin)

	return c.End().Bytes()
}

// render_block(n): while n > 0 { last = get_sample(n); n -= 1 }; return last.
// local 1 = last
func blockBody() []byte {
	c := wasm.NewCode()

	c.Block().Loop()
	c.LocalGet(0).F32Const(0).Op(wasm.OpF32Gt, wasm.OpI32Eqz).BrIf(1)
	c.LocalGet(0).Call(funcSample).LocalSet(1)
	c.LocalGet(0).F32Const(1).Op(wasm.OpF32Sub).LocalSet(0)
	c.Br(0)
	c.End().End()
	c.LocalGet(1)

	return c.End().Bytes()
}

func addBody() []byte {
	return wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Bytes()
}
