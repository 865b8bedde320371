// Package native is the guest program translated to Go and compiled into
// the binary. Linear memory is caller-supplied. Guest faults surface as
// panics carrying a *Trap; callers recover them at the call boundary.
package native

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-audio/guest"
)

// Trap is a guest fault.
type Trap struct {
	Reason string
}

func (t *Trap) Error() string { return "wasm trap: " + t.Reason }

// Sentinel traps. Panicking with these never allocates.
var (
	TrapUnreachable = &Trap{Reason: "unreachable executed"}
	TrapOutOfBounds = &Trap{Reason: "out of bounds memory access"}
)

// Module is one instance of the translated guest.
type Module struct {
	mem []byte
}

// New binds a module instance to mem.
func New(mem []byte) *Module {
	return &Module{mem: mem}
}

// Memory returns the instance's linear memory.
func (m *Module) Memory() []byte {
	return m.mem
}

// GetSample is get_sample.
func (m *Module) GetSample(_ float32) float32 {
	p := m.loadF32(guest.PhaseAddr) + guest.Increment
	if p > guest.TwoPi {
		p = p - guest.TwoPi
	}
	m.storeF32(guest.PhaseAddr, p)
	return Sin(p)
}

// RenderBlock is render_block.
func (m *Module) RenderBlock(n float32) float32 {
	var last float32
	for n > 0 {
		last = m.GetSample(n)
		n = n - 1
	}
	return last
}

// Add is add.
func (m *Module) Add(a, b int32) int32 {
	return a + b
}

// Fault is fault.
func (m *Module) Fault(_ float32) float32 {
	panic(TrapUnreachable)
}

// Sin folds x into [-pi/2, pi/2] and evaluates the degree-11 odd polynomial.
// Every product is rounded to f32 before the add so no fused multiply-add
// changes the result.
func Sin(x float32) float32 {
	if x > guest.Pi {
		x = x - guest.TwoPi
	}
	if x < -guest.Pi {
		x = x + guest.TwoPi
	}
	if x > guest.HalfPi {
		x = guest.Pi - x
	}
	if x < -guest.HalfPi {
		x = -guest.Pi - x
	}

	x2 := float32(x * x)
	p := guest.C11
	p = float32(p*x2) + guest.C9
	p = float32(p*x2) + guest.C7
	p = float32(p*x2) + guest.C5
	p = float32(p*x2) + guest.C3
	p = float32(p*x2) + 1
	return float32(p * x)
}

func (m *Module) loadF32(addr uint32) float32 {
	if uint64(addr)+4 > uint64(len(m.mem)) {
		panic(TrapOutOfBounds)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(m.mem[addr:]))
}

func (m *Module) storeF32(addr uint32, v float32) {
	if uint64(addr)+4 > uint64(len(m.mem)) {
		panic(TrapOutOfBounds)
	}
	binary.LittleEndian.PutUint32(m.mem[addr:], math.Float32bits(v))
}
