// Package bridge connects the engine rack to a real-time audio callback.
//
// A Source makes exactly one guest call per sample against whatever backend
// the rack's selector names at that moment. Its happy path takes no locks
// and does not allocate. Failures never leave the bridge: a trap or a
// missing instance turns into a silent sample, and counters record what
// happened for code running outside the callback.
package bridge

import (
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/engine"
	"github.com/wippyai/wasm-audio/errors"
)

// Stats are the Source's counters. Read them with Snapshot from any goroutine.
// Traps counts guest faults; SetupErrors counts calls that never reached the
// guest because per-thread setup failed.
type Stats struct {
	Calls       atomic.Uint64
	Traps       atomic.Uint64
	SetupErrors atomic.Uint64
	Bypassed    atomic.Uint64
	peak        atomic.Uint32
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Calls       uint64
	Traps       uint64
	SetupErrors uint64
	Bypassed    uint64
	Peak        float32
}

// Snapshot reads every counter once.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Calls:       s.Calls.Load(),
		Traps:       s.Traps.Load(),
		SetupErrors: s.SetupErrors.Load(),
		Bypassed:    s.Bypassed.Load(),
		Peak:        math.Float32frombits(s.peak.Load()),
	}
}

func (s *Stats) observe(v float32) {
	if v < 0 {
		v = -v
	}
	bits := math.Float32bits(v)
	if bits > s.peak.Load() {
		s.peak.Store(bits)
	}
}

// Source produces samples from the rack's active backend. A Source belongs
// to the goroutine that calls Next; Stats and FirstTrap may be read from
// anywhere.
type Source struct {
	rack  *engine.Rack
	env   *engine.ThreadEnv
	frame backend.Frame
	stats Stats

	// first trap per backend kind, set once
	traps [backend.NumKinds]atomic.Pointer[Trap]

	reportMu sync.Mutex
	reported [backend.NumKinds]bool
}

// Trap is the first guest fault seen for one backend.
type Trap struct {
	Err  error
	Call uint64
}

// NewSource returns a source reading rack's selector.
func NewSource(rack *engine.Rack) *Source {
	return &Source{rack: rack, env: engine.NewThreadEnv()}
}

// Next returns one sample. It yields 0 when bypass is selected, when the
// selected backend has nothing loaded, and for a sample whose call trapped
// or whose thread setup failed. A failed call is not retried.
func (s *Source) Next() float32 {
	f := &s.frame
	f.Reset()
	f.PushF32(0)

	kind, err := s.rack.Call(s.env, f)
	n := s.stats.Calls.Add(1)
	if err != nil {
		s.fail(kind, err, n)
		return 0
	}
	if kind == backend.Bypass {
		s.stats.Bypassed.Add(1)
		return 0
	}
	v := f.F32()
	s.stats.observe(v)
	return v
}

// fail counts a failed call. Only guest faults are recorded as traps.
func (s *Source) fail(kind backend.Kind, err error, call uint64) {
	if !errors.IsTrap(err) {
		s.stats.SetupErrors.Add(1)
		return
	}
	s.stats.Traps.Add(1)
	if kind < backend.NumKinds && s.traps[kind].Load() == nil {
		s.traps[kind].CompareAndSwap(nil, &Trap{Err: err, Call: call})
	}
}

// Stats returns the live counters.
func (s *Source) Stats() *Stats {
	return &s.stats
}

// FirstTrap returns the first guest fault recorded for kind.
func (s *Source) FirstTrap(kind backend.Kind) (Trap, bool) {
	if kind >= backend.NumKinds {
		return Trap{}, false
	}
	if r := s.traps[kind].Load(); r != nil {
		return *r, true
	}
	return Trap{}, false
}

// ReportTraps logs each backend's first trap once. Call it from outside the
// audio callback.
func (s *Source) ReportTraps() {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	for k := range s.traps {
		r := s.traps[k].Load()
		if r == nil || s.reported[k] {
			continue
		}
		s.reported[k] = true
		Logger().Warn("guest call failed, emitting silence",
			zap.Stringer("kind", backend.Kind(k)),
			zap.Uint64("call", r.Call),
			zap.Error(r.Err))
	}
}

// Close releases thread state taken by the calling goroutine. It must run
// on the goroutine that called Next.
func (s *Source) Close() {
	s.env.Release()
}
