package backend

import (
	"strings"

	"github.com/wippyai/wasm-audio/errors"
)

// Kind identifies an execution strategy. It is stored in the Rack's atomic
// selector, so values stay small and dense.
type Kind uint32

const (
	Bypass Kind = iota
	AOT
	Transpiled
	Interp

	NumKinds
)

// Order is the deterministic benchmark order.
var Order = [...]Kind{AOT, Transpiled, Interp}

var kindNames = [NumKinds]string{
	Bypass:     "bypass",
	AOT:        "aot",
	Transpiled: "transpiled",
	Interp:     "interp",
}

func (k Kind) String() string {
	if k < NumKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether k names a real backend (not bypass).
func (k Kind) Valid() bool {
	return k > Bypass && k < NumKinds
}

// ParseKind accepts the names printed by String, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if s == name {
			return Kind(k), nil
		}
	}
	return Bypass, errors.InvalidInput(errors.PhaseConfig, "unknown backend "+s)
}
