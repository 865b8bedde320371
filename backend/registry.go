package backend

import (
	"fmt"
	"sync"

	"github.com/wippyai/wasm-audio/errors"
)

// Factory creates a runtime. This is the create operation of the contract.
type Factory func(cfg Config) (Runtime, error)

type registration struct {
	factory Factory
	name    string
}

var (
	registryMu sync.RWMutex
	registry   [NumKinds]*registration
)

// Register installs the factory for kind. It panics on a duplicate.
func Register(kind Kind, name string, factory Factory) {
	if !kind.Valid() {
		panic(fmt.Sprintf("backend: cannot register %s", kind))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if r := registry[kind]; r != nil {
		panic(fmt.Sprintf("backend %s already registered by %s", kind, r.name))
	}
	registry[kind] = &registration{name: name, factory: factory}
}

// Lookup returns the factory for kind.
func Lookup(kind Kind) (Factory, string, error) {
	if !kind.Valid() {
		return nil, "", errors.NotFound(errors.PhaseInit, "backend", kind.String())
	}
	registryMu.RLock()
	r := registry[kind]
	registryMu.RUnlock()
	if r == nil {
		return nil, "", errors.NotFound(errors.PhaseInit, "backend", kind.String())
	}
	return r.factory, r.name, nil
}

// New creates a runtime of the given kind.
func New(kind Kind, cfg Config) (Runtime, error) {
	factory, _, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	return factory(cfg)
}

// Registered lists kinds with a factory, in Order.
func Registered() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Kind, 0, len(Order))
	for _, k := range Order {
		if registry[k] != nil {
			out = append(out, k)
		}
	}
	return out
}
