//go:build !cgo

package aot

import (
	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
)

// Name identifies this backend in errors and reports.
const Name = "aot"

// Available reports whether a native runtime is linked in.
const Available = false

// New always fails: both AOT runtimes need cgo.
func New(backend.Config) (backend.Runtime, error) {
	return nil, errors.Unavailable(Name, "built without cgo")
}

// Precompile always fails: both AOT runtimes need cgo.
func Precompile([]byte, backend.Config) ([]byte, error) {
	return nil, errors.Unavailable(Name, "built without cgo")
}
