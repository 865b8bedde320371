package bench

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/backend/aot"
	"github.com/wippyai/wasm-audio/guest"
)

// BuildImages returns the built-in guest for every backend: raw bytecode for
// the interpreter, a precompiled artifact for AOT and nothing for the
// transpiled backend. When precompilation fails the AOT entry is left out
// and the error returned alongside the other images, so the AOT row fails
// at load while the rest still run.
func BuildImages(cfg backend.Config) (Images, error) {
	bytecode := guest.Module()
	images := Images{backend.Interp: bytecode}

	native, err := aot.Precompile(bytecode, cfg)
	if err != nil {
		cfg.Log().Warn("aot precompile failed", zap.Error(err))
		return images, err
	}
	images[backend.AOT] = native
	return images, nil
}
