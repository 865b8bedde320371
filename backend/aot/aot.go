// Package aot runs images that were compiled to native code ahead of time.
//
// Load only deserializes and links: no code generation happens on the load
// path. Produce images with Precompile (or "wasmaudio precompile"). The
// runtime is picked at build time:
//
//	cgo, default      wasmtime
//	cgo, -tags wasmer wasmer
//	no cgo            New returns an unavailable error
//
// Instances implement backend.ThreadBinder. The first call from a new thread
// must be preceded by BindThread, which pins the goroutine to its OS thread.
//
// Calls cross cgo and box their arguments, so each call allocates a few
// bytes. The interpreted and transpiled backends do not.
package aot

import (
	"bytes"
	"encoding/binary"
	"math"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/wasm"
)

func init() {
	backend.Register(backend.AOT, Name, New)
}

var wasmMagic = binary.LittleEndian.AppendUint32(nil, wasm.Magic)

// checkImage rejects images that cannot be a serialized artifact.
func checkImage(image []byte) error {
	if len(image) == 0 {
		return errors.Load(Name, "empty image", nil)
	}
	if bytes.HasPrefix(image, wasmMagic) {
		return errors.Load(Name, "image is raw wasm bytecode, precompile it first", nil)
	}
	return nil
}

// bindThread pins the calling goroutine to its OS thread and records the
// one-time setup. The caller undoes the pin with runtime.UnlockOSThread.
func bindThread(log *zap.Logger, export string) {
	runtime.LockOSThread()
	log.Debug("thread environment initialized",
		zap.Int("tid", threadID()),
		zap.String("export", export))
}

// boxArg converts an encoded param to the Go value the cgo bindings expect.
func boxArg(t wasm.ValType, raw uint64) any {
	switch t {
	case wasm.ValI32:
		return int32(uint32(raw))
	case wasm.ValI64:
		return int64(raw)
	case wasm.ValF32:
		return math.Float32frombits(uint32(raw))
	case wasm.ValF64:
		return math.Float64frombits(raw)
	}
	return nil
}

// storeResult encodes a single returned value into f.
func storeResult(f *backend.Frame, res any) {
	switch v := res.(type) {
	case int32:
		f.SetI32(v)
	case int64:
		f.SetResult(uint64(v))
	case float32:
		f.SetF32(v)
	case float64:
		f.SetResult(math.Float64bits(v))
	default:
		f.SetResult(0)
	}
}
