// Package wasmaudio hosts a small WebAssembly guest program inside a
// real-time audio callback, with the execution strategy swappable between
// three backends behind one contract.
//
// # Architecture Overview
//
//	wasmaudio/           Root package with the Memory view shared by backends
//	├── backend/         Backend contract, arena, registry
//	│   ├── aot/         Precompiled native images (wasmtime, or wasmer with -tags wasmer)
//	│   ├── transpiled/  Guest translated to Go, linked into the binary
//	│   ├── interp/      wazero interpreter
//	│   └── all/         Registers every backend
//	├── engine/          Handle, Rack (active selector) and per-thread state
//	├── bridge/          Real-time sample source and block processor
//	├── bench/           Load / first-call / steady-state harness
//	├── guest/           Oscillator guest program (wasm and native Go)
//	├── wasm/            Binary encoder and structural inspector
//	├── config/          koanf configuration
//	├── errors/          Structured error types
//	└── cmd/wasmaudio/   CLI: bench, precompile, render, play
//
// # Quick Start
//
//	rack := engine.NewRack(cfg)
//	defer rack.Close(ctx)
//
//	h := rack.Handle(backend.Interp)
//	if err := h.Load(ctx, guest.Module(), backend.SampleExport); err != nil {
//	    log.Fatal(err)
//	}
//	rack.SetActive(backend.Interp)
//
//	src := bridge.NewSource(rack)
//	defer src.Close()
//	sample := src.Next()
//
// # Thread Safety
//
// The Rack selector may be written from any goroutine and is read with one
// atomic load per call. A Source belongs to exactly one goroutine: the one
// producing audio. Handles serialize Load and Destroy; Call never locks.
package wasmaudio
