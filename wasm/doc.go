// Package wasm provides the slice of the WebAssembly binary format this
// project needs: LEB128 primitives, a small module encoder with an
// instruction assembler, and a structural inspector.
//
// # Encoding
//
// Build a module and encode it:
//
//	m := &wasm.Module{
//	    Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
//	    Funcs: []wasm.Func{{Type: 0, Body: wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Bytes()}},
//	    Exports: []wasm.Export{{Name: "add", Kind: wasm.KindFunc, Index: 0}},
//	}
//	bin := m.Encode()
//
// # Inspection
//
// Inspect checks the header and section order and records types, imports,
// function type indices, memories and exports. Other sections are skipped.
// It is the "validate" stage of the interpreted backend:
//
//	info, err := wasm.Inspect(bin)
//	sig, err := info.ExportedFunc("add")
//
// Inspect does not validate instruction streams; the runtime that compiles
// the image does that.
package wasm
