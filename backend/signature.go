package backend

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
	"github.com/wippyai/wasm-audio/wasm"
)

// Signature describes an export with WIT primitive types. Only types that
// flatten to a single core value are accepted.
type Signature struct {
	Params  []wit.Type
	Results []wit.Type
}

// Supported call signatures.
var (
	SigF32ToF32    = Signature{Params: []wit.Type{wit.F32{}}, Results: []wit.Type{wit.F32{}}}
	SigI32I32ToI32 = Signature{Params: []wit.Type{wit.S32{}, wit.S32{}}, Results: []wit.Type{wit.S32{}}}
	SigVoidToF32   = Signature{Results: []wit.Type{wit.F32{}}}
	SigF32ToVoid   = Signature{Params: []wit.Type{wit.F32{}}}
)

// Core flattens the signature to core wasm value types.
func (s Signature) Core() (wasm.FuncType, error) {
	params, err := flatten(s.Params)
	if err != nil {
		return wasm.FuncType{}, err
	}
	results, err := flatten(s.Results)
	if err != nil {
		return wasm.FuncType{}, err
	}
	if len(params) > 2 || len(results) > 1 {
		return wasm.FuncType{}, fmt.Errorf("signature %s: at most two params and one result", wasm.FuncType{Params: params, Results: results})
	}
	return wasm.FuncType{Params: params, Results: results}, nil
}

// Matches reports whether a core function type implements the signature.
func (s Signature) Matches(ft wasm.FuncType) bool {
	core, err := s.Core()
	return err == nil && core.Equal(ft)
}

func (s Signature) String() string {
	core, err := s.Core()
	if err != nil {
		return "invalid"
	}
	return core.String()
}

func flatten(types []wit.Type) ([]wasm.ValType, error) {
	out := make([]wasm.ValType, 0, len(types))
	for _, t := range types {
		switch t.(type) {
		case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
			out = append(out, wasm.ValI32)
		case wit.S64, wit.U64:
			out = append(out, wasm.ValI64)
		case wit.F32:
			out = append(out, wasm.ValF32)
		case wit.F64:
			out = append(out, wasm.ValF64)
		default:
			return nil, fmt.Errorf("type %T does not flatten to one core value", t)
		}
	}
	return out, nil
}

// Export names the one function an instance resolves, with its expected signature.
type Export struct {
	Name string
	Sig  Signature
}

// Guest exports.
var (
	SampleExport = Export{Name: guest.ExportSample, Sig: SigF32ToF32}
	BlockExport  = Export{Name: guest.ExportBlock, Sig: SigF32ToF32}
	AddExport    = Export{Name: guest.ExportAdd, Sig: SigI32I32ToI32}
	FaultExport  = Export{Name: guest.ExportFault, Sig: SigF32ToF32}
)

// CheckSignature returns a resolve error when got does not implement exp.
func CheckSignature(runtime string, exp Export, got wasm.FuncType) error {
	if exp.Sig.Matches(got) {
		return nil
	}
	return errors.SignatureMismatch(runtime, exp.Name, exp.Sig.String(), got.String())
}
