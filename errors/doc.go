// Package errors provides structured error types for the wasm-audio engines.
//
// Errors are categorized by Phase (where in the engine lifecycle the error
// occurred) and Kind (error category). The Error type carries the backend
// name, the export involved, a detail message and the cause chain.
//
// The taxonomy maps onto the engine contract:
//
//	init         runtime or arena could not be brought up (fatal to one backend)
//	load         image malformed                      (KindInvalidImage)
//	instantiate  instantiation failed                 (KindInstantiation)
//	resolve      export missing or wrong signature    (KindExportNotFound, KindSignatureMismatch)
//	call         guest trapped                        (KindTrap, recoverable)
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindInvalidImage).
//		Backend("wasmtime").
//		Detail("image is %d bytes", len(image)).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ExportNotFound("wazero-interpreter", "get_sample")
//	err := errors.Trap("go-transpiled", "fault", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// The ErrTrap, ErrInit, ... targets match on Kind regardless of Phase.
package errors
