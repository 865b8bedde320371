package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseResolve,
				Kind:    KindSignatureMismatch,
				Backend: "wasmtime",
				Export:  "get_sample",
				Detail:  "want (f32) -> f32",
			},
			contains: []string{"[resolve]", "signature_mismatch", "(wasmtime)", "export get_sample", "want (f32) -> f32"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLoad,
				Kind:  KindInvalidImage,
			},
			contains: []string{"[load]", "invalid_image"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindTrap,
				Detail: "guest fault",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[call]", "trap", "guest fault", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseInit,
		Kind:  KindInit,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:   PhaseLoad,
		Kind:    KindInvalidImage,
		Backend: "wasmer",
	}

	if !err.Is(&Error{Phase: PhaseLoad, Kind: KindInvalidImage}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseCall, Kind: KindInvalidImage}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseLoad, Kind: KindTrap}) {
		t.Error("Is should not match different kind")
	}

	if !errors.Is(err, ErrInvalidImage) {
		t.Error("kind-only target should match any phase")
	}

	wrapped := fmt.Errorf("bench: %w", err)
	if !errors.Is(wrapped, ErrInvalidImage) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLoad, KindInvalidImage).
		Backend("wasmtime").
		Export("get_sample").
		Value(0).
		Cause(cause).
		Detail("image is %d bytes", 0).
		Build()

	if err.Phase != PhaseLoad {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLoad)
	}
	if err.Kind != KindInvalidImage {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidImage)
	}
	if err.Backend != "wasmtime" {
		t.Errorf("Backend = %q", err.Backend)
	}
	if err.Export != "get_sample" {
		t.Errorf("Export = %q", err.Export)
	}
	if err.Detail != "image is 0 bytes" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through errors.Is")
	}
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		trap   bool
		init   bool
		load   bool
		kind   Kind
		phase  Phase
	}{
		{"trap", Trap("b", "fault", errors.New("x")), true, false, false, KindTrap, PhaseCall},
		{"init", InitFailed("b", "arena", nil), false, true, false, KindInit, PhaseInit},
		{"unavailable", Unavailable("aot", "no cgo"), false, true, false, KindUnavailable, PhaseInit},
		{"load", Load("b", "empty image", nil), false, false, true, KindInvalidImage, PhaseLoad},
		{"instantiate", Instantiation("b", errors.New("x")), false, false, true, KindInstantiation, PhaseInstantiate},
		{"export", ExportNotFound("b", "nope"), false, false, true, KindExportNotFound, PhaseResolve},
		{"signature", SignatureMismatch("b", "add", "a", "b"), false, false, true, KindSignatureMismatch, PhaseResolve},
		{"plain", errors.New("plain"), false, false, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTrap(tt.err); got != tt.trap {
				t.Errorf("IsTrap = %v, want %v", got, tt.trap)
			}
			if got := IsInit(tt.err); got != tt.init {
				t.Errorf("IsInit = %v, want %v", got, tt.init)
			}
			if got := IsLoad(tt.err); got != tt.load {
				t.Errorf("IsLoad = %v, want %v", got, tt.load)
			}
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf = %q, want %q", got, tt.kind)
			}
			if got := PhaseOf(tt.err); got != tt.phase {
				t.Errorf("PhaseOf = %q, want %q", got, tt.phase)
			}
		})
	}
}

func TestOutOfBounds(t *testing.T) {
	err := OutOfBounds(PhaseCall, 65534, 4, 65536)
	if err.Kind != KindOutOfBounds {
		t.Errorf("Kind = %v", err.Kind)
	}
	if !strings.Contains(err.Error(), "[65534, 65538)") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestLatch(t *testing.T) {
	first := errors.New("unreachable")
	second := errors.New("out of bounds")

	e := Trap("transpiled", "fault", nil)
	if got := e.Latch(first); got != e {
		t.Fatal("Latch returned a different error")
	}
	e.Latch(second)
	if !errors.Is(e, first) {
		t.Errorf("cause = %v, want %v", e.Cause, first)
	}
	if !IsTrap(e) {
		t.Error("latched error lost its kind")
	}

	allocs := testing.AllocsPerRun(100, func() { _ = e.Latch(second) })
	if allocs != 0 {
		t.Errorf("Latch allocated %v times", allocs)
	}
}
