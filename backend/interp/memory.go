package interp

import (
	"github.com/tetratelabs/wazero/api"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/errors"
)

// memory adapts wazero memory to wasmaudio.Memory.
type memory struct {
	m api.Memory
}

var _ wasmaudio.Memory = memory{}

func (w memory) Size() uint32 {
	return w.m.Size()
}

func (w memory) Read(offset, length uint32) ([]byte, error) {
	data, ok := w.m.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCall, offset, length, w.m.Size())
	}
	return data, nil
}

func (w memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := w.m.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseCall, offset, 4, w.m.Size())
	}
	return v, nil
}

func (w memory) ReadF32(offset uint32) (float32, error) {
	v, ok := w.m.ReadFloat32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseCall, offset, 4, w.m.Size())
	}
	return v, nil
}
