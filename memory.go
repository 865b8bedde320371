package wasmaudio

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-audio/errors"
)

// Memory is read access to an engine instance's linear memory.
type Memory interface {
	Size() uint32
	Read(offset uint32, length uint32) ([]byte, error)
	ReadU32(offset uint32) (uint32, error)
	ReadF32(offset uint32) (float32, error)
}

// BytesMemory adapts a byte slice that backs linear memory directly.
type BytesMemory []byte

var _ Memory = BytesMemory(nil)

func (m BytesMemory) Size() uint32 {
	return uint32(len(m))
}

// Read returns a view of [offset, offset+length). The slice aliases memory.
func (m BytesMemory) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m)) {
		return nil, errors.OutOfBounds(errors.PhaseCall, offset, length, m.Size())
	}
	return m[offset:end], nil
}

func (m BytesMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m BytesMemory) ReadF32(offset uint32) (float32, error) {
	v, err := m.ReadU32(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
