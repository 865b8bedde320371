package wasm

import "github.com/wippyai/wasm-audio/wasm/internal/binary"

// Code assembles a function body one instruction at a time.
//
//	body := wasm.NewCode().
//		LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).
//		End().Bytes()
type Code struct {
	w binary.Writer
}

// NewCode returns an empty body.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

// Op emits one or more immediate-free opcodes.
func (c *Code) Op(ops ...byte) *Code {
	for _, op := range ops {
		c.w.Byte(op)
	}
	return c
}

func (c *Code) LocalGet(idx uint32) *Code { return c.opU32(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code { return c.opU32(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) *Code { return c.opU32(OpLocalTee, idx) }
func (c *Code) Call(fn uint32) *Code      { return c.opU32(OpCall, fn) }
func (c *Code) Br(depth uint32) *Code     { return c.opU32(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code   { return c.opU32(OpBrIf, depth) }

// Block opens a block with no result.
func (c *Code) Block() *Code { return c.Op(OpBlock, BlockTypeVoid) }

// Loop opens a loop with no result.
func (c *Code) Loop() *Code { return c.Op(OpLoop, BlockTypeVoid) }

// If opens an if with no result.
func (c *Code) If() *Code { return c.Op(OpIf, BlockTypeVoid) }

// End closes the innermost block, or the function body.
func (c *Code) End() *Code { return c.Op(OpEnd) }

// I32Const pushes a constant i32.
func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

// F32Const pushes a constant f32.
func (c *Code) F32Const(v float32) *Code {
	c.w.Byte(OpF32Const)
	c.w.WriteF32(v)
	return c
}

// F32Load loads from the address on the stack plus offset, 4-byte aligned.
func (c *Code) F32Load(offset uint32) *Code {
	return c.memarg(OpF32Load, 2, offset)
}

// F32Store stores to the address below the value on the stack plus offset.
func (c *Code) F32Store(offset uint32) *Code {
	return c.memarg(OpF32Store, 2, offset)
}

func (c *Code) opU32(op byte, v uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(v)
	return c
}

func (c *Code) memarg(op byte, align, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}
