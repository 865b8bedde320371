package backend

import "github.com/tetratelabs/wazero/api"

// Frame carries one call's arguments and result in wasm's 64-bit stack
// encoding. It is a plain value so the real-time caller can keep it on its
// own stack and reuse it for every sample.
type Frame struct {
	params  [2]uint64
	nparams int
	result  uint64
}

// Reset clears params and result.
func (f *Frame) Reset() {
	*f = Frame{}
}

// PushF32 appends an f32 param. Extra params beyond two are dropped.
func (f *Frame) PushF32(v float32) *Frame {
	return f.push(api.EncodeF32(v))
}

// PushI32 appends an i32 param.
func (f *Frame) PushI32(v int32) *Frame {
	return f.push(api.EncodeI32(v))
}

func (f *Frame) push(v uint64) *Frame {
	if f.nparams < len(f.params) {
		f.params[f.nparams] = v
		f.nparams++
	}
	return f
}

// Params returns the encoded params.
func (f *Frame) Params() []uint64 {
	return f.params[:f.nparams]
}

// Param returns encoded param i, or 0.
func (f *Frame) Param(i int) uint64 {
	if i < f.nparams {
		return f.params[i]
	}
	return 0
}

// NumParams returns the number of pushed params.
func (f *Frame) NumParams() int {
	return f.nparams
}

// SetResult stores the encoded result.
func (f *Frame) SetResult(v uint64) {
	f.result = v
}

// SetF32 stores an f32 result.
func (f *Frame) SetF32(v float32) {
	f.result = api.EncodeF32(v)
}

// SetI32 stores an i32 result.
func (f *Frame) SetI32(v int32) {
	f.result = api.EncodeI32(v)
}

// Result returns the encoded result.
func (f *Frame) Result() uint64 {
	return f.result
}

// F32 decodes the result as f32.
func (f *Frame) F32() float32 {
	return api.DecodeF32(f.result)
}

// I32 decodes the result as i32.
func (f *Frame) I32() int32 {
	return api.DecodeI32(f.result)
}

// ParamF32 decodes param i as f32.
func (f *Frame) ParamF32(i int) float32 {
	return api.DecodeF32(f.Param(i))
}

// ParamI32 decodes param i as i32.
func (f *Frame) ParamI32(i int) int32 {
	return api.DecodeI32(f.Param(i))
}
