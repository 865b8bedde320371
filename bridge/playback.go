package bridge

import (
	"io"

	"github.com/go-audio/wav"

	"github.com/wippyai/wasm-audio/errors"
)

// Clip is decoded playback audio, one slice per channel.
type Clip struct {
	Channels   [][]float32
	SampleRate int
}

// Frames is the length of the shortest channel.
func (c Clip) Frames() int {
	if len(c.Channels) == 0 {
		return 0
	}
	n := len(c.Channels[0])
	for _, ch := range c.Channels[1:] {
		n = min(n, len(ch))
	}
	return n
}

// DecodeWAV reads an integer PCM WAV stream and scales it to [-1, 1).
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Clip{}, errors.InvalidInput(errors.PhaseLoad, "not a PCM wav stream")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "decode wav")
	}

	channels := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if channels < 1 || depth < 8 || depth > 32 {
		return Clip{}, errors.InvalidInput(errors.PhaseLoad, "unsupported wav layout")
	}

	frames := len(buf.Data) / channels
	clip := Clip{Channels: make([][]float32, channels), SampleRate: buf.Format.SampleRate}
	for ch := range clip.Channels {
		clip.Channels[ch] = make([]float32, frames)
	}

	// 8-bit wav is unsigned, wider depths are two's complement
	offset := 0
	if depth == 8 {
		offset = 128
	}
	scale := 1 / float32(int64(1)<<(depth-1))
	for i := 0; i < frames*channels; i++ {
		clip.Channels[i%channels][i/channels] = float32(buf.Data[i]-offset) * scale
	}
	return clip, nil
}
