package bridge

import "math"

// Default mix gains. The playback term is wired but silent by default.
const (
	DefaultToneGain     float32 = 0.2
	DefaultPlaybackGain float32 = 0
)

// Processor renders audio blocks: one Source sample per frame, added to
// every output channel together with an optional looping playback buffer.
type Processor struct {
	src          *Source
	playback     [][]float32
	length       int
	pos          int
	ToneGain     float32
	PlaybackGain float32
}

// NewProcessor returns a processor with the default gains.
func NewProcessor(src *Source) *Processor {
	return &Processor{
		src:          src,
		ToneGain:     DefaultToneGain,
		PlaybackGain: DefaultPlaybackGain,
	}
}

// SetPlayback installs the looping playback buffer, one slice per channel,
// and rewinds it. The loop length is the shortest channel. It must not be
// called concurrently with Process.
func (p *Processor) SetPlayback(channels [][]float32) {
	p.playback = channels
	p.length = 0
	p.pos = 0
	for i, ch := range channels {
		if i == 0 || len(ch) < p.length {
			p.length = len(ch)
		}
	}
}

// Position is the playback read position in frames.
func (p *Processor) Position() int {
	return p.pos
}

// Process fills one block. out is owned by the caller; its first inputs
// channels already carry input audio, the rest are cleared before mixing.
// Every output channel then gets
//
//	out[ch][i] += playback[ch%n][pos]*PlaybackGain + tone*ToneGain
func (p *Processor) Process(out [][]float32, inputs int) {
	for ch := max(inputs, 0); ch < len(out); ch++ {
		clear(out[ch])
	}
	frames := 0
	for _, ch := range out {
		frames = max(frames, len(ch))
	}

	n, length := len(p.playback), p.length

	for i := 0; i < frames; i++ {
		tone := p.src.Next() * p.ToneGain
		for ch := range out {
			if i >= len(out[ch]) {
				continue
			}
			v := tone
			if length > 0 {
				v += p.playback[ch%n][p.pos] * p.PlaybackGain
			}
			out[ch][i] += v
		}
		if length > 0 {
			p.pos++
			if p.pos >= length {
				p.pos = 0
			}
		}
	}
}

// Level is the peak and RMS of a rendered buffer.
type Level struct {
	Peak float32
	RMS  float32
}

// Measure returns the peak and RMS over every channel of buf.
func Measure(buf [][]float32) Level {
	var (
		peak  float32
		sumSq float64
		count int
	)
	for _, ch := range buf {
		for _, v := range ch {
			a := v
			if a < 0 {
				a = -a
			}
			if a > peak {
				peak = a
			}
			sumSq += float64(v) * float64(v)
			count++
		}
	}
	if count == 0 {
		return Level{}
	}
	return Level{Peak: peak, RMS: float32(math.Sqrt(sumSq / float64(count)))}
}
