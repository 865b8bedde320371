package main

import (
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/engine"
)

// audioLoop stands in for a host audio callback: one goroutine, pinned to
// its thread, rendering one block per block period into a buffer it owns.
type audioLoop struct {
	src   *bridge.Source
	proc  *bridge.Processor
	out   [][]float32
	every time.Duration
	level atomic.Uint32
	stop  chan struct{}
	done  chan struct{}
}

func newAudioLoop(rack *engine.Rack, channels, blockSize, sampleRate int, toneGain, playbackGain float32, playback [][]float32) *audioLoop {
	src := bridge.NewSource(rack)
	proc := bridge.NewProcessor(src)
	proc.ToneGain = toneGain
	proc.PlaybackGain = playbackGain
	proc.SetPlayback(playback)

	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, blockSize)
	}
	return &audioLoop{
		src:   src,
		proc:  proc,
		out:   out,
		every: time.Duration(blockSize) * time.Second / time.Duration(sampleRate),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *audioLoop) start() {
	go l.run()
}

func (l *audioLoop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)
	defer l.src.Close()

	t := time.NewTicker(l.every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.proc.Process(l.out, 0)
			l.level.Store(math.Float32bits(bridge.Measure(l.out).Peak))
		}
	}
}

// Level is the peak of the last rendered block.
func (l *audioLoop) Level() float32 {
	return math.Float32frombits(l.level.Load())
}

func (l *audioLoop) close() {
	close(l.stop)
	<-l.done
}
