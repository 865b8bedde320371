package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/bench"
	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
)

// images builds the per-backend images. A configured aot.image file takes
// the place of precompiling the built-in guest. An AOT failure is logged and
// left for that backend's load to report.
func (a *app) images() (bench.Images, error) {
	if a.cfg.AOT.Image == "" {
		img, err := bench.BuildImages(a.backendConfig())
		if err != nil {
			a.log.Warn("aot image unavailable", zap.Error(err))
		}
		return img, nil
	}

	native, err := os.ReadFile(a.cfg.AOT.Image)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read aot.image")
	}
	return bench.Images{
		backend.AOT:    native,
		backend.Interp: guest.Module(),
	}, nil
}

// playback decodes audio.playback, when set, into the looping buffer mixed
// under the tone.
func (a *app) playback() ([][]float32, error) {
	path := a.cfg.Audio.Playback
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open audio.playback")
	}
	defer f.Close()

	clip, err := bridge.DecodeWAV(f)
	if err != nil {
		return nil, err
	}
	if clip.SampleRate != a.cfg.Audio.SampleRate {
		a.log.Warn("playback sample rate differs from audio.sample_rate",
			zap.Int("playback", clip.SampleRate),
			zap.Int("audio", a.cfg.Audio.SampleRate))
	}
	a.log.Debug("playback loaded",
		zap.String("path", path),
		zap.Int("channels", len(clip.Channels)),
		zap.Int("frames", clip.Frames()))
	return clip.Channels, nil
}
