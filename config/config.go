// Package config loads the application configuration from defaults, an
// optional YAML file and WASMAUDIO_ environment variables, in that order.
//
// Environment keys map to config keys by dropping the prefix, lowercasing
// and turning "__" into a section separator:
//
//	WASMAUDIO_AUDIO__TONE_GAIN=0.5   ->  audio.tone_gain
//	WASMAUDIO_BENCH__KEEP=aot,interp ->  bench.keep
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/bench"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/guest"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "WASMAUDIO_"

type Config struct {
	Engine EngineConfig         `koanf:"engine"`
	AOT    AOTConfig            `koanf:"aot"`
	Interp backend.InterpConfig `koanf:"interp"`
	Bench  BenchConfig          `koanf:"bench"`
	Audio  AudioConfig          `koanf:"audio"`
	Log    LogConfig            `koanf:"log"`
}

type EngineConfig struct {
	// Active is the backend selected once setup completes.
	Active string              `koanf:"active"`
	Export string              `koanf:"export"`
	Arena  backend.ArenaConfig `koanf:"arena"`
}

type AOTConfig struct {
	// Image is a precompiled artifact. Empty means precompile the
	// built-in guest at startup.
	Image    string `koanf:"image"`
	OptLevel string `koanf:"opt_level"`
}

type BenchConfig struct {
	Enabled    bool     `koanf:"enabled"`
	Iterations int      `koanf:"iterations"`
	Scenario   string   `koanf:"scenario"`
	Keep       []string `koanf:"keep"`
}

type AudioConfig struct {
	SampleRate   int     `koanf:"sample_rate"`
	BlockSize    int     `koanf:"block_size"`
	Channels     int     `koanf:"channels"`
	ToneGain     float32 `koanf:"tone_gain"`
	PlaybackGain float32 `koanf:"playback_gain"`
	Playback     string  `koanf:"playback"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	def := backend.DefaultConfig()
	return Config{
		Engine: EngineConfig{
			Active: backend.Bypass.String(),
			Export: guest.ExportSample,
			Arena:  def.Arena,
		},
		AOT:    AOTConfig{OptLevel: def.AOT.OptLevel},
		Interp: def.Interp,
		Bench: BenchConfig{
			Enabled:    true,
			Iterations: bench.DefaultIterations,
			Scenario:   bench.SampleScenario.Name,
		},
		Audio: AudioConfig{
			SampleRate:   int(guest.SampleRate),
			BlockSize:    512,
			Channels:     2,
			ToneGain:     0.2,
			PlaybackGain: 0,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load layers path (if not empty) and the environment over the defaults and
// validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load "+path)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load environment")
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks every field that has a restricted range.
func (c Config) Validate() error {
	if _, err := backend.ParseKind(c.Engine.Active); err != nil {
		return err
	}
	if _, err := c.Export(); err != nil {
		return err
	}
	if _, err := backend.NewArena(c.Engine.Arena); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "engine.arena")
	}
	switch c.AOT.OptLevel {
	case "", "none", "speed", "speed_and_size":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "aot.opt_level must be none, speed or speed_and_size")
	}
	if c.Bench.Iterations <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, "bench.iterations must be positive")
	}
	if _, err := c.Scenario(); err != nil {
		return err
	}
	if _, err := c.KeepKinds(); err != nil {
		return err
	}
	if c.Audio.SampleRate <= 0 || c.Audio.BlockSize <= 0 || c.Audio.Channels <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, "audio sample_rate, block_size and channels must be positive")
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	return nil
}

// Backend returns the configuration handed to backend factories.
func (c Config) Backend(log *zap.Logger) backend.Config {
	return backend.Config{
		Logger: log,
		Arena:  c.Engine.Arena,
		AOT:    backend.AOTConfig{OptLevel: c.AOT.OptLevel},
		Interp: c.Interp,
	}
}

// ActiveKind parses engine.active.
func (c Config) ActiveKind() (backend.Kind, error) {
	return backend.ParseKind(c.Engine.Active)
}

var exports = map[string]backend.Export{
	guest.ExportSample: backend.SampleExport,
	guest.ExportBlock:  backend.BlockExport,
	guest.ExportAdd:    backend.AddExport,
	guest.ExportFault:  backend.FaultExport,
}

// Export resolves engine.export to the guest export and its signature.
func (c Config) Export() (backend.Export, error) {
	e, ok := exports[c.Engine.Export]
	if !ok {
		return backend.Export{}, errors.InvalidInput(errors.PhaseConfig, "engine.export: unknown export "+c.Engine.Export)
	}
	if e.Name == guest.ExportAdd {
		return backend.Export{}, errors.InvalidInput(errors.PhaseConfig, "engine.export: "+e.Name+" does not produce samples")
	}
	return e, nil
}

// Scenario resolves bench.scenario.
func (c Config) Scenario() (bench.Scenario, error) {
	s, ok := bench.Scenarios[c.Bench.Scenario]
	if !ok {
		return bench.Scenario{}, errors.InvalidInput(errors.PhaseConfig, "bench.scenario: unknown scenario "+c.Bench.Scenario)
	}
	return s, nil
}

// KeepKinds parses bench.keep.
func (c Config) KeepKinds() ([]backend.Kind, error) {
	out := make([]backend.Kind, 0, len(c.Bench.Keep))
	for _, name := range c.Bench.Keep {
		k, err := backend.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !k.Valid() {
			return nil, errors.InvalidInput(errors.PhaseConfig, "bench.keep: cannot keep bypass")
		}
		out = append(out, k)
	}
	return out, nil
}

// Logger builds the zap logger described by the log section.
func (c Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	zc.Level = level
	return zc.Build()
}
