package backend

import "go.uber.org/zap"

// Config is passed to every backend factory.
type Config struct {
	Logger *zap.Logger
	AOT    AOTConfig
	Arena  ArenaConfig
	Interp InterpConfig
}

// AOTConfig tunes the precompiling runtime.
type AOTConfig struct {
	// OptLevel is one of "none", "speed", "speed_and_size".
	OptLevel string `koanf:"opt_level"`
}

// InterpConfig tunes the interpreter.
type InterpConfig struct {
	// Validate runs a structural decode of the image before compiling.
	Validate bool `koanf:"validate"`
}

// DefaultConfig returns the arena defaults, speed-optimized AOT and validation on.
func DefaultConfig() Config {
	return Config{
		Arena:  DefaultArenaConfig(),
		AOT:    AOTConfig{OptLevel: "speed"},
		Interp: InterpConfig{Validate: true},
	}
}

// Log returns the configured logger or the package logger.
func (c Config) Log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return Logger()
}
