// Command wasmaudio benchmarks the wasm execution backends and drives a
// simulated audio callback with them.
//
//	wasmaudio bench [--corrupt-aot] [--scenario add]
//	wasmaudio precompile -o guest.cwasm
//	wasmaudio render --engine interp --blocks 100 --playback loop.wav
//	wasmaudio play -i
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	_ "github.com/wippyai/wasm-audio/backend/all"
	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/config"
	"github.com/wippyai/wasm-audio/engine"
)

type app struct {
	cfg        config.Config
	log        *zap.Logger
	clip       [][]float32
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "wasmaudio",
		Short:         "Swappable WebAssembly backends for a real-time sample source",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		a.benchCmd(),
		a.precompileCmd(),
		a.renderCmd(),
		a.playCmd(),
	)
	return root
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&a.logLevel, "log-level", "", "override log.level")
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log

	backend.SetLogger(log)
	engine.SetLogger(log)
	bridge.SetLogger(log)
	return nil
}

func (a *app) backendConfig() backend.Config {
	return a.cfg.Backend(a.log)
}
