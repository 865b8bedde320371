package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/bench"
	"github.com/wippyai/wasm-audio/engine"
)

func (a *app) benchCmd() *cobra.Command {
	var (
		corruptAOT bool
		scenario   string
		iterations int
		plain      bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure load, first call and steady state on every backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("scenario") {
				a.cfg.Bench.Scenario = scenario
			}
			if cmd.Flags().Changed("iterations") {
				a.cfg.Bench.Iterations = iterations
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			images, err := a.images()
			if err != nil {
				return err
			}
			if corruptAOT {
				images[backend.AOT] = images[backend.AOT][:0]
			}

			rep, err := a.runBench(ctx, engine.NewRack(a.backendConfig()), images, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !plain && isTerminal(out) {
				_, err = fmt.Fprintln(out, rep.Table())
				return err
			}
			return rep.WriteText(out)
		},
	}
	cmd.Flags().BoolVar(&corruptAOT, "corrupt-aot", false, "truncate the AOT image to zero bytes")
	cmd.Flags().StringVar(&scenario, "scenario", bench.SampleScenario.Name, "sample, add or block")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", bench.DefaultIterations, "steady-state calls per backend")
	cmd.Flags().BoolVar(&plain, "plain", false, "plain text output even on a terminal")
	return cmd
}

// runBench runs the configured harness against rack. Backends in keep stay
// loaded; without keep the rack is closed afterwards.
func (a *app) runBench(ctx context.Context, rack *engine.Rack, images bench.Images, keep []backend.Kind) (*bench.Report, error) {
	sc, err := a.cfg.Scenario()
	if err != nil {
		return nil, err
	}
	h := bench.New(rack, bench.Config{
		Scenario:   sc,
		Iterations: a.cfg.Bench.Iterations,
		Keep:       keep,
		Logger:     a.log,
	})
	rep, err := h.Run(ctx, images)
	if keep == nil {
		_ = rack.Close(context.Background())
	}
	return rep, err
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
