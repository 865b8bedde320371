package main

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/engine"
)

func (a *app) renderCmd() *cobra.Command {
	var (
		engineName   string
		blocks       int
		playbackPath string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render blocks offline through the audio bridge and print levels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if engineName == "" {
				engineName = a.cfg.Engine.Active
			}
			kind, err := backend.ParseKind(engineName)
			if err != nil {
				return err
			}
			export, err := a.cfg.Export()
			if err != nil {
				return err
			}
			if playbackPath != "" {
				a.cfg.Audio.Playback = playbackPath
			}
			clip, err := a.playback()
			if err != nil {
				return err
			}
			images, err := a.images()
			if err != nil {
				return err
			}

			rack := engine.NewRack(a.backendConfig())
			defer rack.Close(context.Background())
			if kind.Valid() {
				if err := rack.Handle(kind).Load(cmd.Context(), images[kind], export); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s unavailable, rendering silence: %v\n", kind, err)
				}
			}
			if err := rack.SetActive(kind); err != nil {
				return err
			}

			src := bridge.NewSource(rack)
			defer src.Close()
			proc := bridge.NewProcessor(src)
			proc.ToneGain = a.cfg.Audio.ToneGain
			proc.PlaybackGain = a.cfg.Audio.PlaybackGain
			proc.SetPlayback(clip)

			out := make([][]float32, a.cfg.Audio.Channels)
			for ch := range out {
				out[ch] = make([]float32, a.cfg.Audio.BlockSize)
			}

			var (
				peak  float32
				sumSq float64
			)
			for b := 0; b < blocks; b++ {
				proc.Process(out, 0)
				lv := bridge.Measure(out)
				peak = max(peak, lv.Peak)
				sumSq += float64(lv.RMS) * float64(lv.RMS)
			}
			src.ReportTraps()

			rms := 0.0
			if blocks > 0 {
				rms = math.Sqrt(sumSq / float64(blocks))
			}
			st := src.Stats().Snapshot()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "engine %s, %d blocks of %d frames x %d channels\n",
				kind, blocks, a.cfg.Audio.BlockSize, a.cfg.Audio.Channels)
			fmt.Fprintf(w, "peak %.4f  rms %.4f\n", peak, rms)
			fmt.Fprintf(w, "calls %d  traps %d  setup errors %d  bypassed %d  source peak %.4f\n",
				st.Calls, st.Traps, st.SetupErrors, st.Bypassed, st.Peak)
			return nil
		},
	}
	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "aot, transpiled, interp or bypass (default engine.active)")
	cmd.Flags().IntVar(&blocks, "blocks", 100, "blocks to render")
	cmd.Flags().StringVar(&playbackPath, "playback", "", "WAV file looped under the tone (default audio.playback)")
	return cmd
}
