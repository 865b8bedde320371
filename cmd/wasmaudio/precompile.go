package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-audio/backend/aot"
	"github.com/wippyai/wasm-audio/guest"
)

func (a *app) precompileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "precompile",
		Short: "Write the AOT image of the built-in guest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			image, err := aot.Precompile(guest.Module(), a.backendConfig())
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, image, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes (%s)\n", output, len(image), aot.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "guest.aot", "output file")
	return cmd
}
