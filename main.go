package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "spheretrace",
		Short:         "spheretrace - 2D sphere tracing through signed distance fields",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file (env SPHERETRACE_* overrides)")
	root.AddCommand(newTraceCommand(opts), newRenderCommand(opts), newServeCommand(opts))
	return root
}
