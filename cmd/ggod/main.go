package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gpufleet/orchestrator/internal/log"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "ggod",
		Short: "ggo-daemon - per-machine GPU worker/service orchestrator",
		Long: `ggod derives, from WORKERS plus a service mapping plus a generated
process descriptor, the set of backend services and workers a machine must
run, brings them up with readiness gating, supervises them as child
processes, and publishes a unified live view onto Redis.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetVerbose(verbose)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
