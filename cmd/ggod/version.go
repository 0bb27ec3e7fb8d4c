package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version, Commit and BuildDate are set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionJSON bool

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print ggod version and build metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_date": BuildDate,
				"go_version": runtime.Version(),
				"platform":   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			}
			if versionJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Printf("ggod version %s\n", Version)
			fmt.Printf("commit: %s\n", Commit)
			fmt.Printf("build date: %s\n", BuildDate)
			fmt.Printf("go version: %s\n", info["go_version"])
			fmt.Printf("platform: %s\n", info["platform"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
	return cmd
}
