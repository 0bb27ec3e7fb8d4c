package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var statusAddr string

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the running daemon's /status JSON",
		Long: `status is a thin wrapper around the admin HTTP surface's /status
endpoint, for operators without network access to the admin port's host.`,
		RunE: printStatus,
	}

	cmd.Flags().StringVar(&statusAddr, "addr", "", "admin address to query (defaults to GGOD_ADMIN_ADDR or :9090)")
	return cmd
}

func printStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		addr = os.Getenv("GGOD_ADMIN_ADDR")
	}
	if addr == "" {
		addr = ":9090"
	}

	client := resty.New().SetTimeout(5 * time.Second)
	resp, err := client.R().Get(fmt.Sprintf("http://localhost%s/status", addr))
	if err != nil {
		return fmt.Errorf("querying admin surface: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("admin surface returned %d: %s", resp.StatusCode(), resp.String())
	}

	var pretty map[string]any
	if err := json.Unmarshal(resp.Body(), &pretty); err != nil {
		return fmt.Errorf("decoding status response: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
