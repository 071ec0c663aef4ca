package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/RezaEskandarii/tickqueue/app"
	"github.com/RezaEskandarii/tickqueue/types/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tickqueue",
		Short:        "Persistent job queue drained by bounded ticks",
		SilenceUsage: true,
	}

	root.AddCommand(
		serveCmd(),
		tickCmd(),
		migrateCmd(),
		enqueueCmd(),
		statusCmd(),
		cancelCmd(),
		statsCmd(),
	)
	return root
}

// openContainer loads configuration from the environment and wires the app.
func openContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.NewContainer(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
