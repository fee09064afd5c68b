// Package cmd implements the indexer command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/bootstrap"
)

// version can be set at build time via -ldflags.
var version = "dev"

// cfgFile holds the path to the configuration file.
var cfgFile string

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Backlink indexing campaign orchestrator",
		Long:          `Publishes WordPress posts that link to campaign backlinks, five backlinks per batch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $CONFIG_PATH or ./config.yml)")

	root.AddCommand(
		newServeCommand(),
		newAPICommand(),
		newWorkerCommand(),
		newProcessCommand(),
		newResetCommand(),
		newSweepCommand(),
		newDiagnoseCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// withApp builds the App for one command and closes it afterwards.
func withApp(cmd *cobra.Command, run func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := cmd.Context()
	app, err := bootstrap.New(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "indexer version %s\n", version)
		},
	}
}
