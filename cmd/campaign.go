package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
)

func newProcessCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "process <campaign-id>",
		Short: "Publish one batch of a campaign",
		Long: `Runs one batch of up to five backlinks. With --all it keeps running
batches until the campaign has nothing left or a batch fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				for {
					result, err := app.Orchestrator.ProcessBatch(ctx, args[0])
					if err != nil {
						oe := orchestrator.AsError(err)
						return fmt.Errorf("%s: %s", oe.Kind, oe.UserMessage())
					}
					if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
						return printErr
					}
					if !all || result.Remaining == 0 || result.Status == domain.CampaignCompleted {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "keep processing batches until the campaign completes")
	return cmd
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <campaign-id>",
		Short: "Queue a campaign and return its in-flight backlinks to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Orchestrator.ResetCampaign(ctx, args[0]); err != nil {
					return fmt.Errorf("reset campaign: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s reset\n", args[0])
				return nil
			})
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reset running campaigns whose lease has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				reset, err := app.Orchestrator.SweepStuck(ctx)
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				if reset == nil {
					reset = []string{}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"reset": reset, "count": len(reset)})
			})
		},
	}
}

func newDiagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose [campaign-id]",
		Short: "Report backlink states and lease health",
		Long:  `Without an id, reports every queued or running campaign.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if len(args) == 1 {
					diagnosis, err := app.Orchestrator.Diagnose(ctx, args[0])
					if err != nil {
						return fmt.Errorf("diagnose: %w", err)
					}
					return printJSON(cmd.OutOrStdout(), diagnosis)
				}
				diagnoses, err := app.Orchestrator.DiagnoseAll(ctx)
				if err != nil {
					return fmt.Errorf("diagnose: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), diagnoses)
			})
		},
	}
}
