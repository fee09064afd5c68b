package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/bootstrap"
)

type components struct {
	api     bool
	worker  bool
	sweeper bool
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API plus the worker and sweeper when enabled in config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return run(ctx, app, components{
					api:     true,
					worker:  app.Config.Worker.Enabled,
					sweeper: app.Config.Sweeper.Enabled,
				})
			})
		},
	}
}

func newAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Run only the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return run(ctx, app, components{api: true})
			})
		},
	}
}

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the campaign worker and stuck sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return run(ctx, app, components{worker: true, sweeper: true})
			})
		},
	}
}

// run blocks until ctx is cancelled or the HTTP server fails.
func run(ctx context.Context, app *bootstrap.App, c components) error {
	log := app.Logger
	log.Info("Starting backlink indexer",
		infralogger.String("version", app.Config.Service.Version),
		infralogger.Bool("api", c.api),
		infralogger.Bool("worker", c.worker),
		infralogger.Bool("sweeper", c.sweeper),
	)

	g, gctx := errgroup.WithContext(ctx)

	if c.api {
		server := app.SetupHTTPServer()
		g.Go(func() error { return server.Run(gctx) })
	}

	if c.worker {
		w := app.NewWorker()
		w.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	if c.sweeper {
		sweeper, err := app.NewSweeper()
		if err != nil {
			return fmt.Errorf("sweeper: %w", err)
		}
		sweeper.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			sweeper.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("Backlink indexer stopped with error", infralogger.Error(err))
		return err
	}
	log.Info("Backlink indexer stopped")
	return nil
}
