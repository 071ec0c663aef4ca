package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RezaEskandarii/tickqueue/app"
	"github.com/RezaEskandarii/tickqueue/internal/scheduler"
	"github.com/RezaEskandarii/tickqueue/ratelimit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the optional tick schedule and the queue writer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := openContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *app.Container) error {
	var sched *scheduler.Scheduler
	if spec := c.Config.TickSchedule; spec != "" {
		sched = scheduler.New(c.Logger)
		err := sched.Add("process-jobs", spec, func(ctx context.Context) {
			if _, err := c.TickDriver.Run(ctx, c.Config.MaxJobsPerTick); err != nil {
				c.Logger.Error("scheduled tick failed", slog.Any("error", err))
			}
		})
		if err != nil {
			return err
		}
	}

	var sweeper *ratelimit.Sweeper
	if c.MemoryCounter != nil {
		sweeper = ratelimit.NewSweeper(c.MemoryCounter, c.Logger)
		if err := sweeper.Start(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.RouteHandler.Serve(ctx, c.Config.HTTPAddr)
	})

	if sched != nil {
		g.Go(func() error { return sched.Run(ctx) })
	}

	if c.QueueWriter != nil {
		g.Go(func() error { return c.QueueWriter.Run(ctx) })
	}

	if sweeper != nil {
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sweeper.Stop(stopCtx)
		})
	}

	return g.Wait()
}
