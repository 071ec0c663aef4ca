package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/spf13/cobra"
)

func tickCmd() *cobra.Command {
	var maxJobs int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Process one bounded batch of due jobs and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if !cmd.Flags().Changed("max-jobs") {
				maxJobs = c.Config.MaxJobsPerTick
			}
			res, err := c.TickDriver.Run(cmd.Context(), maxJobs)
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Upper bound on jobs claimed in this tick (defaults to MAX_JOBS_PER_TICK)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the job table schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the container applies migrations.
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			c.Logger.Info("schema is up to date", slog.String("driver", c.Config.StorageDriver.String()))
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	var (
		priority    int
		maxAttempts int
		createdBy   string
		viaQueue    bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue <type> <payload-json>",
		Short: "Enqueue a job of a registered type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			req := types.EnqueueRequest{
				Type:        args[0],
				Payload:     json.RawMessage(args[1]),
				Priority:    priority,
				MaxAttempts: maxAttempts,
				CreatedBy:   createdBy,
			}

			if viaQueue {
				if c.QueueWriter == nil {
					return errors.New("queue writer is not configured, set RABBITMQ_URL and RABBITMQ_QUEUE")
				}
				if err := c.QueueWriter.Publish(cmd.Context(), req); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "published")
				return nil
			}

			id, err := c.Manager.EnqueueRaw(cmd.Context(), req.Type, req.Payload, req.Options())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "Higher runs first")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempts before the job is dead-lettered (default 3)")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "Originator recorded on the job")
	cmd.Flags().BoolVar(&viaQueue, "via-queue", false, "Publish through the message broker instead of writing directly")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			job, err := c.Manager.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job.View())
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Manager.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.Manager.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
