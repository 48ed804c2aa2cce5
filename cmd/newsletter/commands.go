package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"NewsletterWorkflow/internal/app"
	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/logging"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trigger API and the subscription scheduler",
		Long: `Start the HTTP trigger API and the interval scheduler.

Runs until SIGINT or SIGTERM; in-flight runs stop at their next step boundary
and resume on the next trigger with the same id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		email      string
		categories []string
		id         string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one newsletter run synchronously",
		Long: `Execute one newsletter run and print its result.

Passing the same --id again resumes the run instead of starting a new one.

Examples:
  newsletter run --email reader@example.com --category tech --category ai
  newsletter run --email reader@example.com --category tech --id weekly-2026-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Trigger(ctx, domain.TriggerEvent{
				ID:         id,
				Categories: categories,
				Recipient:  email,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s\n", result.RunID, result.Status)
			for _, rec := range result.Steps {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-9s %-9s attempt %d %s\n", rec.Step, rec.Status, rec.Attempt, rec.Error)
			}
			if result.Status != domain.RunCompleted {
				return fmt.Errorf("run %s failed: %w", result.RunID, result.Err)
			}
			if result.Artifact != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "delivered: %s via %s\n", result.Artifact.Receipt.MessageID, result.Artifact.Receipt.Provider)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "recipient address")
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "interest category (repeatable)")
	cmd.Flags().StringVar(&id, "id", "", "idempotency key; reuse it to resume a run")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a stored run and its step records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			ctx := context.Background()

			application, err := app.Inspect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			run, found, err := application.Status(ctx, args[0])
			if err != nil {
				return err
			}
			if !found {
				return errors.New("run not found")
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Run:        %s\n", run.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Status:     %s\n", run.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Recipient:  %s\n", run.Recipient)
			fmt.Fprintf(cmd.OutOrStdout(), "Categories: %s\n", run.Event().Label())
			if run.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Error:      %s\n", run.Error)
			}
			for _, rec := range run.Steps {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-9s %-9s attempt %d %s\n", rec.Step, rec.Status, rec.Attempt, rec.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}
