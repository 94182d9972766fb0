package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaymesh/devicegate/internal/app"
	"github.com/relaymesh/devicegate/internal/config"
	"github.com/relaymesh/devicegate/internal/observability"
	"github.com/relaymesh/devicegate/internal/tools/common"
	"github.com/relaymesh/devicegate/internal/tools/loadgen"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "devicegate",
		Short: "Device authentication gateway for the relay broker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file loaded before configuration")
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newLoadgenCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, loggerProvider, err := observability.InitLogger(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := runtime.Shutdown(shutdownCtx); err != nil {
					logger.Error("observability shutdown failed", "error", err)
				}
			}()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Close(); err != nil {
					logger.Error("close app resources", "error", err)
				}
			}()
			return application.Run(ctx)
		},
	}
}

func newLoadgenCommand() *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive synthetic devices through the full authentication flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := loadgen.Run(ctx, cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "requests=%d failures=%d\n", result.TotalRequests, result.Failures)
			if err != nil {
				return err
			}
			if result.Failures > 0 {
				return fmt.Errorf("%d of %d requests failed", result.Failures, result.TotalRequests)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:50051", "gateway base URL")
	cmd.Flags().IntVar(&cfg.Devices, "devices", 10, "number of synthetic devices")
	cmd.Flags().IntVar(&cfg.SessionsPerDevice, "sessions-per-device", 1, "full flows per device")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent devices")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "per-request timeout")
	return cmd
}
