// Package cli defines the tastebalance command tree.
package cli

import (
	"context"
	"log/slog"

	"tastebalance"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tastebalance",
		Short: "Chat bot that estimates the nutrition of meals from photos and descriptions",
		Long: `TasteBalance turns a meal photo or a short description into an ingredient list
with calories, protein, fat and carbs, lets premium users correct it, and keeps
a daily ledger of saved meals.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd(), newConsoleCmd(), newDigestCmd())

	return cmd
}

func loadConfig() (tastebalance.Config, error) {
	cfg, err := tastebalance.LoadConfig()
	if err != nil {
		slog.Error("SETUP: Failed to load configuration", "error", err)
	}
	return cfg, err
}

// withOtel initializes telemetry and returns a shutdown func that logs failures.
func withOtel(ctx context.Context) (func(), error) {
	shutdown, err := tastebalance.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return nil, err
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}, nil
}
