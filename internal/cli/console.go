package cli

import (
	"log/slog"
	"os"

	"tastebalance/internal/app"
	"tastebalance/transport/console"

	"github.com/spf13/cobra"
)

func newConsoleCmd() *cobra.Command {
	var (
		userID  int64
		backend string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the bot from the terminal",
		Long: `Runs the same conversation engine as the Telegram bot against stdin and stdout.

Photos are read from disk with /photo, buttons are pressed with /button.`,
		Example: `  # Try the flow with canned estimates
  tastebalance console --estimator mock

  # Use the configured estimator as user 1001
  tastebalance console --user 1001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.Model.Estimator = backend
			}

			shutdown, err := withOtel(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			a, err := app.New(ctx, cfg)
			if err != nil {
				slog.Error("SETUP: Failed to build application", "error", err)
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			engine := a.Engine(console.NewMessenger(out), console.FeedbackPrinter{W: out})
			return console.NewREPL(engine, userID, os.Stdin, out).Run(ctx)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 1, "User id to act as")
	cmd.Flags().StringVar(&backend, "estimator", "", "Override ESTIMATOR (gemini, bedrock, ollama, mock)")

	return cmd
}
