package cli

import (
	"errors"
	"log/slog"

	"tastebalance/digest"
	"tastebalance/internal/app"
	"tastebalance/session"
	"tastebalance/transport/console"
	"tastebalance/transport/telegram"

	"github.com/spf13/cobra"
)

func newDigestCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send today's digest to premium users once",
		Example: `  # Print the digest instead of sending it
  tastebalance digest --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := app.Open(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var msgr session.Messenger = console.NewMessenger(cmd.OutOrStdout())
			if !dryRun {
				if cfg.Bot.TelegramToken == "" {
					return errors.New("TELEGRAM_TOKEN is not set")
				}
				api, err := telegram.Login(cfg.Bot.TelegramToken)
				if err != nil {
					return err
				}
				msgr = telegram.NewMessenger(api)
			}

			res, err := digest.New(a.Store, a.Gate, msgr).Run(ctx)
			slog.Info("DIGEST: Finished", "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print messages to stdout instead of sending them")

	return cmd
}
