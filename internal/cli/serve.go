package cli

import (
	"errors"
	"log/slog"
	"net/http"

	"tastebalance/digest"
	"tastebalance/internal/app"
	"tastebalance/session"
	"tastebalance/slack"
	"tastebalance/transport/telegram"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var noDigest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Connects to Telegram with long polling and serves users until interrupted.

Unless disabled, the evening digest for premium users is sent every day at DIGEST_HOUR.`,
		Example: `  # Serve with the Gemini estimator configured in .env
  tastebalance serve

  # Serve without the evening digest
  tastebalance serve --no-digest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Bot.TelegramToken == "" {
				return errors.New("TELEGRAM_TOKEN is not set")
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
			defer func() {
				if err := a.Close(); err != nil {
					slog.Error("SETUP: Failed to close application", "error", err)
				}
			}()

			api, err := telegram.Login(cfg.Bot.TelegramToken)
			if err != nil {
				return err
			}
			updates := telegram.Poll(api)
			defer api.StopReceivingUpdates()

			msgr := telegram.NewMessenger(api)

			var sink session.FeedbackSink = telegram.NewOperatorSink(api, cfg.Bot.OperatorChatID)
			if cfg.Bot.SlackWebhookURL != "" {
				sink = slack.NewClient(cfg.Bot.SlackWebhookURL, cfg.Bot.SlackChannel, http.DefaultClient)
			}

			engine := a.Engine(msgr, sink)
			go engine.Store().RunJanitor(ctx)

			if !noDigest {
				go digest.New(a.Store, a.Gate, msgr).Schedule(ctx, cfg.Bot.DigestHour)
			}

			slog.Info("SERVE: Bot is running", "estimator", cfg.Model.Estimator)
			telegram.NewBot(api, engine, http.DefaultClient).Run(ctx, updates)
			slog.Info("SERVE: Bot stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDigest, "no-digest", false, "Do not send the daily digest")

	return cmd
}
