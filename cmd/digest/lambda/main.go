package main

import (
	"context"
	"fmt"
	"log/slog"

	"tastebalance"
	"tastebalance/digest"
	"tastebalance/internal/app"
	"tastebalance/session"
	"tastebalance/transport/telegram"

	"github.com/aws/aws-lambda-go/lambda"
)

type Params struct {
	// DryRun counts recipients without sending anything.
	DryRun bool `json:"dry_run"`
}

type Results struct {
	Output digest.Result `json:"output"`
}

type nopMessenger struct{}

func (nopMessenger) Send(context.Context, int64, session.Reply) error { return nil }

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		cfg, err := tastebalance.LoadConfig()
		if err != nil {
			return Results{}, fmt.Errorf("failed to load config: %w", err)
		}

		shutdown, err := tastebalance.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		a, err := app.Open(cfg)
		if err != nil {
			slog.Error("SETUP: Failed to open storage", "error", err)
			return Results{}, err
		}
		defer a.Close()

		var msgr session.Messenger = nopMessenger{}
		if !params.DryRun {
			api, err := telegram.Login(cfg.Bot.TelegramToken)
			if err != nil {
				return Results{}, err
			}
			msgr = telegram.NewMessenger(api)
		}

		res, err := digest.New(a.Store, a.Gate, msgr).Run(ctx)
		if err != nil {
			slog.Error("RESULT: Digest finished with errors", "error", err)
		}
		return Results{Output: res}, err
	}

	lambda.Start(fn)
}
