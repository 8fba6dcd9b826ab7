// Package telegram connects the session engine to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"tastebalance"
	"tastebalance/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxPhotoBytes = 20 << 20

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Handler is the engine surface the bot drives.
type Handler interface {
	OnPhoto(ctx context.Context, userID int64, fetch session.PhotoFetcher)
	OnText(ctx context.Context, userID int64, text string)
	OnButton(ctx context.Context, userID int64, action string)
}

var commands = map[string]string{
	"start":   session.ActionStart,
	"help":    session.ActionHelp,
	"stats":   session.ActionStats,
	"history": session.ActionHistory,
	"premium": session.ActionPremium,
	"manual":  session.ActionManual,
}

// Messenger sends engine replies as chat messages with inline keyboards.
type Messenger struct {
	bot botAPI
}

func NewMessenger(bot botAPI) *Messenger {
	return &Messenger{bot: bot}
}

func (m *Messenger) Send(ctx context.Context, userID int64, r session.Reply) error {
	msg := tgbotapi.NewMessage(userID, r.Text)
	if len(r.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(r.Buttons)
	}
	if _, err := m.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func keyboard(buttons [][]session.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		rows = append(rows, r)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// OperatorSink forwards user feedback to the operators' chat.
type OperatorSink struct {
	bot    botAPI
	chatID int64
}

func NewOperatorSink(bot botAPI, chatID int64) *OperatorSink {
	return &OperatorSink{bot: bot, chatID: chatID}
}

func (s *OperatorSink) Forward(ctx context.Context, fb session.Feedback) error {
	if s.chatID == 0 {
		return fmt.Errorf("operator chat is not configured")
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, fb.Format())); err != nil {
		return fmt.Errorf("forward to operators: %w", err)
	}
	return nil
}

type Bot struct {
	api        botAPI
	handler    Handler
	httpClient tastebalance.HTTPClient
	wg         sync.WaitGroup
}

func NewBot(api botAPI, handler Handler, httpClient tastebalance.HTTPClient) *Bot {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bot{api: api, handler: handler, httpClient: httpClient}
}

// Run dispatches updates until the channel closes or ctx is done, then waits for
// in-flight handlers. Each update runs on its own goroutine; the engine serializes
// events of the same user.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			slog.Info("TELEGRAM: Stopping update loop")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handle(ctx, u)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("TELEGRAM: Handler panicked", "update_id", u.UpdateID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		slog.Warn("TELEGRAM: Failed to answer callback", "error", err)
	}
	if q.From == nil {
		return
	}
	b.handler.OnButton(ctx, q.From.ID, q.Data)
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return
	}
	userID := m.From.ID

	switch {
	case len(m.Photo) > 0:
		// sizes are ascending, the last one is the original
		fileID := m.Photo[len(m.Photo)-1].FileID
		b.handler.OnPhoto(ctx, userID, b.fetcher(fileID))
	case m.IsCommand():
		action, ok := commands[m.Command()]
		if !ok {
			b.handler.OnText(ctx, userID, m.Text)
			return
		}
		b.handler.OnButton(ctx, userID, action)
	default:
		b.handler.OnText(ctx, userID, m.Text)
	}
}

func (b *Bot) fetcher(fileID string) session.PhotoFetcher {
	return func(ctx context.Context) ([]byte, error) {
		url, err := b.api.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("resolve file: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download photo: %s", resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
		if err != nil {
			return nil, fmt.Errorf("read photo: %w", err)
		}
		return data, nil
	}
}

// Login authenticates with the Bot API.
func Login(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	slog.Info("TELEGRAM: Authorized", "bot", api.Self.UserName)
	return api, nil
}

// Poll starts long polling. Only one poller per token may run at a time.
func Poll(api *tgbotapi.BotAPI) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	return api.GetUpdatesChan(cfg)
}
