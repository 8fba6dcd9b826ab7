package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"tastebalance/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	fileURL  string
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}

func (m *mockBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockBot) GetFileDirectURL(fileID string) (string, error) {
	return m.fileURL + fileID, nil
}

type event struct {
	kind   string
	userID int64
	value  string
}

type mockHandler struct {
	mu     sync.Mutex
	events []event
	photos [][]byte
	panics bool
}

func (h *mockHandler) record(e event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *mockHandler) OnPhoto(ctx context.Context, userID int64, fetch session.PhotoFetcher) {
	data, err := fetch(ctx)
	if err != nil {
		h.record(event{kind: "photo_error", userID: userID, value: err.Error()})
		return
	}
	h.mu.Lock()
	h.photos = append(h.photos, data)
	h.mu.Unlock()
	h.record(event{kind: "photo", userID: userID})
}

func (h *mockHandler) OnText(ctx context.Context, userID int64, text string) {
	if h.panics {
		panic("boom")
	}
	h.record(event{kind: "text", userID: userID, value: text})
}

func (h *mockHandler) OnButton(ctx context.Context, userID int64, action string) {
	h.record(event{kind: "button", userID: userID, value: action})
}

type mockHTTP struct {
	url    string
	status int
	body   string
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) {
	m.url = req.URL.String()
	return &http.Response{
		StatusCode: m.status,
		Status:     http.StatusText(m.status),
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func privateMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
		Text: text,
	}
}

func command(userID int64, text string) *tgbotapi.Message {
	m := privateMessage(userID, text)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	return m
}

func TestMessenger_Send(t *testing.T) {
	bot := &mockBot{}
	m := NewMessenger(bot)

	err := m.Send(context.Background(), 5, session.Reply{
		Text:    "hello",
		Buttons: [][]session.Button{{{Label: "Save", Action: session.ActionSaveMeal}}},
	})
	must.NoError(t, err)
	must.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	must.True(t, ok)
	should.Equal(t, int64(5), msg.ChatID)
	should.Equal(t, "hello", msg.Text)

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	must.True(t, ok)
	must.Len(t, markup.InlineKeyboard, 1)
	should.Equal(t, "Save", markup.InlineKeyboard[0][0].Text)
	should.Equal(t, session.ActionSaveMeal, *markup.InlineKeyboard[0][0].CallbackData)
}

func TestMessenger_SendError(t *testing.T) {
	m := NewMessenger(&mockBot{sendErr: errors.New("blocked")})
	err := m.Send(context.Background(), 5, session.Reply{Text: "hi"})
	should.ErrorContains(t, err, "blocked")
}

func TestOperatorSink(t *testing.T) {
	bot := &mockBot{}
	sink := NewOperatorSink(bot, -100)

	err := sink.Forward(context.Background(), session.Feedback{UserID: 3, Kind: session.FeedbackKindFeedback, Text: "nice"})
	must.NoError(t, err)
	must.Len(t, bot.sent, 1)
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	should.Equal(t, int64(-100), msg.ChatID)
	should.Equal(t, "Feedback from user 3:\nnice", msg.Text)

	should.Error(t, NewOperatorSink(bot, 0).Forward(context.Background(), session.Feedback{}))
}

func TestBot_Dispatch(t *testing.T) {
	group := privateMessage(9, "hi")
	group.Chat.Type = "group"

	tests := []struct {
		name   string
		update tgbotapi.Update
		want   []event
	}{
		{
			name:   "text",
			update: tgbotapi.Update{Message: privateMessage(1, "2 eggs")},
			want:   []event{{kind: "text", userID: 1, value: "2 eggs"}},
		},
		{
			name:   "known command",
			update: tgbotapi.Update{Message: command(1, "/stats")},
			want:   []event{{kind: "button", userID: 1, value: session.ActionStats}},
		},
		{
			name:   "unknown command is text",
			update: tgbotapi.Update{Message: command(1, "/letmein")},
			want:   []event{{kind: "text", userID: 1, value: "/letmein"}},
		},
		{
			name: "callback",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
				ID:   "cb1",
				From: &tgbotapi.User{ID: 2},
				Data: "edit_item:1",
			}},
			want: []event{{kind: "button", userID: 2, value: "edit_item:1"}},
		},
		{
			name:   "group chat ignored",
			update: tgbotapi.Update{Message: group},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &mockHandler{}
			bot := NewBot(&mockBot{}, h, &mockHTTP{status: http.StatusOK})
			bot.handle(context.Background(), tt.update)
			should.Equal(t, tt.want, h.events)
		})
	}
}

func TestBot_PhotoDownloadsLargestSize(t *testing.T) {
	api := &mockBot{fileURL: "https://files/"}
	hc := &mockHTTP{status: http.StatusOK, body: "jpeg"}
	h := &mockHandler{}
	bot := NewBot(api, h, hc)

	msg := privateMessage(4, "")
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	bot.handle(context.Background(), tgbotapi.Update{Message: msg})

	should.Equal(t, "https://files/large", hc.url)
	must.Len(t, h.photos, 1)
	should.Equal(t, []byte("jpeg"), h.photos[0])
}

func TestBot_PhotoDownloadFailure(t *testing.T) {
	h := &mockHandler{}
	bot := NewBot(&mockBot{}, h, &mockHTTP{status: http.StatusNotFound})

	msg := privateMessage(4, "")
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "x"}}
	bot.handle(context.Background(), tgbotapi.Update{Message: msg})

	must.Len(t, h.events, 1)
	should.Equal(t, "photo_error", h.events[0].kind)
}

func TestBot_RunRecoversAndDrains(t *testing.T) {
	h := &mockHandler{panics: true}
	bot := NewBot(&mockBot{}, h, nil)

	updates := make(chan tgbotapi.Update, 2)
	updates <- tgbotapi.Update{Message: privateMessage(1, "boom")}
	updates <- tgbotapi.Update{Message: command(1, "/help")}
	close(updates)

	bot.Run(context.Background(), updates)

	should.Equal(t, []event{{kind: "button", userID: 1, value: session.ActionHelp}}, h.events)
}
