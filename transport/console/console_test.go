package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tastebalance"
	"tastebalance/estimator/mock"
	"tastebalance/gate"
	"tastebalance/session"
	"tastebalance/storage"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

func newREPL(input string) (*REPL, *bytes.Buffer, *storage.MemoryStore) {
	out := &bytes.Buffer{}
	store := storage.NewMemoryStore()
	until := time.Now().Add(time.Hour)
	store.PutAccount(tastebalance.Account{UserID: 1, IsPremium: true, PremiumUntil: &until})

	engine := session.NewEngine(session.EngineOpts{
		Store:         session.NewStore(time.Hour),
		Gate:          gate.New(store, store),
		Estimator:     mock.NewEstimator(),
		Messenger:     NewMessenger(out),
		Feedback:      FeedbackPrinter{W: out},
		RetryInterval: time.Millisecond,
	})
	r := NewREPL(engine, 1, strings.NewReader(input), out)
	r.read = func(path string) ([]byte, error) {
		if path == "missing.jpg" {
			return nil, errors.New("no such file")
		}
		return []byte("photo"), nil
	}
	return r, out, store
}

func TestREPL_CaptureAndSave(t *testing.T) {
	r, out, store := newREPL("/photo lunch.jpg\n/button save_meal_to_stats\n/quit\n/stats\n")

	must.NoError(t, r.Run(context.Background()))

	should.Contains(t, out.String(), "Total: 490 kcal")
	should.Contains(t, out.String(), "[✅ Save → save_meal_to_stats]")
	should.Len(t, store.Meals(), 1)
	// nothing after /quit runs
	should.NotContains(t, out.String(), "📊 Today:")
}

func TestREPL_Dump(t *testing.T) {
	r, out, _ := newREPL("/dump\n/photo lunch.jpg\n/dump\n")

	must.NoError(t, r.Run(context.Background()))

	should.Contains(t, out.String(), "no session")
	should.Contains(t, out.String(), "chicken")
	should.Contains(t, out.String(), "EditingIndex: (int) -1")
}

func TestREPL_MissingPhoto(t *testing.T) {
	r, out, _ := newREPL("/photo missing.jpg\n/photo\n")

	must.NoError(t, r.Run(context.Background()))

	should.Contains(t, out.String(), "could not download the photo")
	should.Contains(t, out.String(), "usage: /photo <path>")
}

func TestREPL_TextAndCommands(t *testing.T) {
	r, out, _ := newREPL("/feedback\nplease add recipes\n/history\n")

	must.NoError(t, r.Run(context.Background()))

	should.Contains(t, out.String(), "[operators] Feedback from user 1:\nplease add recipes")
	should.Contains(t, out.String(), "No meals saved in the last 7 days.")
}
