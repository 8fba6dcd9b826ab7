package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tastebalance"
	"tastebalance/session"
	"tastebalance/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) tastebalance.Config {
	t.Helper()
	dir := t.TempDir()
	return tastebalance.Config{
		Bot: tastebalance.BotConfig{
			Timezone:         "UTC",
			FreePhotosPerDay: 2,
			SessionTTL:       time.Hour,
		},
		Model: tastebalance.ModelConfig{Estimator: BackendMock},
		Storage: tastebalance.StorageConfig{
			DBPath:          filepath.Join(dir, "data", "bot.db"),
			PhotoArchiveDir: filepath.Join(dir, "photos"),
			EstimationLog:   "none",
		},
	}
}

type replies struct {
	mu   sync.Mutex
	text []string
}

func (r *replies) Send(ctx context.Context, userID int64, reply session.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = append(r.text, reply.Text)
	return nil
}

type discard struct{}

func (discard) Forward(ctx context.Context, fb session.Feedback) error { return nil }

func TestNew_MockBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &storage.FilePhotoArchive{}, a.Archive)

	msgr := &replies{}
	engine := a.Engine(msgr, discard{})
	engine.OnPhoto(ctx, 7, func(context.Context) ([]byte, error) { return []byte("jpeg"), nil })

	require.NotEmpty(t, msgr.text)
	assert.Contains(t, msgr.text[len(msgr.text)-1], "Total: 490 kcal")

	acc, err := a.Gate.Account(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, acc.PhotosToday)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*tastebalance.Config)
	}{
		{name: "unknown estimator", mutate: func(c *tastebalance.Config) { c.Model.Estimator = "oracle" }},
		{name: "unknown estimation log", mutate: func(c *tastebalance.Config) { c.Storage.EstimationLog = "syslog" }},
		{name: "bad timezone", mutate: func(c *tastebalance.Config) { c.Bot.Timezone = "Mars/Olympus" }},
		{name: "ollama without endpoint", mutate: func(c *tastebalance.Config) {
			c.Model.Estimator = BackendOllama
			c.Model.BaseOllamaEndpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestOpen_NoArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.PhotoArchiveDir = ""

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Archive)
}
