package tastebalance

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

type BotConfig struct {
	TelegramToken    string        `env:"TELEGRAM_TOKEN"`
	OperatorChatID   int64         `env:"OPERATOR_CHAT_ID,default=0"`
	SlackWebhookURL  string        `env:"SLACK_WEBHOOK_URL"`
	SlackChannel     string        `env:"SLACK_CHANNEL,default=#feedback"`
	AdminPremiumCode string        `env:"ADMIN_PREMIUM_CODE"`
	Timezone         string        `env:"TIMEZONE,default=Local"`
	FreePhotosPerDay int           `env:"FREE_PHOTOS_PER_DAY,default=2"`
	SessionTTL       time.Duration `env:"SESSION_TTL,default=6h"`
	DigestHour       int           `env:"DIGEST_HOUR,default=21"`
}

type ModelConfig struct {
	Estimator          string  `env:"ESTIMATOR,default=gemini"`
	PremiumModelID     string  `env:"PREMIUM_MODEL_ID"`
	LiteModelID        string  `env:"LITE_MODEL_ID"`
	MaxTokens          int32   `env:"MAX_TOKENS,default=1024"`
	Temperature        float32 `env:"TEMPERATURE,default=0.2"`
	TopP               float32 `env:"TOP_P,default=0.9"`
	GeminiAPIKey       string  `env:"GEMINI_API_KEY"`
	BaseOllamaEndpoint string  `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
}

type StorageConfig struct {
	DBPath               string `env:"DB_PATH,default=tastebalance.db"`
	PhotoArchiveDir      string `env:"PHOTO_ARCHIVE_DIR"`
	PhotoArchiveS3Bucket string `env:"PHOTO_ARCHIVE_S3_BUCKET"`
	PhotoArchiveS3Prefix string `env:"PHOTO_ARCHIVE_S3_PREFIX,default=photos"`
	EstimationLog        string `env:"ESTIMATION_LOG,default=none"`
}

// Config groups every environment-driven setting of the bot.
type Config struct {
	Bot     BotConfig
	Model   ModelConfig
	Storage StorageConfig
}

// LoadConfig decodes all config sections from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg.Bot); err != nil {
		return Config{}, fmt.Errorf("decode bot config: %w", err)
	}
	if err := envdecode.Decode(&cfg.Model); err != nil {
		return Config{}, fmt.Errorf("decode model config: %w", err)
	}
	if err := envdecode.Decode(&cfg.Storage); err != nil {
		return Config{}, fmt.Errorf("decode storage config: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured timezone used for daily quota rollover and ledger dates.
func (c BotConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
