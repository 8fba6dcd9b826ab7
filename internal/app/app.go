// Package app assembles the bot's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"tastebalance"
	"tastebalance/estimator"
	"tastebalance/estimator/bedrock"
	"tastebalance/estimator/gemini"
	"tastebalance/estimator/mock"
	"tastebalance/estimator/ollama"
	"tastebalance/gate"
	"tastebalance/session"
	"tastebalance/storage"
	"tastebalance/storage/sqlite"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
)

const (
	BackendGemini  = "gemini"
	BackendBedrock = "bedrock"
	BackendOllama  = "ollama"
	BackendMock    = "mock"
)

// App holds the long-lived components shared by every transport.
type App struct {
	Config    tastebalance.Config
	Store     *sqlite.Store
	Gate      *gate.Gate
	Estimator tastebalance.Estimator
	Archive   session.PhotoArchive

	closers []func() error
}

// Open builds the storage layer and gate only. Enough for the digest.
func Open(cfg tastebalance.Config) (*App, error) {
	loc, err := cfg.Bot.Location()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("SETUP: Database opened", "path", cfg.Storage.DBPath)

	a := &App{
		Config:  cfg,
		Store:   store,
		Gate:    gate.New(store, store, gate.WithLocation(loc), gate.WithFreePhotos(cfg.Bot.FreePhotosPerDay)),
		closers: []func() error{store.Close},
	}
	return a, nil
}

// New builds everything the engine needs, including the estimator chain and photo archive.
func New(ctx context.Context, cfg tastebalance.Config) (*App, error) {
	a, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := a.newBackend(ctx)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	logger, err := a.newEstimationLogger()
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	// logging sits innermost so every attempt is recorded; the cache only sees final answers
	var est tastebalance.Estimator = estimator.NewLogged(backend, logger)
	est = estimator.NewRetrying(est)
	est = estimator.NewCached(est, a.Store)
	a.Estimator = estimator.NewInstrumented(est,
		otel.Tracer(tastebalance.TracerNameEstimator),
		otel.Meter(tastebalance.MeterName))

	if err := a.newArchive(ctx); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

// Engine wires the session engine to the given transport.
func (a *App) Engine(msgr session.Messenger, sink session.FeedbackSink) *session.Engine {
	return session.NewEngine(session.EngineOpts{
		Store:      session.NewStore(a.Config.Bot.SessionTTL),
		Gate:       a.Gate,
		Estimator:  a.Estimator,
		Messenger:  msgr,
		Feedback:   sink,
		Archive:    a.Archive,
		AdminCode:  a.Config.Bot.AdminPremiumCode,
		FreePhotos: a.Config.Bot.FreePhotosPerDay,
		Tracer:     otel.Tracer(tastebalance.TracerNameEngine),
		Meter:      otel.Meter(tastebalance.MeterName),
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newBackend(ctx context.Context) (tastebalance.Estimator, error) {
	m := a.Config.Model
	switch strings.ToLower(m.Estimator) {
	case BackendGemini:
		opts := gemini.Options{
			PremiumModel: m.PremiumModelID,
			LiteModel:    m.LiteModelID,
			MaxTokens:    m.MaxTokens,
			Temperature:  m.Temperature,
			TopP:         m.TopP,
		}
		gen, err := gemini.NewClientGenerator(ctx, m.GeminiAPIKey, opts)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		a.closers = append(a.closers, gen.Close)
		return gemini.NewEstimator(gen, opts), nil

	case BackendBedrock:
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return bedrock.NewEstimator(bedrockruntime.NewFromConfig(awsCfg), bedrock.LLMOptions{
			ModelID:     m.PremiumModelID,
			LiteModelID: m.LiteModelID,
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			TopP:        m.TopP,
		}), nil

	case BackendOllama:
		return ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: m.BaseOllamaEndpoint,
			ModelID:      m.PremiumModelID,
			LiteModelID:  m.LiteModelID,
			HTTPClient:   http.DefaultClient,
		})

	case BackendMock:
		slog.Warn("SETUP: Using canned estimator replies")
		return mock.NewEstimator(), nil
	}
	return nil, fmt.Errorf("unknown estimator %q", m.Estimator)
}

func (a *App) newEstimationLogger() (tastebalance.EstimationLogger, error) {
	switch a.Config.Storage.EstimationLog {
	case "", "none":
		return tastebalance.NewNoOpEstimationLogger(), nil
	case "stdout":
		return tastebalance.NewStdoutEstimationLogger(), nil
	case "file":
		path := tastebalance.NewEstimationLogFilePath(a.Config.Model.Estimator)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger := tastebalance.NewFileEstimationLogger(f)
		a.closers = append(a.closers, func() error {
			return errors.Join(logger.Flush(), f.Close())
		})
		slog.Info("SETUP: Recording estimations", "path", path)
		return logger, nil
	}
	return nil, fmt.Errorf("unknown estimation log %q", a.Config.Storage.EstimationLog)
}

func (a *App) newArchive(ctx context.Context) error {
	sc := a.Config.Storage
	switch {
	case sc.PhotoArchiveS3Bucket != "":
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		a.Archive = storage.NewS3PhotoArchive(s3.NewFromConfig(awsCfg), sc.PhotoArchiveS3Bucket, sc.PhotoArchiveS3Prefix)
		slog.Info("SETUP: Archiving photos to S3", "bucket", sc.PhotoArchiveS3Bucket)
	case sc.PhotoArchiveDir != "":
		a.Archive = storage.NewFilePhotoArchive(sc.PhotoArchiveDir)
		slog.Info("SETUP: Archiving photos to disk", "dir", sc.PhotoArchiveDir)
	}
	return nil
}
