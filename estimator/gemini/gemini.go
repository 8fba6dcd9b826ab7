// Package gemini estimates meals with Google Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tastebalance"
	"tastebalance/estimator"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultPremiumModel = "gemini-2.5-flash"
	DefaultLiteModel    = "gemini-2.5-flash-lite"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

var ErrEmptyReply = errors.New("empty reply from Gemini")

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Options struct {
	PremiumModel string
	LiteModel    string
	MaxTokens    int32
	Temperature  float32
	TopP         float32
}

func (o Options) withDefaults() Options {
	if o.PremiumModel == "" {
		o.PremiumModel = DefaultPremiumModel
	}
	if o.LiteModel == "" {
		o.LiteModel = DefaultLiteModel
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = defaultTemperature
	}
	if o.TopP == 0 {
		o.TopP = defaultTopP
	}
	return o
}

type Estimator struct {
	gen  contentGenerator
	opts Options
}

var _ tastebalance.Estimator = (*Estimator)(nil)

func NewEstimator(gen contentGenerator, opts Options) *Estimator {
	return &Estimator{gen: gen, opts: opts.withDefaults()}
}

// ClientGenerator adapts a genai.Client, configuring each model for JSON replies.
type ClientGenerator struct {
	client *genai.Client
	opts   Options
}

// NewClientGenerator dials Gemini with an API key. Close releases the client.
func NewClientGenerator(ctx context.Context, apiKey string, opts Options) (*ClientGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	return &ClientGenerator{client: client, opts: opts.withDefaults()}, nil
}

func (g *ClientGenerator) GenerateContent(ctx context.Context, model string, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m := g.client.GenerativeModel(model)
	m.SetTemperature(g.opts.Temperature)
	m.SetTopP(g.opts.TopP)
	m.SetMaxOutputTokens(g.opts.MaxTokens)
	m.ResponseMIMEType = "application/json"
	return m.GenerateContent(ctx, parts...)
}

func (g *ClientGenerator) Close() error {
	return g.client.Close()
}

func (e *Estimator) model(tier tastebalance.Tier) string {
	if tier == tastebalance.TierPremium {
		return e.opts.PremiumModel
	}
	return e.opts.LiteModel
}

func (e *Estimator) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return e.generate(ctx, tier, genai.Text(estimator.PhotoPrompt()), genai.ImageData("jpeg", photo))
}

func (e *Estimator) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return e.generate(ctx, tier, genai.Text(estimator.TextPrompt(description)))
}

func (e *Estimator) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	return e.generate(ctx, tier, genai.Text(estimator.IngredientPrompt(name, weightG)))
}

func (e *Estimator) generate(ctx context.Context, tier tastebalance.Tier, parts ...genai.Part) (string, error) {
	model := e.model(tier)
	slog.Info("GEMINI: Generating", "model", model, "parts", len(parts))

	resp, err := e.gen.GenerateContent(ctx, model, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := textFromResponse(resp)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// textFromResponse joins the text parts of the first candidate.
func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, p := range candidate.Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
