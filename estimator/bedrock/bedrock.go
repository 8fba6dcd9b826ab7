// Package bedrock estimates meals with models served through the Bedrock Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tastebalance"
	"tastebalance/estimator"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// defaultLiteModelID serves non-premium users.
	defaultLiteModelID = "us.anthropic.claude-3-5-haiku-20241022-v1:0"

	defaultMaxTokens = 1024

	// Low temperature and top_p keep replies close to the requested JSON shape.
	defaultTemperature = 0.2
	defaultTopP        = 0.9

	systemPrompt = "You are a nutrition estimation service. Always answer with a single JSON object."
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	LiteModelID string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Estimator struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

var _ tastebalance.Estimator = (*Estimator)(nil)

func NewEstimator(brc bedrockRuntimeClient, opts LLMOptions) *Estimator {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.LiteModelID == "" {
		opts.LiteModelID = defaultLiteModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &Estimator{
		brc:  brc,
		opts: opts,
	}
}

func (e *Estimator) modelID(tier tastebalance.Tier) string {
	if tier == tastebalance.TierPremium {
		return e.opts.ModelID
	}
	return e.opts.LiteModelID
}

func (e *Estimator) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return e.converse(ctx, tier,
		&types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: types.ImageFormatJpeg,
			Source: &types.ImageSourceMemberBytes{Value: photo},
		}},
		&types.ContentBlockMemberText{Value: estimator.PhotoPrompt()},
	)
}

func (e *Estimator) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return e.converse(ctx, tier, &types.ContentBlockMemberText{Value: estimator.TextPrompt(description)})
}

func (e *Estimator) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	return e.converse(ctx, tier, &types.ContentBlockMemberText{Value: estimator.IngredientPrompt(name, weightG)})
}

func (e *Estimator) converse(ctx context.Context, tier tastebalance.Tier, content ...types.ContentBlock) (string, error) {
	modelID := e.modelID(tier)
	slog.Info("BEDROCK: Invoked", "model", modelID, "blocks", len(content))

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: content,
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(e.opts.MaxTokens),
			Temperature: aws.Float32(e.opts.Temperature),
			TopP:        aws.Float32(e.opts.TopP),
		},
	}
	out, err := e.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("BEDROCK: Converse failed", "error", err, "model", modelID)
		return "", err
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Usage != nil {
		attrs = append(attrs,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	slog.Info("BEDROCK: Converse succeeded", attrs...)

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		return "", fmt.Errorf("model hit MaxTokens limit; consider increasing MaxTokens")
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return "", fmt.Errorf("model response blocked by Bedrock safety filters")
	}

	text := textFromOutput(out)
	if text == "" {
		return "", errors.New("empty reply from Bedrock")
	}
	return text, nil
}

// textFromOutput returns assistant text:
// 1) If any text block looks like a single JSON object, return the last such block.
// 2) Else, join all text blocks with '\n'.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil || len(msg.Value.Content) == 0 {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}
