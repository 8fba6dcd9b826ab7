// Package ollama estimates meals with a local Ollama server, typically running a vision model.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"tastebalance"
	"tastebalance/estimator"
)

const defaultModel = "llava"

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

type Client struct {
	endpoint   string
	model      string
	liteModel  string
	httpClient tastebalance.HTTPClient
	options    options
}

var _ tastebalance.Estimator = (*Client)(nil)

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	LiteModelID  string
	HTTPClient   tastebalance.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, fmt.Errorf("invalid ollama endpoint")
	}
	if opts.ModelID == "" {
		opts.ModelID = defaultModel
	}
	if opts.LiteModelID == "" {
		opts.LiteModelID = opts.ModelID
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Client{
		model:      opts.ModelID,
		liteModel:  opts.LiteModelID,
		httpClient: opts.HTTPClient,
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options: options{
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        8192,
		},
	}, nil
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Format   string        `json:"format,omitempty"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options,omitempty"`
}

type wireResponse struct {
	Message wireMessage `json:"message"`
	// other metadata omitted but available
}

func (c *Client) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return c.chat(ctx, tier, wireMessage{
		Role:    "user",
		Content: estimator.PhotoPrompt(),
		Images:  []string{base64.StdEncoding.EncodeToString(photo)},
	})
}

func (c *Client) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return c.chat(ctx, tier, wireMessage{Role: "user", Content: estimator.TextPrompt(description)})
}

func (c *Client) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	return c.chat(ctx, tier, wireMessage{Role: "user", Content: estimator.IngredientPrompt(name, weightG)})
}

// chat sends a single user message and returns the model's content verbatim.
func (c *Client) chat(ctx context.Context, tier tastebalance.Tier, msg wireMessage) (string, error) {
	model := c.liteModel
	if tier == tastebalance.TierPremium {
		model = c.model
	}
	slog.Info("OLLAMA: Invoked", "model", model, "images", len(msg.Images))

	reqBytes, err := json.Marshal(wireRequest{
		Model:    model,
		Messages: []wireMessage{msg},
		Format:   "json",
		Stream:   false,
		Options:  c.options,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OLLAMA: %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		slog.Warn("OLLAMA: decode failed, returning raw", "err", err, "body", string(body))
		return string(body), nil
	}
	return wr.Message.Content, nil
}
