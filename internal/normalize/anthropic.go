package normalize

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/resilience"
)

// AnthropicConfig configures the Claude-backed normalizer.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string // tests and proxies
	Options
}

// Anthropic normalizes with the Messages API.
type Anthropic struct {
	chunked
	client sdk.Client
	model  string
}

// NewAnthropic creates an Anthropic normalizer.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("normalize: anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	a := &Anthropic{client: sdk.NewClient(opts...), model: cfg.Model}
	a.chunked = newChunked("anthropic", cfg.Options, a.complete)
	return a, nil
}

func (a *Anthropic) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: 4096,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.TransientStatus(apiErr.StatusCode) {
			return "", resilience.Transient("anthropic", apiErr.StatusCode, err)
		}
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
