package normalize

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/enrichment-cli/internal/resilience"
)

// GeminiConfig configures the Gemini-backed normalizer.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // tests and proxies
	Options
}

// Gemini normalizes with the Gemini API.
type Gemini struct {
	chunked
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini normalizer.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("normalize: gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: gemini client")
	}
	g := &Gemini{client: client, model: cfg.Model}
	g.chunked = newChunked("gemini", cfg.Options, g.complete)
	return g, nil
}

func (g *Gemini) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", classifyGemini(err)
	}
	return resp.Text(), nil
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && resilience.TransientStatus(apiErr.Code) {
		return resilience.Transient("gemini", apiErr.Code, err)
	}
	if resilience.IsTransient(err) {
		return resilience.Transient("gemini", 0, err)
	}
	return eris.Wrap(err, "gemini: generate content")
}
