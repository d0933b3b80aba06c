package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider calls Google's Gemini API through the genai SDK.
type GeminiProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	timeout time.Duration
}

// NewGeminiProvider creates a new Gemini provider reading its key from apiKeyEnv.
func NewGeminiProvider(model, apiKeyEnv, baseURL string, timeout time.Duration) *GeminiProvider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: baseURL,
		timeout: timeout,
	}
}

// Name returns the provider name.
func (g *GeminiProvider) Name() string { return "gemini" }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	return g.APIKey != ""
}

// Generate sends the prompt with an optional system instruction.
func (g *GeminiProvider) Generate(ctx context.Context, r Request) (string, error) {
	if g.APIKey == "" {
		return "", errors.New("Gemini API key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cc := &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("creating genai client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{}
	if r.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}
	cfg.Temperature = genai.Ptr(float32(r.Temperature))
	if r.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(r.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model, genai.Text(r.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}
