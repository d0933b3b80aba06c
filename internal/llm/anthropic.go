package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider calls the Claude Messages API.
type AnthropicProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	timeout time.Duration
}

// NewAnthropicProvider creates a new Anthropic provider reading its key from apiKeyEnv.
func NewAnthropicProvider(model, apiKeyEnv, baseURL string, timeout time.Duration) *AnthropicProvider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: baseURL,
		timeout: timeout,
	}
}

// Name returns the provider name.
func (a *AnthropicProvider) Name() string { return "anthropic" }

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.APIKey != ""
}

// Generate sends one user message and joins the text blocks of the reply.
func (a *AnthropicProvider) Generate(ctx context.Context, r Request) (string, error) {
	if a.APIKey == "" {
		return "", errors.New("Anthropic API key not configured")
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(a.APIKey),
		anthropicoption.WithHTTPClient(&http.Client{Timeout: a.timeout}),
		anthropicoption.WithMaxRetries(0),
	}
	if a.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(a.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.Prompt)),
		},
	}
	if r.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.System}}
	}
	params.Temperature = anthropic.Float(r.Temperature)

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
