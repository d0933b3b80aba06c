package llm

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
)

// Request is a single system + user prompt exchange.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// Temperature is always sent, so 0 asks for greedy sampling rather than
	// the provider default.
	Temperature float64
}

// Provider is the interface for LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	IsConfigured() bool
}

// CreateProvider creates an LLM provider based on configuration.
// An unreachable Ollama falls back to OpenAI; nil means nothing is usable.
func CreateProvider(cfg config.LLM, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "anthropic", "claude":
		p = NewAnthropicProvider(cfg.AnthropicModel, cfg.APIKeyEnv, cfg.BaseURL, cfg.Timeout)
	case "gemini", "google":
		p = NewGeminiProvider(cfg.GeminiModel, cfg.APIKeyEnv, cfg.BaseURL, cfg.Timeout)
	case "openai", "deepseek":
		p = NewOpenAIProvider(cfg.OpenAIModel, cfg.APIKeyEnv, cfg.BaseURL, cfg.Timeout)
	default:
		ollama := NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.Timeout)
		if ollama.IsConfigured() {
			logger.Info("using LLM provider", zap.String("provider", ollama.Name()), zap.String("model", cfg.Model))
			return ollama
		}
		logger.Warn("Ollama not available, trying OpenAI fallback")
		p = NewOpenAIProvider(cfg.OpenAIModel, cfg.APIKeyEnv, cfg.BaseURL, cfg.Timeout)
	}

	if !p.IsConfigured() {
		logger.Error("no LLM provider available", zap.String("provider", p.Name()), zap.String("api_key_env", cfg.APIKeyEnv))
		return nil
	}
	logger.Info("using LLM provider", zap.String("provider", p.Name()))
	return p
}
