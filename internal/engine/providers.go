package engine

import (
	"fmt"
	"net/http"

	"github.com/yangwenmai/threadauto/internal/config"
)

// Provider describes one supported text-generation backend.
type Provider struct {
	Name         string
	DefaultModel string

	// BaseURL is set for OpenAI-compatible services.
	BaseURL string
}

// Providers lists the supported backends by name.
var Providers = map[string]Provider{
	config.ProviderGroq:       {Name: "Groq", DefaultModel: "llama-3.3-70b-versatile", BaseURL: "https://api.groq.com/openai/v1"},
	config.ProviderOpenRouter: {Name: "OpenRouter", DefaultModel: "qwen/qwen-2.5-72b-instruct", BaseURL: "https://openrouter.ai/api/v1"},
	config.ProviderOpenAI:     {Name: "OpenAI", DefaultModel: "gpt-4o"},
	config.ProviderGemini:     {Name: "Google Gemini", DefaultModel: "gemini-2.0-flash"},
	config.ProviderClaude:     {Name: "Anthropic Claude", DefaultModel: "claude-sonnet-4-20250514"},
	config.ProviderOllama:     {Name: "Ollama", DefaultModel: "llama3"},
}

// ModelName returns the configured model or the provider default.
func ModelName(cfg config.Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return Providers[cfg.Provider].DefaultModel
}

// NewModelClient builds the client for cfg.Provider. hc carries the per-call timeout.
func NewModelClient(cfg config.Config, hc *http.Client) (ModelClient, error) {
	p, ok := Providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	model := ModelName(cfg)
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	switch cfg.Provider {
	case config.ProviderGroq, config.ProviderOpenRouter:
		opts := []OpenAIOption{WithBaseURL(p.BaseURL), WithModel(model), WithHTTPClient(hc)}
		if cfg.Provider == config.ProviderOpenRouter {
			opts = append(opts, WithHeader("X-Title", "threadauto"))
		}
		return NewOpenAIClient(cfg.ProviderKey(), opts...), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIKey, WithBaseURL(cfg.OpenAIBaseURL), WithModel(model), WithHTTPClient(hc)), nil
	case config.ProviderGemini:
		return NewGeminiClient(cfg.GeminiKey, WithGeminiModel(model), WithGeminiHTTPClient(hc)), nil
	case config.ProviderClaude:
		return NewClaudeClient(cfg.AnthropicKey, WithClaudeModel(model), WithClaudeHTTPClient(hc)), nil
	default:
		return NewOllamaClient(cfg.OllamaURL, WithOllamaModel(model), WithOllamaHTTPClient(hc)), nil
	}
}
