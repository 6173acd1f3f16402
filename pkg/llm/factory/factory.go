package factory

import (
	"context"
	"fmt"

	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/pkg/llm"
	"coi-notes-be/pkg/llm/gemini"
	"coi-notes-be/pkg/llm/ollama"
)

type Options struct {
	Provider      string
	APIKey        string
	DefaultModel  string
	OllamaBaseURL string
}

func NewLLMProvider(ctx context.Context, opts Options, log logger.ILogger) (llm.Provider, error) {
	switch opts.Provider {
	case "gemini", "":
		return gemini.NewGeminiProvider(ctx, opts.APIKey, opts.DefaultModel, log)
	case "ollama":
		baseURL := opts.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, opts.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", opts.Provider)
	}
}
