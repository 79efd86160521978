package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mikeboe/research-assistant/pkg/config"
	"github.com/mikeboe/research-assistant/pkg/research"
)

// Provider names accepted in LLM_PROVIDER.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderGoogleAI  = "googleai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

var ErrUnknownProvider = errors.New("unknown LLM provider")

// NewModel constructs the langchaingo model selected by cfg.
func NewModel(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	switch cfg.LLMProvider {
	case ProviderOllama:
		llm, err := ollama.New(ollama.WithModel(cfg.ModelName), ollama.WithServerURL(cfg.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to init Ollama client: %w", err)
		}
		return llm, nil
	case ProviderOpenAI:
		llm, err := openai.New(
			openai.WithModel(cfg.ModelName),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(cfg.LLMApiKey),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to init OpenAI client: %w", err)
		}
		return llm, nil
	case ProviderGoogleAI:
		return GoogleAi(ctx, cfg.GoogleApiKey, cfg.ModelName)
	case ProviderAnthropic:
		return AnthropicAI(cfg.LLMApiKey, cfg.ModelName)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLMProvider)
	}
}

// NewGenerator constructs the generation capability once per process.
func NewGenerator(ctx context.Context, cfg *config.Config) (research.Generator, error) {
	slog.Info("Loading LLM", "provider", cfg.LLMProvider, "model", cfg.ModelName, "url", cfg.BaseURL)

	if cfg.LLMProvider == ProviderGemini {
		return NewGeminiGenerator(ctx, cfg.GoogleApiKey, cfg.ModelName)
	}
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewLangChainGenerator(model), nil
}
