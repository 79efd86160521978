package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/anthropic"
)

const Claude4Sonnet ModelType = "claude-sonnet-4-20250514"

func AnthropicAI(apiKey, model string) (*anthropic.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is not set")
	}
	if model == "" {
		model = string(Claude4Sonnet)
	}

	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to init Anthropic client: %w", err)
	}
	return llm, nil
}
