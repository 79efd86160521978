package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"
)

// ModelType is an enum for the well-known Google AI models.
type ModelType string

// DefaultModel is the default model to use if none is specified
const DefaultModel ModelType = "gemini-3-flash-preview"

func GoogleAi(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}
	if model == "" {
		model = string(DefaultModel)
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
		googleai.WithDefaultTemperature(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init Google AI client: %w", err)
	}
	return llm, nil
}
