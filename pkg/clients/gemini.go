package clients

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator talks to the Gemini API directly so structured output can
// be constrained by a response schema instead of a prompt.
type GeminiGenerator struct {
	Client *genai.Client
	Model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = string(DefaultModel)
	}
	return &GeminiGenerator{Client: client, Model: model}, nil
}

func (g *GeminiGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	temperature := float32(0)
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, genai.Text(userPrompt), &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:        &temperature,
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	})
	if err != nil {
		return fmt.Errorf("gemini generation failed: %w", err)
	}
	return decodeJSON(resp.Text(), out)
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0)
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}
