package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tmc/langchaingo/llms"
)

const responseFormatPreamble = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:`

// LangChainGenerator adapts a langchaingo model to research.Generator.
type LangChainGenerator struct {
	Model llms.Model
}

func NewLangChainGenerator(model llms.Model) *LangChainGenerator {
	return &LangChainGenerator{Model: model}
}

// GenerateStructured asks for JSON mode output that follows schema and
// decodes it into out. There is no retry: a bad answer is an error.
func (g *LangChainGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	resp, err := g.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt+"\n\n# Response Format:\n\n"+responseFormatPreamble+string(schemaJSON)),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		return fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("llm returned no choices")
	}
	return decodeJSON(resp.Choices[0].Content, out)
}

func (g *LangChainGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, g.Model, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return text, nil
}

// decodeJSON unmarshals model output, tolerating code fences and the usual
// syntax slips of language models.
func decodeJSON(content string, out any) error {
	content = stripCodeFence(content)
	if err := json.Unmarshal([]byte(content), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return fmt.Errorf("json parse error: %w (content: %s)", err, content)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("json parse error after repair: %w (content: %s)", err, content)
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
