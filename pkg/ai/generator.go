package ai

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt. Both
// LLM providers (Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewTextGenerator builds a TextGenerator for the named provider.
// Supported providers: "ollama", "openai-compat".
func NewTextGenerator(provider, baseURL, apiKey, model string) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "ollama":
		return NewOllamaGenerator(NewOllamaClient(baseURL), model), nil
	case "openai-compat", "openai":
		return NewOpenAICompatClient(baseURL, apiKey, model), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", provider)
}
