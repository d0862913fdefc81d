package ai

import (
	"context"
	"fmt"
	"strings"
)

// Embedder provides embeddings for text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds an Embedder for the named provider.
// Supported providers: "ollama", "openai-compat".
func NewEmbedder(provider, baseURL, apiKey, model string, dimensions int) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "ollama":
		return NewOllamaEmbedder(NewOllamaClient(baseURL), model, dimensions), nil
	case "openai-compat", "openai":
		return NewOpenAICompatClient(baseURL, apiKey, model), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", provider)
}

// OllamaEmbedder wraps Ollama embedding calls with a fixed model and dimension.
type OllamaEmbedder struct {
	client     *OllamaClient
	model      string
	dimensions int
}

func NewOllamaEmbedder(client *OllamaClient, model string, dimensions int) *OllamaEmbedder {
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}
}

func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.client.EmbedText(ctx, e.model, text, e.dimensions)
}
