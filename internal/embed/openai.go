package embed

import (
	"context"
	"time"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAIProvider embeds through eino's OpenAI embedder.
type OpenAIProvider struct {
	embedder embedding.Embedder
	model    string
}

// NewOpenAIProvider creates the eino embedder for cfg.
func NewOpenAIProvider(ctx context.Context, cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	ec := &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.Dimensions > 0 {
		dims := cfg.Dimensions
		ec.Dimensions = &dims
	}
	e, err := openaiEmbed.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "cannot create OpenAI embedder", err).
			WithSuggestion("Check embeddings.endpoint, embeddings.model and the API key environment variable")
	}
	return &OpenAIProvider{embedder: e, model: cfg.Model}, nil
}

// newOpenAIProviderWith wraps an existing eino embedder.
func newOpenAIProviderWith(e embedding.Embedder, model string) *OpenAIProvider {
	return &OpenAIProvider{embedder: e, model: model}
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "openai embedding failed", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, amerrors.New(amerrors.ErrCodeProviderRejected, "provider returned no embedding", nil)
	}
	return normalizeVector(toFloat32(vectors[0])), nil
}

// ModelName implements Provider.
func (p *OpenAIProvider) ModelName() string { return p.model }

// Close implements Provider.
func (p *OpenAIProvider) Close() error { return nil }
