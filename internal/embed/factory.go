package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/amanctx/internal/config"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// NewProvider builds the configured provider wrapped in the rate limiter
// and the LRU cache (cache outermost, so hits skip the limiter).
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig) (Provider, error) {
	var base Provider
	switch cfg.Provider {
	case ProviderOllama, "":
		base = NewOllamaProvider(OllamaConfig{
			Host:       cfg.Endpoint,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case ProviderOpenAI:
		key := ""
		if cfg.APIKeyEnv != "" {
			key = os.Getenv(cfg.APIKeyEnv)
		}
		p, err := NewOpenAIProvider(ctx, OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     key,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		base = p
	default:
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil).
			WithSuggestion("Set embeddings.provider to ollama or openai")
	}

	slog.Debug("embedding_provider_ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", base.ModelName()),
		slog.String("endpoint", cfg.Endpoint))

	limited := NewRateLimitedProvider(base, cfg.RequestsPerSecond)
	return NewCachedProvider(limited, cfg.CacheSize), nil
}

// NewGeneratorFromConfig builds a Generator over NewProvider.
func NewGeneratorFromConfig(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (*Generator, error) {
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(p, GeneratorOptions{
		MaxInputChars: cfg.MaxInputChars,
		Dimensions:    cfg.Dimensions,
		Logger:        logger,
	}), nil
}
