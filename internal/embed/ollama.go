package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel produces 1024-dimensional multilingual vectors.
	DefaultOllamaModel = "bge-m3"

	ollamaPoolSize = 4
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	Host       string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaProvider calls POST /api/embed on an Ollama server.
type OllamaProvider struct {
	mu        sync.RWMutex
	client    *http.Client
	transport *http.Transport
	cfg       OllamaConfig
	closed    bool
}

// NewOllamaProvider creates a provider. It does not contact the server.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	// Short idle timeout: CLI runs are short-lived and should not leave
	// connections behind after Ctrl+C.
	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		MaxConnsPerHost:     ollamaPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	// No client-wide timeout; each attempt carries its own context deadline.
	return &OllamaProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
	}
}

// Embed implements Provider.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "provider is closed", nil)
	}

	retry := amerrors.RetryConfig{
		MaxRetries:   p.cfg.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		ShouldRetry:  amerrors.IsRetryable,
	}
	attempt := 0
	return amerrors.RetryWithResult(ctx, retry, func() ([]float32, error) {
		attempt++
		vec, err := p.embedOnce(ctx, text)
		if err != nil {
			slog.Debug("embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.String("model", p.cfg.Model),
				slog.String("error", err.Error()))
		}
		return vec, err
	})
}

func (p *OllamaProvider) embedOnce(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, amerrors.New(amerrors.ErrCodeProviderTimeout, "embedding request timed out", err)
		}
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := amerrors.ErrCodeEmbeddingFailed
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			code = amerrors.ErrCodeProviderRejected
		}
		return nil, amerrors.New(code,
			fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "failed to decode response", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, amerrors.New(amerrors.ErrCodeProviderRejected, "provider returned no embedding", nil)
	}
	return normalizeVector(toFloat32(result.Embeddings[0])), nil
}

// ModelName implements Provider.
func (p *OllamaProvider) ModelName() string { return p.cfg.Model }

// Close implements Provider.
func (p *OllamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
