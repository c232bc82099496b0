package chunk

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
	"time"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

const (
	DefaultURL      = "http://localhost:8081"
	DefaultTimeout  = 30 * time.Second
	DefaultMaxChars = 1000

	healthTimeout = 3 * time.Second
)

// ClientConfig configures the HTTP chunker client.
type ClientConfig struct {
	URL        string
	Timeout    time.Duration
	MaxChars   int
	MaxRetries int
}

// Client calls POST {url}/parse and GET {url}/health.
type Client struct {
	http *http.Client
	cfg  ClientConfig
}

var _ Chunker = (*Client)(nil)

// NewClient creates a client. It does not contact the service.
func NewClient(cfg ClientConfig) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{http: &http.Client{}, cfg: cfg}
}

// Parse implements Chunker. Blank code or language yields no chunks
// without a request.
func (c *Client) Parse(ctx context.Context, language, code string) ([]Chunk, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(language) == "" {
		return []Chunk{}, nil
	}

	retry := amerrors.RetryConfig{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		ShouldRetry:  amerrors.IsRetryable,
	}
	return amerrors.RetryWithResult(ctx, retry, func() ([]Chunk, error) {
		return c.parseOnce(ctx, language, code)
	})
}

func (c *Client) parseOnce(ctx context.Context, language, code string) ([]Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(parseRequest{Language: language, Code: code, MaxChars: c.cfg.MaxChars})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parse request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/parse", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, amerrors.New(amerrors.ErrCodeProviderTimeout, "chunker request timed out", err)
		}
		return nil, amerrors.New(amerrors.ErrCodeChunkerFailed, "chunker request failed", err).
			WithSuggestion("Check that the chunking service is running at " + c.cfg.URL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := amerrors.ErrCodeChunkerFailed
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Unsupported language and friends: retrying will not help.
			code = amerrors.ErrCodeInvalidInput
		}
		return nil, amerrors.New(code,
			fmt.Sprintf("chunker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil).
			WithDetail("language", language)
	}

	var out parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeChunkerFailed, "failed to decode chunker response", err)
	}

	chunks := make([]Chunk, 0, len(out.Chunks))
	for _, w := range out.Chunks {
		if strings.TrimSpace(w.Content) == "" {
			continue
		}
		chunks = append(chunks, w.chunk())
	}
	slog.Debug("chunker_parsed",
		slog.String("language", language),
		slog.Int("code_len", len(code)),
		slog.Int("chunks", len(chunks)))
	return chunks, nil
}

// Healthy implements Chunker.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("chunker_unavailable", slog.String("url", c.cfg.URL), slog.String("error", err.Error()))
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// URL returns the service base URL.
func (c *Client) URL() string { return c.cfg.URL }
