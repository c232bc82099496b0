package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanctx/internal/config"
	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

func TestCachedProvider_HitsSkipInner(t *testing.T) {
	inner := &fakeProvider{vec: []float32{1, 2}}
	c := NewCachedProvider(inner, 8)

	for i := 0; i < 3; i++ {
		vec, err := c.Embed(context.Background(), "same text")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, vec)
	}
	assert.Equal(t, 1, inner.calls())
	assert.Equal(t, 1, c.Len())

	_, _ = c.Embed(context.Background(), "other text")
	assert.Equal(t, 2, inner.calls())
}

func TestCachedProvider_ErrorsAreNotCached(t *testing.T) {
	inner := &fakeProvider{err: errors.New("boom")}
	c := NewCachedProvider(inner, 8)

	_, err := c.Embed(context.Background(), "q")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls())
	assert.Equal(t, 0, c.Len())
}

func TestRateLimitedProvider_HonoursContext(t *testing.T) {
	inner := &fakeProvider{vec: []float32{1}}
	r := NewRateLimitedProvider(inner, 1)

	_, err := r.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Embed(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeProviderTimeout, amerrors.GetCode(err))
	assert.Equal(t, 1, inner.calls())
}

func TestRateLimitedProvider_ZeroMeansUnlimited(t *testing.T) {
	inner := &fakeProvider{vec: []float32{1}}
	r := NewRateLimitedProvider(inner, 0)
	for i := 0; i < 50; i++ {
		_, err := r.Embed(context.Background(), "x")
		require.NoError(t, err)
	}
}

type fakeEinoEmbedder struct {
	out [][]float64
	err error
}

func (f *fakeEinoEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	return f.out, f.err
}

func TestOpenAIProvider_ConvertsAndNormalizes(t *testing.T) {
	p := newOpenAIProviderWith(&fakeEinoEmbedder{out: [][]float64{{0, 2}}}, "text-embedding-3-small")
	vec, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
	assert.Equal(t, "text-embedding-3-small", p.ModelName())

	p = newOpenAIProviderWith(&fakeEinoEmbedder{err: errors.New("401")}, "m")
	_, err = p.Embed(context.Background(), "x")
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))

	p = newOpenAIProviderWith(&fakeEinoEmbedder{}, "m")
	_, err = p.Embed(context.Background(), "x")
	assert.Equal(t, amerrors.ErrCodeProviderRejected, amerrors.GetCode(err))
}

func TestNewProvider_RejectsUnknownProvider(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "carrier-pigeon"
	_, err := NewProvider(context.Background(), cfg)
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}

func TestNewProvider_OllamaIsCachedAndLimited(t *testing.T) {
	p, err := NewProvider(context.Background(), config.NewConfig().Embeddings)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	cached, ok := p.(*CachedProvider)
	require.True(t, ok)
	_, ok = cached.inner.(*RateLimitedProvider)
	assert.True(t, ok)
	assert.Equal(t, "bge-m3", p.ModelName())
}
