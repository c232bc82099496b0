package embed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/store"
)

// fakeProvider records inputs and returns a fixed vector or error.
type fakeProvider struct {
	mu     sync.Mutex
	inputs []string
	vec    []float32
	err    error
	closed bool
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeProvider) ModelName() string { return "fake" }

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func TestGenerator_BlankInputSkipsProvider(t *testing.T) {
	p := &fakeProvider{vec: []float32{1, 0}}
	g := NewGenerator(p, GeneratorOptions{})

	for _, in := range []string{"", "   ", "\n\t"} {
		assert.Nil(t, g.Embed(context.Background(), in))
	}
	assert.Equal(t, 0, p.calls())
}

func TestGenerator_TruncatesByRunes(t *testing.T) {
	p := &fakeProvider{vec: []float32{1, 0}}
	g := NewGenerator(p, GeneratorOptions{})

	long := strings.Repeat("é", DefaultMaxInputChars+500)
	require.NotNil(t, g.Embed(context.Background(), long))
	require.Equal(t, 1, p.calls())
	assert.Equal(t, DefaultMaxInputChars, utf8.RuneCountInString(p.inputs[0]))
}

func TestGenerator_FailuresBecomeNil(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProvider
		dims int
	}{
		{"provider error", &fakeProvider{err: errors.New("connection refused")}, 0},
		{"timeout", &fakeProvider{err: amerrors.New(amerrors.ErrCodeProviderTimeout, "timed out", context.DeadlineExceeded)}, 0},
		{"empty vector", &fakeProvider{vec: []float32{}}, 0},
		{"wrong dimensions", &fakeProvider{vec: []float32{1, 2, 3}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.p, GeneratorOptions{Dimensions: tt.dims})
			assert.Nil(t, g.Embed(context.Background(), "hello"))
			assert.False(t, g.IsAvailable(context.Background()))
		})
	}
}

func TestGenerator_CircuitBreakerSkipsProviderWhenOpen(t *testing.T) {
	p := &fakeProvider{err: errors.New("down")}
	cb := amerrors.NewCircuitBreaker("test", amerrors.WithMaxFailures(2), amerrors.WithResetTimeout(time.Hour))
	g := NewGenerator(p, GeneratorOptions{Breaker: cb})

	for i := 0; i < 5; i++ {
		assert.Nil(t, g.Embed(context.Background(), "q"))
	}
	assert.Equal(t, 2, p.calls())
	assert.Equal(t, amerrors.StateOpen, cb.State())
}

func TestGenerator_IsAvailableProbes(t *testing.T) {
	p := &fakeProvider{vec: []float32{0.5, 0.5}}
	g := NewGenerator(p, GeneratorOptions{})

	assert.True(t, g.IsAvailable(context.Background()))
	assert.Equal(t, []string{ProbeText}, p.inputs)
}

func TestGenerator_EmbedCodeChunkComposesText(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}}
	g := NewGenerator(p, GeneratorOptions{})

	g.EmbedCodeChunk(context.Background(), &store.CodeChunk{
		ClassName:  "OrderService",
		MethodName: "placeOrder",
		Content:    "void placeOrder() {}",
	})
	g.EmbedDocument(context.Background(), &store.Document{Title: "Orders", Content: "How orders flow."})
	assert.Nil(t, g.EmbedCodeChunk(context.Background(), nil))

	require.Len(t, p.inputs, 2)
	assert.Equal(t, "Class: OrderService\nMethod: placeOrder\nCode: void placeOrder() {}", p.inputs[0])
	assert.Equal(t, "Orders\n\nHow orders flow.", p.inputs[1])
}

func TestCodeChunkText_AllParts(t *testing.T) {
	got := CodeChunkText(&store.CodeChunk{ClassName: "A", MethodName: "b", DocSummary: "does b", Content: "b()"})
	assert.Equal(t, "Class: A\nMethod: b\nDescription: does b\nCode: b()", got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 10))
	assert.Equal(t, "hé", Truncate("héllo", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestGenerator_CloseClosesProvider(t *testing.T) {
	p := &fakeProvider{}
	require.NoError(t, NewGenerator(p, GeneratorOptions{}).Close())
	assert.True(t, p.closed)
}
