package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testEnv is an isolated config, data dir and fake services for one test.
type testEnv struct {
	dataDir    string
	configPath string
}

type envOptions struct {
	embedderDown bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	embedder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.embedderDown {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": [][]float64{fakeVector(req.Input)},
		})
	}))
	t.Cleanup(embedder.Close)

	chunker := httptest.NewServer(fakeChunker())
	t.Cleanup(chunker.Close)

	env := &testEnv{dataDir: t.TempDir()}
	env.configPath = filepath.Join(t.TempDir(), "amanctx.yaml")
	cfg := fmt.Sprintf(`embeddings:
  provider: ollama
  endpoint: %s
  model: test-embed
  dimensions: 4
  max_retries: 0
  timeout: 2s
chunker:
  url: %s
  timeout: 2s
index:
  data_dir: %s
  workers: 2
  watch_debounce: 50ms
queue:
  poll_interval: 20ms
`, embedder.URL, chunker.URL, env.dataDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

// run executes the root command with the env's config and returns stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWithInput(t, "", args...)
}

func (e *testEnv) runWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// fakeVectorTopics are the dimensions fakeVector scores. Texts about the
// same topic land near each other.
var fakeVectorTopics = []string{"cancel", "refund", "dispatch"}

func fakeVector(text string) []float64 {
	text = strings.ToLower(text)
	vec := make([]float64, 0, len(fakeVectorTopics)+1)
	for _, topic := range fakeVectorTopics {
		vec = append(vec, float64(strings.Count(text, topic)))
	}
	vec = append(vec, 0.1)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var (
	classRe  = regexp.MustCompile(`class\s+(\w+)`)
	methodRe = regexp.MustCompile(`\w+\s+(\w+)\s*\([^)]*\)\s*\{`)
)

// fakeChunker returns one chunk per method, named Class#method.
func fakeChunker() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /parse", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Language string `json:"language"`
			Code     string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		class := "Main"
		if m := classRe.FindStringSubmatch(req.Code); m != nil {
			class = m[1]
		}
		var chunks []map[string]any
		for _, m := range methodRe.FindAllStringSubmatch(req.Code, -1) {
			if m[1] == class {
				continue
			}
			chunks = append(chunks, map[string]any{
				"id":         class + "-" + m[1],
				"language":   req.Language,
				"className":  class,
				"methodName": m[1],
				"apiName":    class + "#" + m[1],
				"docSummary": "Handles " + m[1] + ".",
				"content":    m[0] + " }",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"chunks": chunks})
	})
	return mux
}

// writeRepo creates a small Java project and a docs folder under a temp dir.
func writeRepo(t *testing.T) (codeDir, docsDir string) {
	t.Helper()
	root := t.TempDir()
	codeDir = filepath.Join(root, "src")
	docsDir = filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(codeDir, 0o755))
	require.NoError(t, os.MkdirAll(docsDir, 0o755))

	writeFile(t, filepath.Join(codeDir, "OrderService.java"), `public class OrderService {
    public void cancel(Order order) { order.cancel(); }
    public Order place(Cart cart) { return new Order(cart); }
}
`)
	writeFile(t, filepath.Join(codeDir, "RefundService.java"), `public class RefundService {
    public Refund refund(Order order) { return new Refund(order); }
}
`)
	writeFile(t, filepath.Join(docsDir, "refunds.md"), "# Refund policy\n\nRefunds are accepted within seven days of delivery.\n")
	return codeDir, docsDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// syncBuffer is a bytes.Buffer safe for a command writing while the test
// reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
