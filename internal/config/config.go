// Package config loads amanctx configuration. Values are layered:
// built-in defaults, the user config (~/.config/amanctx/config.yaml),
// the project file (.amanctx.yaml), then AMANCTX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the per-repository config file.
const ProjectFileName = ".amanctx.yaml"

// Config is the root configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Index      IndexConfig      `yaml:"index"`
	Context    ContextConfig    `yaml:"context"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Queue      QueueConfig      `yaml:"queue"`
	Server     ServerConfig     `yaml:"server"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "openai" (any OpenAI-compatible endpoint).
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	// MaxInputChars truncates text before it is sent to the provider.
	MaxInputChars     int           `yaml:"max_input_chars"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
}

// SearchConfig holds the ranking parameters of the hybrid engine.
type SearchConfig struct {
	RRFConstant         int                `yaml:"rrf_constant"`
	DefaultTopK         int                `yaml:"default_top_k"`
	MaxTopK             int                `yaml:"max_top_k"`
	MinShouldMatch      int                `yaml:"min_should_match"`
	CandidateMultiplier int                `yaml:"candidate_multiplier"`
	BackendTimeout      time.Duration      `yaml:"backend_timeout"`
	CodeBoosts          map[string]float64 `yaml:"code_boosts"`
	DocBoosts           map[string]float64 `yaml:"doc_boosts"`
}

// IndexConfig configures storage and batch indexing.
type IndexConfig struct {
	DataDir        string        `yaml:"data_dir"`
	Workers        int           `yaml:"workers"`
	MaxFileSize    int64         `yaml:"max_file_size"`
	Exclude        []string      `yaml:"exclude"`
	CodeExtensions []string      `yaml:"code_extensions"`
	WatchDebounce  time.Duration `yaml:"watch_debounce"`
}

// ContextConfig configures context assembly caps.
type ContextConfig struct {
	CodeItemCap       int `yaml:"code_item_cap"`
	DocItemCap        int `yaml:"doc_item_cap"`
	MaxLength         int `yaml:"max_length"`
	ReviewCodeItemCap int `yaml:"review_code_item_cap"`
	ReviewDocItemCap  int `yaml:"review_doc_item_cap"`
	ReviewMaxLength   int `yaml:"review_max_length"`
}

// ChunkerConfig points at the external AST chunking service.
type ChunkerConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxChars int           `yaml:"max_chars"`
}

// QueueConfig configures the durable work queue.
type QueueConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	LogLevel  string `yaml:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider:          "ollama",
			Endpoint:          "http://localhost:11434",
			Model:             "bge-m3",
			APIKeyEnv:         "OPENAI_API_KEY",
			Dimensions:        1024,
			MaxInputChars:     8000,
			Timeout:           30 * time.Second,
			CacheSize:         2048,
			RequestsPerSecond: 20,
			MaxRetries:        2,
		},
		Search: SearchConfig{
			RRFConstant:         60,
			DefaultTopK:         10,
			MaxTopK:             100,
			MinShouldMatch:      75,
			CandidateMultiplier: 10,
			BackendTimeout:      5 * time.Second,
			CodeBoosts: map[string]float64{
				"content":    2.0,
				"apiName":    1.8,
				"docSummary": 1.5,
				"className":  1.2,
				"methodName": 1.2,
			},
			DocBoosts: map[string]float64{
				"content": 2.0,
				"title":   1.5,
			},
		},
		Index: IndexConfig{
			DataDir:     defaultDataDir(),
			Workers:     runtime.NumCPU(),
			MaxFileSize: 1 << 20,
			CodeExtensions: []string{
				"java", "js", "jsx", "ts", "tsx", "py", "go", "cpp", "cc", "c", "h", "hpp",
				"cs", "php", "rb", "kt", "swift", "rs", "scala",
			},
			WatchDebounce: 500 * time.Millisecond,
		},
		Context: ContextConfig{
			CodeItemCap:       800,
			DocItemCap:        1000,
			MaxLength:         4000,
			ReviewCodeItemCap: 500,
			ReviewDocItemCap:  300,
			ReviewMaxLength:   6000,
		},
		Chunker: ChunkerConfig{
			URL:      "http://localhost:8081",
			Timeout:  30 * time.Second,
			MaxChars: 1000,
		},
		Queue: QueueConfig{
			PollInterval: time.Second,
			MaxAttempts:  5,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanctx", "data")
	}
	return filepath.Join(home, ".amanctx", "data")
}

// GetUserConfigPath returns the user config path, honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanctx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanctx", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanctx", "config.yaml")
}

// Load builds the effective configuration for the project in dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.overlayFile(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if dir != "" {
		if err := cfg.overlayFile(filepath.Join(dir, ProjectFileName)); err != nil {
			return nil, fmt.Errorf("failed to load project config: %w", err)
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays one explicit file on the defaults, then env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cfg.overlayFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overlayFile decodes path on top of c. yaml.v3 only assigns keys present in
// the document, so explicit zero values in the file win over defaults. A
// missing file is not an error.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANCTX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("AMANCTX_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("AMANCTX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANCTX_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("AMANCTX_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("AMANCTX_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.DefaultTopK = k
		}
	}
	if v := os.Getenv("AMANCTX_DATA_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("AMANCTX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("AMANCTX_CHUNKER_URL"); v != "" {
		c.Chunker.URL = v
	}
	if v := os.Getenv("AMANCTX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'openai', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.MaxInputChars <= 0 {
		return fmt.Errorf("embeddings.max_input_chars must be positive, got %d", c.Embeddings.MaxInputChars)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultTopK <= 0 || c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("search.default_top_k must be in 1..max_top_k (%d), got %d", c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Search.MinShouldMatch < 0 || c.Search.MinShouldMatch > 100 {
		return fmt.Errorf("search.min_should_match must be a percentage, got %d", c.Search.MinShouldMatch)
	}
	if c.Search.CandidateMultiplier < 1 {
		return fmt.Errorf("search.candidate_multiplier must be at least 1, got %d", c.Search.CandidateMultiplier)
	}
	for field, boost := range c.Search.CodeBoosts {
		if boost <= 0 {
			return fmt.Errorf("search.code_boosts.%s must be positive, got %g", field, boost)
		}
	}
	for field, boost := range c.Search.DocBoosts {
		if boost <= 0 {
			return fmt.Errorf("search.doc_boosts.%s must be positive, got %g", field, boost)
		}
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("index.workers must be non-negative, got %d", c.Index.Workers)
	}
	if c.Context.MaxLength <= 0 || c.Context.ReviewMaxLength <= 0 {
		return fmt.Errorf("context max lengths must be positive")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	switch strings.ToLower(c.Server.Transport) {
	case "stdio":
	default:
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}
	return nil
}

// QueuePath returns the queue database path, defaulting into the data dir.
func (c *Config) QueuePath() string {
	if c.Queue.Path != "" {
		return c.Queue.Path
	}
	return filepath.Join(c.Index.DataDir, "queue.db")
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
