package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ragpipe/internal/domain"
)

// OpenAIConfig holds connection details for the OpenAI-compatible
// embedding and chat endpoint. The API key is read from the environment
// variable named by APIKeyEnv, never stored in the file.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	BatchSize      int    `yaml:"batch_size"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// QdrantConfig contains connection details for a Qdrant search index.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig selects and configures the search index implementation.
type IndexConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QueryConfig configures the retrieval and answering path.
type QueryConfig struct {
	TopK            int     `yaml:"top_k"`
	MaxContextChars int     `yaml:"max_context_chars"`
	MaxRetries      int     `yaml:"max_retries"`
	Temperature     float32 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// IngestConfig bounds the parallel fan-out across documents and the
// outbound embedding call rate.
type IngestConfig struct {
	Concurrency    int     `yaml:"concurrency"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	RequestsBurst  int     `yaml:"requests_burst"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Chunker ChunkerConfig `yaml:"chunker"`
	Index   IndexConfig   `yaml:"index"`
	Query   QueryConfig   `yaml:"query"`
	Ingest  IngestConfig  `yaml:"ingest"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragpipe/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragpipe/config.yaml
// and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that every required key is present before any component
// is constructed. A missing key surfaces as a fatal ConfigError at
// startup, not at call time.
func (cfg *AppConfig) Validate() error {
	if os.Getenv(cfg.OpenAI.APIKeyEnv) == "" {
		return &domain.ConfigError{Key: cfg.OpenAI.APIKeyEnv, Reason: "API key environment variable is not set"}
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		return &domain.ConfigError{Key: "openai.embedding_model", Reason: "required"}
	}
	if cfg.OpenAI.ChatModel == "" {
		return &domain.ConfigError{Key: "openai.chat_model", Reason: "required"}
	}
	if cfg.Index.Type == "qdrant" {
		if cfg.Index.Qdrant == nil || cfg.Index.Qdrant.URL == "" {
			return &domain.ConfigError{Key: "index.qdrant.url", Reason: "required when index.type is qdrant"}
		}
		if cfg.Index.Qdrant.Collection == "" {
			return &domain.ConfigError{Key: "index.qdrant.collection", Reason: "required when index.type is qdrant"}
		}
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragpipe", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Index: IndexConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 30
	}
	if cfg.OpenAI.BatchSize == 0 {
		cfg.OpenAI.BatchSize = 16
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 500
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 50
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.APIKeyEnv == "" {
			cfg.Index.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
	if cfg.Query.MaxContextChars == 0 {
		cfg.Query.MaxContextChars = 6000
	}
	if cfg.Query.MaxRetries == 0 {
		cfg.Query.MaxRetries = 3
	}
	if cfg.Query.Temperature == 0 {
		cfg.Query.Temperature = 0.1
	}
	if cfg.Query.MaxTokens == 0 {
		cfg.Query.MaxTokens = 1024
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.RequestsPerSec == 0 {
		cfg.Ingest.RequestsPerSec = 8.0
	}
	if cfg.Ingest.RequestsBurst == 0 {
		cfg.Ingest.RequestsBurst = 10
	}
}
