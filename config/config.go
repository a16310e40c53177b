// Package config provides configuration loading and management for sitechat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sitechat/sitechat/llm/backends"
)

// Config represents the complete sitechat configuration.
type Config struct {
	Crawl     CrawlConfig     `yaml:"crawl"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
}

// CrawlConfig configures the site crawler.
type CrawlConfig struct {
	// StartURL is the default crawl seed.
	StartURL string `yaml:"start_url"`
	// MaxPages caps the number of pages fetched per crawl.
	MaxPages int `yaml:"max_pages"`
	// MaxDepth caps link-following distance from the seed.
	MaxDepth int `yaml:"max_depth"`
	// Delay is the politeness delay between fetches.
	Delay time.Duration `yaml:"delay"`
	// BaseDomain scopes the crawl; subdomains are included. Derived from
	// StartURL when empty.
	BaseDomain string `yaml:"base_domain"`
	// IgnoredDomains are never followed even when internal.
	IgnoredDomains []string `yaml:"ignored_domains"`
	// OutputFile is the crawl artifact path.
	OutputFile string `yaml:"output_file"`
}

// ChunkConfig configures text chunking.
type ChunkConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// Overlap is carried between consecutive chunks.
	Overlap int `yaml:"overlap"`
	// ChunksFile is the chunk artifact path.
	ChunksFile string `yaml:"chunks_file"`
}

// EmbeddingConfig configures the embedding endpoint.
type EmbeddingConfig struct {
	// BaseURL is the API root (default: http://localhost:11434/v1).
	BaseURL string `yaml:"base_url"`
	// Model is the embedding model identifier.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	// Type is "memory" or "qdrant".
	Type string `yaml:"type"`
	// Qdrant holds Qdrant connection settings when Type is "qdrant".
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig configures the Qdrant connection.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	// Provider is "ollama" or "openai".
	Provider string `yaml:"provider"`
	// Ollama holds local model server settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// OpenAI holds OpenAI-compatible endpoint settings.
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OllamaConfig configures the local model server backend.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
	// TopK is how many chunks are retrieved per question.
	TopK int `yaml:"top_k"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxPages:   100,
			MaxDepth:   3,
			Delay:      2 * time.Second,
			OutputFile: "output.json",
			IgnoredDomains: []string{
				"google.com", "facebook.com", "twitter.com", "x.com",
				"instagram.com", "linkedin.com", "youtube.com",
				"apple.com", "viber.com",
			},
		},
		Chunk: ChunkConfig{
			ChunkSize:  1000,
			Overlap:    200,
			ChunksFile: "chunks.json",
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "nomic-embed-text",
		},
		Store: StoreConfig{
			Type: "memory",
			Qdrant: QdrantConfig{
				URL:        "http://localhost:6333",
				Collection: "sitechat",
			},
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Ollama: OllamaConfig{
				URL:   "http://localhost:11434",
				Model: "llama3:8b-instruct-q4_K_M",
			},
			OpenAI: OpenAIConfig{
				URL:       "http://localhost:8000/v1",
				Model:     "meta-llama/Meta-Llama-3-8B-Instruct",
				APIKeyEnv: "OPENAI_API_KEY",
			},
		},
		Server: ServerConfig{
			Addr: ":8080",
			TopK: 5,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be positive")
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must not be negative")
	}
	if c.Chunk.ChunkSize <= 0 {
		return fmt.Errorf("chunk.chunk_size must be positive")
	}
	if c.Chunk.Overlap < 0 {
		return fmt.Errorf("chunk.overlap must not be negative")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}

	switch c.Store.Type {
	case "memory":
	case "qdrant":
		if c.Store.Qdrant.URL == "" {
			return fmt.Errorf("store.qdrant.url is required")
		}
		if c.Store.Qdrant.Collection == "" {
			return fmt.Errorf("store.qdrant.collection is required")
		}
	default:
		return fmt.Errorf("store.type must be 'memory' or 'qdrant', got %q", c.Store.Type)
	}

	switch c.LLM.Provider {
	case "ollama":
		if err := backends.ValidateModel(c.LLM.Ollama.Model); err != nil {
			return fmt.Errorf("llm.ollama.model: %w", err)
		}
	case "openai":
		if c.LLM.OpenAI.Model == "" {
			return fmt.Errorf("llm.openai.model is required")
		}
	default:
		return fmt.Errorf("llm.provider must be 'ollama' or 'openai', got %q", c.LLM.Provider)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, layered over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Crawl.StartURL != "" {
		c.Crawl.StartURL = other.Crawl.StartURL
	}
	if other.Crawl.MaxPages != 0 {
		c.Crawl.MaxPages = other.Crawl.MaxPages
	}
	if other.Crawl.MaxDepth != 0 {
		c.Crawl.MaxDepth = other.Crawl.MaxDepth
	}
	if other.Crawl.Delay != 0 {
		c.Crawl.Delay = other.Crawl.Delay
	}
	if other.Crawl.BaseDomain != "" {
		c.Crawl.BaseDomain = other.Crawl.BaseDomain
	}
	if len(other.Crawl.IgnoredDomains) > 0 {
		c.Crawl.IgnoredDomains = other.Crawl.IgnoredDomains
	}
	if other.Crawl.OutputFile != "" {
		c.Crawl.OutputFile = other.Crawl.OutputFile
	}

	if other.Chunk.ChunkSize != 0 {
		c.Chunk.ChunkSize = other.Chunk.ChunkSize
	}
	if other.Chunk.Overlap != 0 {
		c.Chunk.Overlap = other.Chunk.Overlap
	}
	if other.Chunk.ChunksFile != "" {
		c.Chunk.ChunksFile = other.Chunk.ChunksFile
	}

	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKeyEnv = other.Embedding.APIKeyEnv
	}

	if other.Store.Type != "" {
		c.Store.Type = other.Store.Type
	}
	if other.Store.Qdrant.URL != "" {
		c.Store.Qdrant.URL = other.Store.Qdrant.URL
	}
	if other.Store.Qdrant.APIKey != "" {
		c.Store.Qdrant.APIKey = other.Store.Qdrant.APIKey
	}
	if other.Store.Qdrant.Collection != "" {
		c.Store.Qdrant.Collection = other.Store.Qdrant.Collection
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Ollama.URL != "" {
		c.LLM.Ollama.URL = other.LLM.Ollama.URL
	}
	if other.LLM.Ollama.Model != "" {
		c.LLM.Ollama.Model = other.LLM.Ollama.Model
	}
	if other.LLM.OpenAI.URL != "" {
		c.LLM.OpenAI.URL = other.LLM.OpenAI.URL
	}
	if other.LLM.OpenAI.Model != "" {
		c.LLM.OpenAI.Model = other.LLM.OpenAI.Model
	}
	if other.LLM.OpenAI.APIKeyEnv != "" {
		c.LLM.OpenAI.APIKeyEnv = other.LLM.OpenAI.APIKeyEnv
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.TopK != 0 {
		c.Server.TopK = other.Server.TopK
	}
}
