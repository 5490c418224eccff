// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record database and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	IndexPath        string `yaml:"index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// CacheConfig holds the similarity gate settings.
type CacheConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for a stored
	// question to be reused (1 = exact match).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// TopK is how many nearest candidates to examine before accepting the best.
	TopK           int    `yaml:"top_k"`
	RefusalMessage string `yaml:"refusal_message"`
}

// GeneratorConfig holds the OpenAI-compatible generator settings.
type GeneratorConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyFile     string `yaml:"api_key_file"`
	Model          string `yaml:"model"`
	ImageModel     string `yaml:"image_model"`
	ImageSize      string `yaml:"image_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ClassifierConfig holds the relevance gate settings.
type ClassifierConfig struct {
	// Enabled defaults to true when unset.
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault returns whether the classifier is on; defaults to true when unset.
func (c *ClassifierConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// ArtifactsConfig holds artifact (image) production settings.
type ArtifactsConfig struct {
	// TestMode substitutes PlaceholderURL for real image generation unless a
	// request overrides it. Defaults to true when unset to avoid accidental
	// image charges during development.
	TestMode       *bool  `yaml:"test_mode"`
	PlaceholderURL string `yaml:"placeholder_url"`
	CacheDriver    string `yaml:"cache_driver"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
}

// TestModeOrDefault returns the default test mode; true when unset.
func (a *ArtifactsConfig) TestModeOrDefault() bool {
	if a.TestMode != nil {
		return *a.TestMode
	}
	return true
}

// WatchConfig holds store drift watch settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Generator.APIKeyFile != "" {
		cfg.Generator.APIKeyFile = expandPath(cfg.Generator.APIKeyFile, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
