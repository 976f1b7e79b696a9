// Package config provides configuration loading and structs for the emaki server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/emaki/internal/extract"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool               `yaml:"debug"`
	EnvFile      string             `yaml:"env_file"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Image        ImageConfig        `yaml:"image"`
	Watch        WatchConfig        `yaml:"watch"`
	Slideshow    SlideshowConfig    `yaml:"slideshow"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database, the scene index and generated storyboards.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	OutputDir      string `yaml:"output_dir"`
}

// Embedding providers.
const (
	EmbeddingProviderONNX = "onnx"
	EmbeddingProviderHTTP = "http"
	EmbeddingProviderMock = "mock"
)

// EmbeddingConfig selects and configures the sentence embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	ModelPath      string `yaml:"model_path"`
	TokenizerPath  string `yaml:"tokenizer_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the per-request timeout for HTTP embedding calls.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// APIKey returns the provider key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// SegmentationConfig holds scene segmentation settings.
type SegmentationConfig struct {
	// Threshold is the minimum similarity at which adjacent sentences join the same scene.
	// A pointer so that an explicit 0 survives ApplyDefaults.
	Threshold *float64 `yaml:"threshold"`
}

// ThresholdOrDefault returns the configured threshold, or DefaultThreshold when unset.
func (s *SegmentationConfig) ThresholdOrDefault() float64 {
	if s.Threshold != nil {
		return *s.Threshold
	}
	return DefaultThreshold
}

// Image providers.
const (
	ImageProviderTogether    = "together"
	ImageProviderPlaceholder = "placeholder"
)

// ImageConfig selects and configures the image generation provider.
type ImageConfig struct {
	Provider       string `yaml:"provider"`
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	Steps          int    `yaml:"steps"`
	Style          string `yaml:"style"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the per-request timeout for image generation calls.
func (i *ImageConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// APIKey returns the provider key from the configured environment variable.
func (i *ImageConfig) APIKey() string {
	if i.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(i.APIKeyEnv)
}

// WatchConfig holds inbox watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// SlideshowConfig holds terminal slideshow settings.
type SlideshowConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Interval returns the auto-advance interval.
func (s *SlideshowConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Load reads and parses the config file at path, loads the env file, expands paths, and applies defaults.
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
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.OutputDir = expandPath(cfg.Storage.OutputDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.TokenizerPath != "" {
		cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if cfg.EnvFile != "" {
		if err := LoadEnvFile(expandPath(cfg.EnvFile, configDir)); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks provider names, numeric settings and that every watched extension can be read.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case EmbeddingProviderONNX, EmbeddingProviderHTTP, EmbeddingProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q (supported: onnx, http, mock)", c.Embedding.Provider)
	}
	switch c.Image.Provider {
	case ImageProviderTogether, ImageProviderPlaceholder:
	default:
		return fmt.Errorf("unknown image provider %q (supported: together, placeholder)", c.Image.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Image.Width <= 0 || c.Image.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Image.Width, c.Image.Height)
	}
	extractor := extract.NewExtractor()
	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !extractor.Supports(ext) {
			return fmt.Errorf("no story reader for watch extension %q (supported: %s)", ext, strings.Join(extract.SupportedExtensions, ", "))
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
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
