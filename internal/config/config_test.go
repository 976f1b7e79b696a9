package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
embedding:
  provider: mock
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Embedding.Provider != EmbeddingProviderMock || cfg.Embedding.Dimensions != 8 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if got := cfg.Segmentation.ThresholdOrDefault(); got != DefaultThreshold {
		t.Errorf("threshold = %v, want %v", got, DefaultThreshold)
	}
}

func TestLoad_explicitZeroThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
embedding:
  provider: mock
segmentation:
  threshold: 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Segmentation.Threshold == nil || *cfg.Segmentation.Threshold != 0 {
		t.Errorf("explicit zero threshold should be kept, got %v", cfg.Segmentation.Threshold)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/stories.db"
  output_dir: "./stories"
embedding:
  provider: mock
watch:
  directories: ["./inbox"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "stories.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if want := filepath.Join(dir, "stories"); cfg.Storage.OutputDir != want {
		t.Errorf("output_dir = %s, want %s", cfg.Storage.OutputDir, want)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
	if !cfg.Watch.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
}

func TestLoad_envFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("EMAKI_TEST_IMAGE_KEY=secret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	content := `
env_file: "./.env"
embedding:
  provider: mock
image:
  api_key_env: EMAKI_TEST_IMAGE_KEY
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("EMAKI_TEST_IMAGE_KEY") })
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Image.APIKey(); got != "secret" {
		t.Errorf("APIKey() = %q, want secret", got)
	}
}

func TestLoad_missingEnvFileIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
env_file: "./missing.env"
embedding:
  provider: mock
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoad_unknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  provider: magic\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown embedding provider")
	}
}

func TestValidate_watchExtensions(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Extensions: []string{"txt", ".MD"}}}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("txt and .MD should be accepted: %v", err)
	}
	cfg.Watch.Extensions = append(cfg.Watch.Extensions, ".xlsx")
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for .xlsx")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != EmbeddingProviderONNX || cfg.Embedding.ModelPath == "" {
		t.Errorf("default embedding: %+v", cfg.Embedding)
	}
	if cfg.Image.Model != "black-forest-labs/FLUX.1-schnell-Free" {
		t.Errorf("default image model: got %s", cfg.Image.Model)
	}
	if cfg.Image.Width != 1024 || cfg.Image.Height != 768 || cfg.Image.Steps != 1 {
		t.Errorf("default image size: %dx%d steps=%d", cfg.Image.Width, cfg.Image.Height, cfg.Image.Steps)
	}
	if cfg.Slideshow.Interval().Seconds() != 5 {
		t.Errorf("default slideshow interval: %v", cfg.Slideshow.Interval())
	}
	if len(cfg.Watch.Extensions) != 4 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_httpEmbedding(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Provider: EmbeddingProviderHTTP}}
	ApplyDefaults(cfg)
	if cfg.Embedding.Endpoint == "" || cfg.Embedding.Model == "" || cfg.Embedding.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("http embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.ModelPath != "" {
		t.Errorf("model_path should stay empty for http provider, got %s", cfg.Embedding.ModelPath)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost", Port: 9090},
		Storage:   StorageConfig{DatabasePath: "/tmp/db"},
		Embedding: EmbeddingConfig{Provider: EmbeddingProviderMock},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
