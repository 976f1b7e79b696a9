package config

// DefaultThreshold is the scene similarity threshold used when none is configured.
const DefaultThreshold = 0.7

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/emaki/data/db/stories.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/emaki/data/indices/scenes"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "/usr/local/var/emaki/stories"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingProviderONNX
	}
	if cfg.Embedding.Provider == EmbeddingProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/emaki/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Provider == EmbeddingProviderHTTP {
		if cfg.Embedding.Endpoint == "" {
			cfg.Embedding.Endpoint = "https://api.openai.com"
		}
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
		if cfg.Embedding.APIKeyEnv == "" {
			cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Image.Provider == "" {
		cfg.Image.Provider = ImageProviderTogether
	}
	if cfg.Image.Endpoint == "" {
		cfg.Image.Endpoint = "https://api.together.xyz"
	}
	if cfg.Image.Model == "" {
		cfg.Image.Model = "black-forest-labs/FLUX.1-schnell-Free"
	}
	if cfg.Image.Width == 0 {
		cfg.Image.Width = 1024
	}
	if cfg.Image.Height == 0 {
		cfg.Image.Height = 768
	}
	if cfg.Image.Steps == 0 {
		cfg.Image.Steps = 1
	}
	if cfg.Image.Style == "" {
		cfg.Image.Style = "realistic"
	}
	if cfg.Image.APIKeyEnv == "" {
		cfg.Image.APIKeyEnv = "TOGETHER_AI_API_KEY"
	}
	if cfg.Image.TimeoutSeconds == 0 {
		cfg.Image.TimeoutSeconds = 120
	}
	if cfg.Image.MaxRetries == 0 {
		cfg.Image.MaxRetries = 3
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
	if cfg.Slideshow.IntervalSeconds == 0 {
		cfg.Slideshow.IntervalSeconds = 5
	}
}
