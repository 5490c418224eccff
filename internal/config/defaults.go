package config

// DefaultRefusalMessage is returned verbatim for out-of-domain queries.
const DefaultRefusalMessage = "I can only help with UPSC civil services preparation topics. " +
	"Please ask about Indian polity, economy, history, geography, or current affairs."

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/records.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/kotae/data/indices/questions.idx"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/kotae/data/indices/bleve"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/all-MiniLM-L6-v2.onnx"
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
	if cfg.Cache.SimilarityThreshold == 0 {
		cfg.Cache.SimilarityThreshold = 0.80
	}
	if cfg.Cache.TopK == 0 {
		cfg.Cache.TopK = 3
	}
	if cfg.Cache.RefusalMessage == "" {
		cfg.Cache.RefusalMessage = DefaultRefusalMessage
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.ImageModel == "" {
		cfg.Generator.ImageModel = "dall-e-3"
	}
	if cfg.Generator.ImageSize == "" {
		cfg.Generator.ImageSize = "1024x1024"
	}
	if cfg.Generator.TimeoutSeconds == 0 {
		cfg.Generator.TimeoutSeconds = 60
	}
	if cfg.Artifacts.PlaceholderURL == "" {
		cfg.Artifacts.PlaceholderURL = "http://localhost:8080/static/test.png"
	}
	if cfg.Artifacts.CacheDriver == "" {
		cfg.Artifacts.CacheDriver = "memory"
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 400
	}
}
