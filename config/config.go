package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Segmentation modes.
const (
	ModePages  = "pages"
	ModeChunks = "chunks"
)

// Chunk id strategies.
const (
	IDStrategyHash   = "hash"
	IDStrategyNative = "native"
)

// Model providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config holds application configuration
type Config struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Ollama struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"ollama"`
	Embeddings struct {
		Provider      string `yaml:"provider"`
		Model         string `yaml:"model"`
		Dimension     int    `yaml:"dimension"`
		Bits          int    `yaml:"bits"`
		BatchSize     int    `yaml:"batch_size"`
		BatchPacingMS int    `yaml:"batch_pacing_ms"`
	} `yaml:"embeddings"`
	Generation struct {
		Provider     string  `yaml:"provider"`
		DefaultModel string  `yaml:"default_model"`
		MaxTokens    int     `yaml:"max_tokens"`
		Temperature  float64 `yaml:"temperature"`
		Stream       bool    `yaml:"stream"`
		SystemPrompt string  `yaml:"system_prompt"`
	} `yaml:"generation"`
	Reranker struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"reranker"`
	Processing struct {
		Mode         string `yaml:"mode"`
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
		MinPageWords int    `yaml:"min_page_words"`
		IDStrategy   string `yaml:"id_strategy"`
	} `yaml:"processing"`
	Retrieval struct {
		TopK                int     `yaml:"top_k"`
		TopN                int     `yaml:"top_n"`
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		Approximate         bool    `yaml:"approximate"`
	} `yaml:"retrieval"`
	Chat struct {
		MemoryTokenLimit int `yaml:"memory_token_limit"`
	} `yaml:"chat"`
	Paths struct {
		UploadDir    string `yaml:"upload_dir"`
		ProcessedDir string `yaml:"processed_dir"`
		LogFile      string `yaml:"log_file"`
	} `yaml:"paths"`
	Documents struct {
		SupportedFormats []string `yaml:"supported_formats"`
	} `yaml:"documents"`
}

var envVarPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// Load loads configuration from the given path, falling back to defaults
// when the file does not exist. Secrets written as ${VAR} placeholders are
// resolved from the environment after a best-effort .env load.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".paperchat", "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save() error {
	configDir := filepath.Join(os.Getenv("HOME"), ".paperchat")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Validate rejects configurations that would corrupt data or fail
// mid-ingestion. Correctness-critical fields are never defaulted here.
func (c *Config) Validate() error {
	switch c.Processing.IDStrategy {
	case IDStrategyHash, IDStrategyNative:
	default:
		return fmt.Errorf("unknown id strategy %q (want %q or %q)",
			c.Processing.IDStrategy, IDStrategyHash, IDStrategyNative)
	}

	switch c.Processing.Mode {
	case ModePages, ModeChunks:
	default:
		return fmt.Errorf("unknown segmentation mode %q (want %q or %q)",
			c.Processing.Mode, ModePages, ModeChunks)
	}

	if c.Embeddings.Bits != 32 {
		return fmt.Errorf("unsupported vector width %d bits: the vector store holds 32-bit components", c.Embeddings.Bits)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be set")
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive")
	}

	if err := validProvider(c.Embeddings.Provider); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if err := validProvider(c.Generation.Provider); err != nil {
		return fmt.Errorf("generation: %w", err)
	}

	if c.Processing.Mode == ModeChunks && c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			c.Processing.ChunkOverlap, c.Processing.ChunkSize)
	}

	if c.Reranker.Enabled && c.Reranker.Endpoint == "" {
		return fmt.Errorf("reranker enabled but no endpoint configured")
	}

	return nil
}

// BatchPacing returns the delay inserted between embedding batches.
func (c *Config) BatchPacing() time.Duration {
	return time.Duration(c.Embeddings.BatchPacingMS) * time.Millisecond
}

func validProvider(name string) error {
	switch name {
	case ProviderOllama, ProviderOpenAI:
		return nil
	}
	return fmt.Errorf("unknown provider %q (want %q or %q)", name, ProviderOllama, ProviderOpenAI)
}

// resolveSecrets replaces ${VAR} placeholders with environment values.
func (c *Config) resolveSecrets() error {
	fields := []*string{
		&c.Database.ConnectionString,
		&c.Reranker.APIKey,
	}
	for _, f := range fields {
		if m := envVarPattern.FindStringSubmatch(*f); m != nil {
			v, ok := os.LookupEnv(m[1])
			if !ok {
				return fmt.Errorf("environment variable %s not set", m[1])
			}
			*f = v
		}
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Ollama.BaseURL = "http://localhost:11434"

	cfg.Embeddings.Provider = ProviderOllama
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.Dimension = 768
	cfg.Embeddings.Bits = 32
	cfg.Embeddings.BatchSize = 40
	cfg.Embeddings.BatchPacingMS = 100

	cfg.Generation.Provider = ProviderOllama
	cfg.Generation.DefaultModel = "llama3.2"
	cfg.Generation.MaxTokens = 600
	cfg.Generation.Temperature = 0.1
	cfg.Generation.Stream = true
	cfg.Generation.SystemPrompt = "You are an assistant that answers questions using the provided document excerpts. Rely on the excerpts first and say so when they do not contain the answer."

	cfg.Processing.Mode = ModeChunks
	cfg.Processing.ChunkSize = 512
	cfg.Processing.ChunkOverlap = 50
	cfg.Processing.MinPageWords = 10
	cfg.Processing.IDStrategy = IDStrategyHash

	cfg.Retrieval.TopK = 5
	cfg.Retrieval.TopN = 3
	cfg.Retrieval.SimilarityThreshold = 0.35
	cfg.Retrieval.Approximate = false

	cfg.Chat.MemoryTokenLimit = 3000

	homeDir := os.Getenv("HOME")
	cfg.Paths.UploadDir = filepath.Join(homeDir, "paperchat", "unprocessed")
	cfg.Paths.ProcessedDir = filepath.Join(homeDir, "paperchat", "processed")
	cfg.Paths.LogFile = filepath.Join(homeDir, ".paperchat", "paperchat.log")

	cfg.Documents.SupportedFormats = []string{"pdf", "epub", "txt"}

	return cfg
}
