// Package config loads vecview configuration from defaults, a YAML file,
// .env and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/embed"
	"github.com/Yates-Labs/vecview/internal/inspect"
	"github.com/Yates-Labs/vecview/internal/logging"
	"github.com/Yates-Labs/vecview/internal/vectordb"
)

// ProjectConfigName is looked up in the working directory.
const ProjectConfigName = "vecview.yaml"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete vecview configuration.
type Config struct {
	Backend    string           `yaml:"backend"`
	Chromem    ChromemConfig    `yaml:"chromem"`
	Milvus     MilvusConfig     `yaml:"milvus"`
	PGVector   PGVectorConfig   `yaml:"pgvector"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Inspect    InspectConfig    `yaml:"inspect"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	Path      string        `yaml:"path"`
	Compress  bool          `yaml:"compress"`
	Watch     bool          `yaml:"watch"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// MilvusConfig configures the Milvus backend.
type MilvusConfig struct {
	Address       string `yaml:"address"`
	Prefix        string `yaml:"prefix"`
	IDField       string `yaml:"id_field"`
	TextField     string `yaml:"text_field"`
	TextKey       string `yaml:"text_key"`
	MetadataField string `yaml:"metadata_field"`
	VectorField   string `yaml:"vector_field"`
	MetricType    string `yaml:"metric_type"`
}

// PGVectorConfig configures the pgvector backend.
type PGVectorConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"max_conns"`
}

// CatalogConfig configures the filename scan.
type CatalogConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	BatchSize int           `yaml:"batch_size"`
	Workers   int           `yaml:"workers"`
}

// InspectConfig configures collection views.
type InspectConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	Workers      int           `yaml:"workers"`
	PreviewChars int           `yaml:"preview_chars"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Dir       string `yaml:"dir"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
	Stderr    bool   `yaml:"stderr"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EmbeddingsConfig configures query embeddings for search.
type EmbeddingsConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	milvus := vectordb.DefaultMilvusConfig()
	return &Config{
		Backend: vectordb.BackendChromem,
		Chromem: ChromemConfig{
			Path:      "./vector_db",
			CacheSize: vectordb.DefaultSnapshotCacheSize,
			CacheTTL:  vectordb.DefaultSnapshotTTL,
		},
		Milvus: MilvusConfig{
			Address:       milvus.Address,
			Prefix:        milvus.Prefix,
			IDField:       milvus.IDField,
			TextField:     milvus.TextField,
			TextKey:       milvus.TextKey,
			MetadataField: milvus.MetadataField,
			VectorField:   milvus.VectorField,
			MetricType:    milvus.MetricType,
		},
		PGVector: PGVectorConfig{
			Table: "document_chunk",
		},
		Catalog: CatalogConfig{
			TTL:       catalog.DefaultTTL,
			BatchSize: catalog.DefaultBatchSize,
			Workers:   catalog.DefaultWorkers(),
		},
		Inspect: InspectConfig{
			BatchSize:    500,
			Workers:      10,
			PreviewChars: 200,
			CacheSize:    64,
			CacheTTL:     5 * time.Minute,
		},
		Log: LogConfig{
			Level:     "info",
			Dir:       "logs",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    true,
		},
		Server: ServerConfig{
			Addr: ":7860",
		},
		Embeddings: EmbeddingsConfig{
			Model: "text-embedding-3-small",
		},
	}
}

// UserConfigPath returns $XDG_CONFIG_HOME/vecview/config.yaml, falling back
// to ~/.config/vecview/config.yaml.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vecview", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vecview", "config.yaml")
	}
	return filepath.Join(home, ".config", "vecview", "config.yaml")
}

// Load builds the configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. The YAML file at path, or vecview.yaml in dir, or the user config
//  3. .env in dir
//  4. Environment variables
func Load(path, dir string) (*Config, error) {
	cfg := NewConfig()

	file, err := resolveFile(path, dir)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := cfg.loadYAML(file); err != nil {
			return nil, err
		}
	}

	// Load .env file if it exists
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveFile(path, dir string) (string, error) {
	if path != "" {
		if !fileExists(path) {
			return "", fmt.Errorf("config file %s not found", path)
		}
		return path, nil
	}
	if p := filepath.Join(dir, ProjectConfigName); fileExists(p) {
		return p, nil
	}
	if p := UserConfigPath(); fileExists(p) {
		return p, nil
	}
	return "", nil
}

// loadYAML decodes a YAML file over the current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VECVIEW_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("VECVIEW_CHROMEM_PATH"); v != "" {
		c.Chromem.Path = v
	}
	if v := os.Getenv("MILVUS_ADDRESS"); v != "" {
		c.Milvus.Address = v
	}
	if v, ok := os.LookupEnv("VECVIEW_MILVUS_PREFIX"); ok {
		c.Milvus.Prefix = v
	}
	if v := os.Getenv("VECVIEW_PG_DSN"); v != "" {
		c.PGVector.DSN = v
	}
	if v := os.Getenv("VECVIEW_PG_TABLE"); v != "" {
		c.PGVector.Table = v
	}
	if v := os.Getenv("VECVIEW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VECVIEW_LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
	if v := os.Getenv("VECVIEW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("VECVIEW_CATALOG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Catalog.Workers = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("VECVIEW_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = v
	}
}

// Validate checks the configuration for the selected backend.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case vectordb.BackendChromem:
		if c.Chromem.Path == "" {
			return fmt.Errorf("%w: chromem.path is required", ErrInvalidConfig)
		}
	case vectordb.BackendMilvus:
		if c.Milvus.Address == "" {
			return fmt.Errorf("%w: milvus.address is required", ErrInvalidConfig)
		}
	case vectordb.BackendPGVector:
		if c.PGVector.DSN == "" {
			return fmt.Errorf("%w: pgvector.dsn is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: backend must be 'chromem', 'milvus' or 'pgvector', got %q", ErrInvalidConfig, c.Backend)
	}

	if c.Catalog.BatchSize <= 0 {
		return fmt.Errorf("%w: catalog.batch_size must be positive, got %d", ErrInvalidConfig, c.Catalog.BatchSize)
	}
	if c.Catalog.Workers <= 0 {
		return fmt.Errorf("%w: catalog.workers must be positive, got %d", ErrInvalidConfig, c.Catalog.Workers)
	}
	if c.Catalog.TTL <= 0 {
		return fmt.Errorf("%w: catalog.ttl must be positive, got %s", ErrInvalidConfig, c.Catalog.TTL)
	}
	if c.Inspect.BatchSize <= 0 || c.Inspect.Workers <= 0 {
		return fmt.Errorf("%w: inspect.batch_size and inspect.workers must be positive", ErrInvalidConfig)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: log.level must be 'debug', 'info', 'warn', or 'error', got %s", ErrInvalidConfig, c.Log.Level)
	}

	return nil
}

// VectorDB converts the backend sections for vectordb.Open.
func (c *Config) VectorDB() vectordb.Config {
	return vectordb.Config{
		Backend: strings.ToLower(c.Backend),
		Chromem: vectordb.ChromemConfig{
			Path:              c.Chromem.Path,
			Compress:          c.Chromem.Compress,
			SnapshotCacheSize: c.Chromem.CacheSize,
			SnapshotTTL:       c.Chromem.CacheTTL,
		},
		Milvus: vectordb.MilvusConfig{
			Address:       c.Milvus.Address,
			Prefix:        c.Milvus.Prefix,
			IDField:       c.Milvus.IDField,
			TextField:     c.Milvus.TextField,
			TextKey:       c.Milvus.TextKey,
			MetadataField: c.Milvus.MetadataField,
			VectorField:   c.Milvus.VectorField,
			MetricType:    c.Milvus.MetricType,
		},
		PGVector: vectordb.PGVectorConfig{
			DSN:      c.PGVector.DSN,
			Table:    c.PGVector.Table,
			MaxConns: c.PGVector.MaxConns,
		},
	}
}

// CatalogConfig converts the catalog section.
func (c *Config) CatalogConfig() catalog.Config {
	return catalog.Config{
		TTL:       c.Catalog.TTL,
		BatchSize: c.Catalog.BatchSize,
		Workers:   c.Catalog.Workers,
	}
}

// InspectConfig converts the inspect section.
func (c *Config) InspectConfig() inspect.Config {
	return inspect.Config{
		BatchSize:    c.Inspect.BatchSize,
		Workers:      c.Inspect.Workers,
		PreviewChars: c.Inspect.PreviewChars,
		CacheSize:    c.Inspect.CacheSize,
		CacheTTL:     c.Inspect.CacheTTL,
	}
}

// EmbedConfig converts the embeddings section.
func (c *Config) EmbedConfig() embed.Config {
	return embed.Config{
		Model:      c.Embeddings.Model,
		Dimensions: c.Embeddings.Dimensions,
		APIKey:     c.Embeddings.APIKey,
		BaseURL:    c.Embeddings.BaseURL,
	}
}

// LoggingConfig converts the log section.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:         c.Log.Level,
		Dir:           c.Log.Dir,
		MaxSizeMB:     c.Log.MaxSizeMB,
		MaxFiles:      c.Log.MaxFiles,
		WriteToStderr: c.Log.Stderr,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
