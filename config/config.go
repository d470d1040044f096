package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the document QA service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// UploadsConfig controls document upload validation and on-disk storage
type UploadsConfig struct {
	Dir               string   `mapstructure:"dir"`
	MaxBytes          int64    `mapstructure:"max_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

func (u UploadsConfig) Validate() error {
	if strings.TrimSpace(u.Dir) == "" {
		return fmt.Errorf("uploads.dir is required")
	}
	if u.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be > 0")
	}
	if len(u.AllowedExtensions) == 0 {
		return fmt.Errorf("uploads.allowed_extensions must not be empty")
	}
	return nil
}

// LLMConfig contains the language model provider settings used for answer synthesis
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if l.Provider == "openai" && strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key required for the openai provider")
	}
	return nil
}

// EmbeddingConfig selects and configures the embedding backend.
// Vectors from different models are not comparable, so the provider and model
// must stay fixed for the lifetime of an index.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai or local
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (e EmbeddingConfig) Validate() error {
	switch e.Provider {
	case "openai", "local":
	default:
		return fmt.Errorf("embedding.provider must be openai or local, got %q", e.Provider)
	}
	if e.Provider == "local" && e.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0 for the local provider")
	}
	return nil
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Backend      string `mapstructure:"backend"` // memory, pgvector or qdrant
	Collection   string `mapstructure:"collection"`
	SnapshotPath string `mapstructure:"snapshot_path"` // memory backend durability
	QdrantURL    string `mapstructure:"qdrant_url"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key"`
}

func (i IndexConfig) Validate() error {
	switch i.Backend {
	case "memory", "pgvector", "qdrant":
	default:
		return fmt.Errorf("index.backend must be memory, pgvector or qdrant, got %q", i.Backend)
	}
	if i.Backend == "qdrant" && strings.TrimSpace(i.QdrantURL) == "" {
		return fmt.Errorf("index.qdrant_url required for the qdrant backend")
	}
	if strings.TrimSpace(i.Collection) == "" {
		return fmt.Errorf("index.collection is required")
	}
	return nil
}

// RetrievalConfig controls chunking and query-time retrieval
type RetrievalConfig struct {
	ChunkSize            int `mapstructure:"chunk_size"`
	ChunkOverlap         int `mapstructure:"chunk_overlap"`
	TopK                 int `mapstructure:"top_k"`
	MaxConcurrentIngests int `mapstructure:"max_concurrent_ingests"`
}

func (r RetrievalConfig) Validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be > 0")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size)")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres connection string from either the URL or the discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings for the session store
type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./app/config")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DOCQA")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match (DOCQA_*)

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env vars and defaults are enough to run
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Uploads.Validate(); err != nil {
		panic(err)
	}
	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Embedding.Validate(); err != nil {
		panic(err)
	}
	if err := config.Index.Validate(); err != nil {
		panic(err)
	}
	if err := config.Retrieval.Validate(); err != nil {
		panic(err)
	}
	if config.Index.Backend == "pgvector" {
		if err := config.Storage.Postgres.Validate(); err != nil {
			panic(err)
		}
	}
	return &config
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("uploads.dir", "uploaded_docs")
	viper.SetDefault("uploads.max_bytes", int64(10*1024*1024))
	viper.SetDefault("uploads.allowed_extensions", []string{".pdf", ".txt", ".md", ".docx"})
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.batch_size", 32)
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("index.backend", "memory")
	viper.SetDefault("index.collection", "documents")
	viper.SetDefault("index.snapshot_path", "data/index.json")
	viper.SetDefault("retrieval.chunk_size", 500)
	viper.SetDefault("retrieval.chunk_overlap", 0)
	viper.SetDefault("retrieval.top_k", 3)
	viper.SetDefault("retrieval.max_concurrent_ingests", 4)
	viper.SetDefault("storage.redis.host", "")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("storage.redis.session_ttl", "24h")
}
