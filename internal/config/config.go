package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SemanticPGVector = "pgvector"
	SemanticQdrant   = "qdrant"
	SemanticNone     = "none"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Database  DatabaseConfig   `json:"database"`
	Library   LibraryConfig    `json:"library"`
	Semantic  SemanticConfig   `json:"semantic"`
	Embed     EmbedConfig      `json:"embed"`
	FileStore FileStoreConfig  `json:"file_store"`
	Reindex   ReindexConfig    `json:"reindex"`
	CORS      []string         `json:"cors"`

	// RateLimitMs is the minimum interval between uploads from one client.
	RateLimitMs int64 `json:"rate_limit_ms"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	Path     string `json:"path"`
}

type LibraryConfig struct {
	PageMaxChars  int   `json:"page_max_chars"`
	ChunkSize     int   `json:"chunk_size"`
	ChunkOverlap  int   `json:"chunk_overlap"`
	MaxUploadSize int64 `json:"max_upload_size"`
}

type SemanticConfig struct {
	Backend      string       `json:"backend"`
	Qdrant       QdrantConfig `json:"qdrant"`
	IndexTimeout int          `json:"index_timeout"`
	Parallelism  int          `json:"parallelism"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	APIKey     string `json:"api_key"`
	UseTLS     bool   `json:"use_tls"`
	Collection string `json:"collection"`
	Dimension  uint64 `json:"dimension"`
}

type EmbedConfig struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Data      interface{} `json:"data"`
	CacheSize int         `json:"cache_size"`
	CacheTTL  int         `json:"cache_ttl"`
	Retry     RetryConfig `json:"retry"`
	DBCache   bool        `json:"db_cache"`

	// DBCacheMaxAgeDays is how long rows of the db cache are kept.
	DBCacheMaxAgeDays int `json:"db_cache_max_age_days"`

	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks []EmbedProviderConfig `json:"fallbacks"`
}

type EmbedProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type RetryConfig struct {
	Attempts uint `json:"attempts"`
	DelayMs  int  `json:"delay_ms"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ReindexConfig struct {
	Spec  string `json:"spec"`
	Batch int    `json:"batch"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates the configuration in place.
func (c *Config) Normalize() error {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if err := c.Database.normalize(); err != nil {
		return err
	}
	if c.Library.PageMaxChars <= 0 {
		c.Library.PageMaxChars = 4000
	}
	if c.Library.ChunkSize <= 0 {
		c.Library.ChunkSize = 1000
	}
	if c.Library.ChunkOverlap <= 0 {
		c.Library.ChunkOverlap = min(200, c.Library.ChunkSize/5)
	}
	if c.Library.ChunkOverlap >= c.Library.ChunkSize {
		return fmt.Errorf("library.chunk_overlap must be smaller than library.chunk_size")
	}
	if c.Library.MaxUploadSize <= 0 {
		c.Library.MaxUploadSize = 20 * 1024 * 1024
	}
	if err := c.Semantic.normalize(c.Database.Driver); err != nil {
		return err
	}
	if c.Semantic.Backend != SemanticNone && strings.TrimSpace(c.Embed.Provider) == "" {
		return fmt.Errorf("embed.provider is required when semantic.backend is %s", c.Semantic.Backend)
	}
	if c.Embed.Retry.Attempts == 0 {
		c.Embed.Retry.Attempts = 3
	}
	if c.Embed.Retry.DelayMs <= 0 {
		c.Embed.Retry.DelayMs = 500
	}
	if c.Embed.DBCache && c.Database.Driver != DriverPostgres {
		return fmt.Errorf("embed.db_cache requires the postgres driver")
	}
	if c.Embed.DBCacheMaxAgeDays <= 0 {
		c.Embed.DBCacheMaxAgeDays = 30
	}
	c.FileStore.Type = strings.ToLower(strings.TrimSpace(c.FileStore.Type))
	if c.Reindex.Batch <= 0 {
		c.Reindex.Batch = 20
	}
	if c.Reindex.Spec == "" {
		c.Reindex.Spec = "*/10 * * * *"
	}
	return nil
}

func (d *DatabaseConfig) normalize() error {
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	if d.Driver == "" {
		d.Driver = DriverSQLite
	}
	switch d.Driver {
	case DriverPostgres:
		if d.DSN == "" && d.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres")
		}
		if d.Port == 0 {
			d.Port = 5432
		}
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite")
	}
	return nil
}

func (s *SemanticConfig) normalize(driver string) error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = SemanticNone
	}
	switch s.Backend {
	case SemanticNone:
	case SemanticPGVector:
		if driver != DriverPostgres {
			return fmt.Errorf("semantic.backend pgvector requires the postgres driver")
		}
	case SemanticQdrant:
		if s.Qdrant.Host == "" {
			return fmt.Errorf("semantic.qdrant.host is required")
		}
		if s.Qdrant.Port == 0 {
			s.Qdrant.Port = 6334
		}
		if s.Qdrant.Collection == "" {
			s.Qdrant.Collection = "library_chunks"
		}
		if s.Qdrant.Dimension == 0 {
			return fmt.Errorf("semantic.qdrant.dimension is required")
		}
	default:
		return fmt.Errorf("semantic.backend must be pgvector, qdrant or none")
	}
	if s.IndexTimeout <= 0 {
		s.IndexTimeout = 120
	}
	if s.Parallelism <= 0 {
		s.Parallelism = 4
	}
	return nil
}
