package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Collection      string `mapstructure:"collection"`
	APIKey          string `mapstructure:"api_key"`
	UseTLS          bool   `mapstructure:"use_tls"`
	VectorDimension int    `mapstructure:"vector_dimension"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

type GuardrailsConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	APIKey              string  `mapstructure:"api_key"`
	CopyrightConfidence float64 `mapstructure:"copyright_confidence"`
}

type IngestConfig struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	SimilarityThreshold float32 `mapstructure:"similarity_threshold"`
}

type PoolConfig struct {
	RotationSize        int           `mapstructure:"rotation_size"`
	BonusCandidates     int           `mapstructure:"bonus_candidates"`
	HighFreqMinCount    int           `mapstructure:"high_freq_min_count"`
	RecencyWindow       time.Duration `mapstructure:"recency_window"`
	CheckTimeout        time.Duration `mapstructure:"check_timeout"`
	FailureThreshold    int           `mapstructure:"failure_threshold"`
	BreakerCooldown     time.Duration `mapstructure:"breaker_cooldown"`
	DefaultFrequencyMin int           `mapstructure:"default_frequency_minutes"`
}

type SchedulerConfig struct {
	Resolution        time.Duration `mapstructure:"resolution"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	PoolCheckInterval time.Duration `mapstructure:"pool_check_interval"`
	VectorGCTime      string        `mapstructure:"vector_gc_time"` // daily "HH:MM"
	VectorRetention   time.Duration `mapstructure:"vector_retention"`
}

type ScrapeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ArchiveConfig struct {
	Type      string `mapstructure:"type"` // none, s3
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/contextpool.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "context_units")
	v.SetDefault("qdrant.vector_dimension", 1024)
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("guardrails.base_url", "http://localhost:8090")
	v.SetDefault("guardrails.copyright_confidence", 0.7)
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 150)
	v.SetDefault("ingest.similarity_threshold", 0.98)
	v.SetDefault("pool.rotation_size", 2)
	v.SetDefault("pool.bonus_candidates", 10)
	v.SetDefault("pool.high_freq_min_count", 2)
	// 5 check cycles at 10 minutes each; must track scheduler.pool_check_interval.
	v.SetDefault("pool.recency_window", 50*time.Minute)
	v.SetDefault("pool.check_timeout", 120*time.Second)
	v.SetDefault("pool.failure_threshold", 5)
	v.SetDefault("pool.breaker_cooldown", 24*time.Hour)
	v.SetDefault("pool.default_frequency_minutes", 60)
	v.SetDefault("scheduler.resolution", time.Second)
	v.SetDefault("scheduler.reconcile_interval", 5*time.Minute)
	v.SetDefault("scheduler.pool_check_interval", 10*time.Minute)
	v.SetDefault("scheduler.vector_gc_time", "03:30")
	v.SetDefault("scheduler.vector_retention", 90*24*time.Hour)
	v.SetDefault("scrape.base_url", "http://localhost:8070")
	v.SetDefault("archive.type", "none")
	v.SetDefault("archive.endpoint", "localhost:9000")
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("archive.bucket", "contextpool-raw")
	v.SetDefault("archive.region", "us-east-1")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")
	v.BindEnv("guardrails.api_key", "GUARDRAILS_API_KEY")
	v.BindEnv("scrape.api_key", "SCRAPE_API_KEY")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
