// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Database, Index, Ingest, Search, Feedback, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// DatabaseConfig selects the SQL backend holding documents, feedback
// counters, index generations and API keys. Driver is "sqlite3" or
// "postgres"; for postgres an empty DSN is built from the host fields.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DataSource returns the driver-specific data source name.
func (d DatabaseConfig) DataSource() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "postgres" {
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	}
	return "moviesearch.db"
}

// IndexConfig locates the on-disk bleve index generations.
type IndexConfig struct {
	DataDir string `yaml:"dataDir"`
	Name    string `yaml:"name"`
}

// IngestConfig controls the dataset ingestion pipeline and its triggers.
type IngestConfig struct {
	Source          string        `yaml:"source"`
	Format          string        `yaml:"format"`
	BatchSize       int           `yaml:"batchSize"`
	OnStartup       bool          `yaml:"onStartup"`
	Interval        time.Duration `yaml:"interval"`
	Watch           bool          `yaml:"watch"`
	Debounce        time.Duration `yaml:"debounce"`
	Force           bool          `yaml:"force"`
	FingerprintPath string        `yaml:"fingerprintPath"`
	LockTTL         time.Duration `yaml:"lockTTL"`
}

// SearchConfig controls query paging and execution limits.
type SearchConfig struct {
	DefaultPageSize int           `yaml:"defaultPageSize"`
	MaxPageSize     int           `yaml:"maxPageSize"`
	RescoreWindow   int           `yaml:"rescoreWindow"`
	Timeout         time.Duration `yaml:"timeout"`
}

// SuggestConfig bounds autocomplete and facet responses.
type SuggestConfig struct {
	MaxSuggestions int `yaml:"maxSuggestions"`
	MaxGenres      int `yaml:"maxGenres"`
}

// FeedbackConfig controls reset parallelism and submission throttling.
type FeedbackConfig struct {
	Slices    int `yaml:"slices"`
	RateLimit int `yaml:"rateLimit"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// MongoConfig controls the optional catalog mirror.
type MongoConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// AnalyticsConfig controls event collection and snapshot persistence.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Ingest.Format {
	case "tmdb", "merged":
	default:
		return fmt.Errorf("config: unsupported ingest format %q", c.Ingest.Format)
	}
	if c.Index.Name == "" {
		return fmt.Errorf("config: index name is required")
	}
	if c.Search.MaxPageSize <= 0 || c.Search.DefaultPageSize <= 0 {
		return fmt.Errorf("config: search page sizes must be positive")
	}
	if c.Search.RescoreWindow < c.Search.MaxPageSize {
		return fmt.Errorf("config: rescoreWindow %d is smaller than maxPageSize %d",
			c.Search.RescoreWindow, c.Search.MaxPageSize)
	}
	if c.Feedback.Slices <= 0 {
		return fmt.Errorf("config: feedback slices must be positive")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("config: ingest batchSize must be positive")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development against an embedded SQLite database.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3001,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "data/moviesearch.db",
			Host:            "localhost",
			Port:            5432,
			Name:            "moviesearch",
			User:            "moviesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Index: IndexConfig{
			DataDir: "data/index",
			Name:    "movies",
		},
		Ingest: IngestConfig{
			Source:    "data/merged_movies_dataset.xlsx",
			Format:    "merged",
			BatchSize: 1000,
			OnStartup: true,
			Debounce:  2 * time.Second,
			LockTTL:   10 * time.Minute,
		},
		Search: SearchConfig{
			DefaultPageSize: 10,
			MaxPageSize:     100,
			RescoreWindow:   10000,
			Timeout:         5 * time.Second,
		},
		Suggest: SuggestConfig{
			MaxSuggestions: 10,
			MaxGenres:      100,
		},
		Feedback: FeedbackConfig{
			Slices:    4,
			RateLimit: 60,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "moviesearch",
			Topics: KafkaTopics{
				IndexComplete:   "movies.index.complete",
				AnalyticsEvents: "movies.analytics",
			},
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "moviesearch",
			Collection: "movies",
		},
		Analytics: AnalyticsConfig{
			BufferSize:       1000,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads MS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MS_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MS_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MS_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("MS_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MS_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("MS_INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("MS_INGEST_SOURCE"); v != "" {
		cfg.Ingest.Source = v
	}
	if v := os.Getenv("MS_INGEST_FORMAT"); v != "" {
		cfg.Ingest.Format = v
	}
	if v := os.Getenv("MS_INGEST_FORCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ingest.Force = b
		}
	}
	if v := os.Getenv("MS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("MS_MONGODB_URI"); v != "" {
		cfg.Mongo.URI = v
		cfg.Mongo.Enabled = true
	}
	if v := os.Getenv("MS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
