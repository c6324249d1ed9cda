// Package config loads the process configuration for stitchkb commands.
//
// Configuration is layered: compiled-in defaults, then an optional TOML
// file, then environment variables. A .env file in the working directory is
// loaded first so local setups can keep credentials out of the shell.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/pipeline"
	"github.com/stitchkb/stitchkb/pkg/stitch"
)

// Config is the full process configuration.
type Config struct {
	Store   StoreConfig   `toml:"store"`
	Queue   QueueConfig   `toml:"queue"`
	Storage StorageConfig `toml:"storage"`
	Archive ArchiveConfig `toml:"archive"`
	Worker  WorkerConfig  `toml:"worker"`
}

// StoreConfig configures the metadata store.
type StoreConfig struct {
	DSN        string `toml:"dsn"`
	RetryLimit int    `toml:"retry_limit"`
	BatchSize  int    `toml:"batch_size"`
}

// QueueConfig configures the message broker.
type QueueConfig struct {
	Addr        string `toml:"addr"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	InputTopic  string `toml:"input_topic"`
	OutputTopic string `toml:"output_topic"`
}

// StorageConfig configures the object bucket. When Endpoint is empty and
// LocalDir is set, a filesystem bucket is used instead.
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	LocalDir  string `toml:"local_dir"`
}

// ArchiveConfig configures the optional MongoDB graph archive. The archive
// is disabled when URI is empty.
type ArchiveConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// WorkerConfig configures the worker process.
type WorkerConfig struct {
	// StatusAddr is the listen address for the health/status endpoint.
	StatusAddr string `toml:"status_addr"`
}

// Default returns the compiled-in defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			RetryLimit: pipeline.DefaultRetryLimit,
			BatchSize:  stitch.DefaultBatchSize,
		},
		Queue: QueueConfig{
			Addr:        "localhost:6379",
			InputTopic:  "stitchkb.documents",
			OutputTopic: "stitchkb.graphs",
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			Bucket: "stitchkb",
		},
		Archive: ArchiveConfig{
			Database:   "stitchkb",
			Collection: "graphs",
		},
		Worker: WorkerConfig{
			StatusAddr: ":8742",
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path, and environment overrides, in that order.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrap(errors.ErrCodeNotFound, err, "config file %q", path)
			}
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "parsing config file %q", path)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides individual settings from STITCHKB_* variables.
func (c *Config) applyEnv() {
	setString(&c.Store.DSN, "STITCHKB_DB_DSN")
	setInt(&c.Store.RetryLimit, "STITCHKB_RETRY_LIMIT")
	setInt(&c.Store.BatchSize, "STITCHKB_BATCH_SIZE")

	setString(&c.Queue.Addr, "STITCHKB_REDIS_ADDR")
	setString(&c.Queue.Password, "STITCHKB_REDIS_PASSWORD")
	setInt(&c.Queue.DB, "STITCHKB_REDIS_DB")
	setString(&c.Queue.InputTopic, "STITCHKB_INPUT_TOPIC")
	setString(&c.Queue.OutputTopic, "STITCHKB_OUTPUT_TOPIC")

	setString(&c.Storage.Endpoint, "STITCHKB_S3_ENDPOINT")
	setString(&c.Storage.Region, "STITCHKB_S3_REGION")
	setString(&c.Storage.AccessKey, "STITCHKB_S3_ACCESS_KEY")
	setString(&c.Storage.SecretKey, "STITCHKB_S3_SECRET_KEY")
	setString(&c.Storage.Bucket, "STITCHKB_S3_BUCKET")
	setBool(&c.Storage.UseSSL, "STITCHKB_S3_USE_SSL")
	setString(&c.Storage.LocalDir, "STITCHKB_STORAGE_DIR")

	setString(&c.Archive.URI, "STITCHKB_MONGO_URI")
	setString(&c.Archive.Database, "STITCHKB_MONGO_DATABASE")
	setString(&c.Archive.Collection, "STITCHKB_MONGO_COLLECTION")

	setString(&c.Worker.StatusAddr, "STITCHKB_STATUS_ADDR")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
