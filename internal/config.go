package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultBlockSize  = 4 * KiB
	DefaultChunkSize  = 1 * GiB
	DefaultEngine     = "exact"
	DefaultTargetTime = 10 * time.Second
)

// EngineConfig holds the knobs handed to the dedup engine. Only the exact
// engine ships with this repository; it honours SimilarityThreshold == 1.
type EngineConfig struct {
	Name                string  `toml:"name" json:"name"`
	CompressionRatio    float64 `toml:"compression_ratio" json:"compression_ratio"`
	SimilarityThreshold float64 `toml:"similarity_threshold" json:"similarity_threshold"`
	BatchSize           int     `toml:"batch_size" json:"batch_size"`
	NumWorkers          int     `toml:"num_workers" json:"num_workers"`
	EnableBloom         bool    `toml:"enable_bloom" json:"enable_bloom"`
	TargetTimeMs        int64   `toml:"target_time_ms" json:"target_time_ms"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint" json:"endpoint,omitempty"`
	Region    string `toml:"region" json:"region,omitempty"`
	AccessKey string `toml:"access_key" json:"-"`
	SecretKey string `toml:"secret_key" json:"-"`
}

type UploadConfig struct {
	Endpoint  string `toml:"endpoint" json:"endpoint,omitempty"`
	Bucket    string `toml:"bucket" json:"bucket,omitempty"`
	AccessKey string `toml:"access_key" json:"-"`
	SecretKey string `toml:"secret_key" json:"-"`
	UseSSL    bool   `toml:"use_ssl" json:"use_ssl,omitempty"`
}

type Config struct {
	BlockSize   int          `toml:"block_size" json:"block_size"`
	ChunkSize   int64        `toml:"chunk_size" json:"chunk_size"`
	TextMode    bool         `toml:"text_mode" json:"text_mode"`
	Compression string       `toml:"compression" json:"compression"`
	ReportPath  string       `toml:"report_path" json:"-"`
	MetaAddr    string       `toml:"meta_addr" json:"-"`
	Retries     int          `toml:"retries" json:"-"`
	HistoryKeep int          `toml:"history_keep" json:"-"`
	Engine      EngineConfig `toml:"engine" json:"engine"`
	S3          S3Config     `toml:"s3" json:"-"`
	Upload      UploadConfig `toml:"upload" json:"-"`
}

func NewConfig() *Config {
	return &Config{
		BlockSize:   DefaultBlockSize,
		ChunkSize:   DefaultChunkSize,
		TextMode:    false,
		Compression: "none",
		Retries:     3,
		HistoryKeep: 1000,
		Engine: EngineConfig{
			Name:                DefaultEngine,
			CompressionRatio:    0.01,
			SimilarityThreshold: 1,
			BatchSize:           2000000000,
			NumWorkers:          2,
			EnableBloom:         false,
			TargetTimeMs:        DefaultTargetTime.Milliseconds(),
		},
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// LoadConfig reads a TOML file over the defaults. Keys absent from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML '%s': %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if !Exists(f) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logger.Warnf("failed to load env file %s: %v", f, err)
			continue
		}
		logger.Debugf("loaded env file %s", f)
	}
}

// ApplyEnv fills credentials that were left empty from the environment.
func (c *Config) ApplyEnv() {
	if c.S3.AccessKey == "" {
		c.S3.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.S3.SecretKey == "" {
		c.S3.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if c.Upload.AccessKey == "" {
		c.Upload.AccessKey = os.Getenv("MINIO_ROOT_USER")
	}
	if c.Upload.SecretKey == "" {
		c.Upload.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")
	}
	if c.MetaAddr == "" {
		c.MetaAddr = os.Getenv("BLOCKDEDUP_META_ADDR")
	}
}

func (c *Config) TargetTime() time.Duration {
	return time.Duration(c.Engine.TargetTimeMs) * time.Millisecond
}

func (c *Config) Validate() error {
	switch {
	case c.BlockSize <= 0:
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidConf, c.BlockSize)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConf, c.ChunkSize)
	case !c.TextMode && c.ChunkSize < int64(c.BlockSize):
		return fmt.Errorf("%w: chunk size %d is smaller than block size %d", ErrInvalidConf, c.ChunkSize, c.BlockSize)
	case c.TextMode && c.ChunkSize < 4:
		return fmt.Errorf("%w: chunk size %d cannot hold a UTF-8 character", ErrInvalidConf, c.ChunkSize)
	case c.Engine.Name == "":
		return fmt.Errorf("%w: engine name is empty", ErrInvalidConf)
	case c.Engine.TargetTimeMs < 0:
		return fmt.Errorf("%w: target time must not be negative", ErrInvalidConf)
	case c.HistoryKeep < 0:
		return fmt.Errorf("%w: history_keep must not be negative", ErrInvalidConf)
	case c.Upload.Endpoint != "" && c.Upload.Bucket == "":
		return fmt.Errorf("%w: upload endpoint set without a bucket", ErrInvalidConf)
	}
	return nil
}
