// Package config loads payflow settings from defaults, an optional YAML
// file, an optional .env file, and environment variables, in that order of
// increasing priority.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/payflow/payflow/pkg/serialization"
)

// Backend names accepted by PAYFLOW_BACKEND
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Delete policies accepted by PAYFLOW_DELETE_POLICY
const (
	DeletePolicyAny      = "any"
	DeletePolicyMatching = "matching"
)

// Configuration errors
var (
	ErrUnknownBackend      = errors.New("unknown storage backend")
	ErrMissingBackendParam = errors.New("storage backend is missing a required setting")
	ErrInvalidEncryptKey   = errors.New("encryption key must be 32 bytes hex encoded")
	ErrUnknownDeletePolicy = errors.New("unknown delete policy")
	ErrInvalidMemoryCap    = errors.New("memory backend cap must not be negative")
)

// Config holds all payflow configuration
type Config struct {
	Environment string `yaml:"environment"`
	Address     string `yaml:"address"`
	LogLevel    string `yaml:"log_level"`

	Storage StorageConfig `yaml:"storage"`

	// Raw replace payloads that are not JSON arrays are rejected instead of
	// normalized to empty.
	StrictInput  bool   `yaml:"strict_input"`
	DeletePolicy string `yaml:"delete_policy"`
}

// StorageConfig selects and parameterizes the snapshot backend
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	SnapshotKey string `yaml:"snapshot_key"`
	FileDir     string `yaml:"file_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`
	EncryptKey  string `yaml:"encrypt_key"`
	MaxMemoryMB int    `yaml:"max_memory_mb"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Environment:  "development",
		Address:      ":8080",
		LogLevel:     "info",
		DeletePolicy: DeletePolicyAny,
		Storage: StorageConfig{
			Backend:     BackendMemory,
			SnapshotKey: "flow",
			FileDir:     "./data/snapshots",
			SQLitePath:  "./data/payflow.db",
			RedisAddr:   "localhost:6379",
			Codec:       "msgpack",
			Compression: string(serialization.CompressionZstd),
			MaxMemoryMB: 64,
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// read if present; PAYFLOW_CONFIG may name a YAML file.
func Load() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("PAYFLOW_CONFIG"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	if err := yaml.NewDecoder(r).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("PAYFLOW_ENV", c.Environment)
	c.Address = getEnv("PAYFLOW_ADDR", c.Address)
	c.LogLevel = getEnv("PAYFLOW_LOG_LEVEL", c.LogLevel)
	c.StrictInput = getEnvBool("PAYFLOW_STRICT_INPUT", c.StrictInput)
	c.DeletePolicy = getEnv("PAYFLOW_DELETE_POLICY", c.DeletePolicy)

	s := &c.Storage
	s.Backend = getEnv("PAYFLOW_BACKEND", s.Backend)
	s.SnapshotKey = getEnv("PAYFLOW_SNAPSHOT_KEY", s.SnapshotKey)
	s.FileDir = getEnv("PAYFLOW_FILE_DIR", s.FileDir)
	s.SQLitePath = getEnv("PAYFLOW_SQLITE_PATH", s.SQLitePath)
	s.PostgresDSN = getEnv("PAYFLOW_POSTGRES_DSN", s.PostgresDSN)
	s.RedisAddr = getEnv("PAYFLOW_REDIS_ADDR", s.RedisAddr)
	s.Codec = getEnv("PAYFLOW_CODEC", s.Codec)
	s.Compression = getEnv("PAYFLOW_COMPRESSION", s.Compression)
	s.EncryptKey = getEnv("PAYFLOW_ENCRYPT_KEY", s.EncryptKey)
	s.MaxMemoryMB = getEnvInt("PAYFLOW_MAX_MEMORY_MB", s.MaxMemoryMB)
}

// Validate checks that the selected backend has what it needs and that the
// serializer settings are usable.
func (c *Config) Validate() error {
	switch c.DeletePolicy {
	case DeletePolicyAny, DeletePolicyMatching:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDeletePolicy, c.DeletePolicy)
	}
	if c.Storage.SnapshotKey == "" {
		return fmt.Errorf("%w: PAYFLOW_SNAPSHOT_KEY", ErrMissingBackendParam)
	}
	if c.Storage.MaxMemoryMB < 0 {
		return fmt.Errorf("%w: PAYFLOW_MAX_MEMORY_MB=%d", ErrInvalidMemoryCap, c.Storage.MaxMemoryMB)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.FileDir == "" {
			return fmt.Errorf("%w: PAYFLOW_FILE_DIR", ErrMissingBackendParam)
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: PAYFLOW_SQLITE_PATH", ErrMissingBackendParam)
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: PAYFLOW_POSTGRES_DSN", ErrMissingBackendParam)
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: PAYFLOW_REDIS_ADDR", ErrMissingBackendParam)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}

	_, err := c.Storage.SerializerConfig()
	return err
}

// SerializerConfig converts the storage settings into a serializer config
func (s StorageConfig) SerializerConfig() (serialization.Config, error) {
	key, err := s.DecodeKey()
	if err != nil {
		return serialization.Config{}, err
	}
	codec, err := serialization.CodecByName(s.Codec)
	if err != nil {
		return serialization.Config{}, err
	}
	compression, err := serialization.ParseCompression(s.Compression)
	if err != nil {
		return serialization.Config{}, err
	}
	cfg := serialization.Config{
		Codec:       codec,
		Compression: compression,
		EncryptKey:  key,
	}
	if err := cfg.Validate(); err != nil {
		return serialization.Config{}, err
	}
	return cfg, nil
}

// DecodeKey returns the raw AES key, or nil when encryption is off
func (s StorageConfig) DecodeKey() ([]byte, error) {
	if s.EncryptKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimSpace(s.EncryptKey))
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidEncryptKey
	}
	return key, nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
