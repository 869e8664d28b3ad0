package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server binary needs. Values come from an
// optional YAML file, overridden field by field by environment variables.
type Config struct {
	Env        string `yaml:"env"`
	ListenAddr string `yaml:"listen_addr"`

	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// BlobDir is the filesystem upload root, used unless BlobNATSURL is set.
	BlobDir     string `yaml:"blob_dir"`
	BlobNATSURL string `yaml:"blob_nats_url"`
	BlobBucket  string `yaml:"blob_bucket"`

	AdminToken string `yaml:"admin_token"`

	// CreateRateLimit is the per-IP cap on room creations per minute.
	CreateRateLimit int `yaml:"create_rate_limit"`
}

// Load builds the configuration. If CONFIG_FILE is set (or the path is
// passed explicitly), that YAML file is read first; environment variables
// override it.
func Load(path string) (Config, error) {
	cfg := Config{
		Env:             "dev",
		ListenAddr:      ":8080",
		BlobDir:         "./data/files",
		BlobBucket:      "fekoyaha-files",
		CreateRateLimit: 10,
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.BlobDir = getEnv("BLOB_DIR", cfg.BlobDir)
	cfg.BlobNATSURL = getEnv("BLOB_NATS_URL", cfg.BlobNATSURL)
	cfg.BlobBucket = getEnv("BLOB_BUCKET", cfg.BlobBucket)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)
	cfg.CreateRateLimit = getEnvInt("CREATE_RATE_LIMIT", cfg.CreateRateLimit)

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return def
}
