// Package config loads reunify settings: defaults, then an optional YAML
// file, then REUNIFY_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/reunify/internal/store"
)

// Config holds the full reunify configuration. The model credential is not
// part of it; it is read from the environment at call time.
type Config struct {
	Listen         string        `yaml:"listen"`
	BaseURL        string        `yaml:"base_url"`
	DBPath         string        `yaml:"db_path"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	LocketTTL      string        `yaml:"locket_ttl"`
	PurgeInterval  time.Duration `yaml:"purge_interval"`
	Gemini         GeminiConfig  `yaml:"gemini"`
	Blob           BlobConfig    `yaml:"blob"`
}

// GeminiConfig selects the model endpoint.
type GeminiConfig struct {
	BaseURL    string        `yaml:"base_url"`
	ImageModel string        `yaml:"image_model"`
	TextModel  string        `yaml:"text_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BlobConfig selects where saved-locket media lives.
type BlobConfig struct {
	Backend string   `yaml:"backend"` // fs | s3
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3 blob backend. Empty keys fall back to the
// default AWS credential chain.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".reunify")
	return &Config{
		Listen:         ":8080",
		BaseURL:        "http://localhost:8080",
		DBPath:         filepath.Join(dir, "reunify.db"),
		LogLevel:       "info",
		LogFormat:      "json",
		MaxUploadBytes: 10 << 20,
		SessionTTL:     2 * time.Hour,
		PurgeInterval:  10 * time.Minute,
		Gemini: GeminiConfig{
			BaseURL:    "https://generativelanguage.googleapis.com",
			ImageModel: "gemini-2.5-flash-image",
			TextModel:  "gemini-2.5-flash",
			Timeout:    2 * time.Minute,
		},
		Blob: BlobConfig{
			Backend: "fs",
			Dir:     filepath.Join(dir, "blobs"),
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"REUNIFY_LISTEN":        &c.Listen,
		"REUNIFY_BASE_URL":      &c.BaseURL,
		"REUNIFY_DB":            &c.DBPath,
		"REUNIFY_LOG_LEVEL":     &c.LogLevel,
		"REUNIFY_LOG_FORMAT":    &c.LogFormat,
		"REUNIFY_LOCKET_TTL":    &c.LocketTTL,
		"REUNIFY_GEMINI_URL":    &c.Gemini.BaseURL,
		"REUNIFY_BLOB_BACKEND":  &c.Blob.Backend,
		"REUNIFY_BLOB_DIR":      &c.Blob.Dir,
		"REUNIFY_S3_BUCKET":     &c.Blob.S3.Bucket,
		"REUNIFY_S3_REGION":     &c.Blob.S3.Region,
		"REUNIFY_S3_ENDPOINT":   &c.Blob.S3.Endpoint,
		"REUNIFY_S3_ACCESS_KEY": &c.Blob.S3.AccessKey,
		"REUNIFY_S3_SECRET_KEY": &c.Blob.S3.SecretKey,
	}
	for name, dst := range strs {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}

	if v := getenv("REUNIFY_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("REUNIFY_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v := getenv("REUNIFY_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REUNIFY_SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if v := getenv("REUNIFY_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REUNIFY_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be > 0")
	}
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("purge_interval must be > 0")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini.timeout must be > 0")
	}
	if err := store.ValidateTTL(c.LocketTTL); err != nil {
		return fmt.Errorf("locket_ttl: %w", err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log_format %q (use json or text)", c.LogFormat)
	}
	switch c.Blob.Backend {
	case "fs":
		if c.Blob.Dir == "" {
			return fmt.Errorf("blob.dir is required for the fs backend")
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported blob.backend %q (use fs or s3)", c.Blob.Backend)
	}
	return nil
}
