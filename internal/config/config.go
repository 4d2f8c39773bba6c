// Package config holds operator-level configuration for a Quill process:
// data directory, detector endpoints and credentials, timeouts, and
// resolution thresholds. Values merge from env vars (QUILL_* prefix), an
// optional quill.config.yaml, and defaults via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the QUILL_ prefix
// (e.g. "ner_endpoint" → QUILL_NER_ENDPOINT) and to a YAML field in
// quill.config.yaml.
const (
	KeyDataDir         = "data_dir"
	KeyTaxonomyFile    = "taxonomy_file"
	KeyTransformsFile  = "transforms_file"
	KeyPatternFile     = "pattern_file"
	KeyNEREndpoint     = "ner_endpoint"
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyOpenAIModel     = "openai_model"
	KeyDetectorTimeout = "detector_timeout"
	KeyMinScore        = "min_score"
	KeyGapThreshold    = "gap_threshold"
	KeyMinOverlap      = "min_overlap"
)

// Defaults.
const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultDetectorTimeout = 30 * time.Second
)

// Config is the resolved operator configuration for a Quill process.
type Config struct {
	DataDir         string        // Base directory for local state (~/.quill)
	TaxonomyFile    string        // Taxonomy YAML override (empty = embedded default)
	TransformsFile  string        // Transform YAML override (empty = embedded default)
	PatternFile     string        // Recognizer YAML layered over embedded defaults
	NEREndpoint     string        // Token-classification service URL (empty = disabled)
	OpenAIAPIKey    string        // API key for the LLM detector (empty = disabled)
	OpenAIModel     string        // Model for the LLM detector
	DetectorTimeout time.Duration // Per-detector deadline
	MinScore        float64       // Pattern detector confidence threshold (0 = default)
	GapThreshold    int           // Resolver gap merge threshold in bytes
	MinOverlap      float64       // Scoring minimum overlap fraction
}

// AuditDBPath returns the full path to the run audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("QUILL")
	viper.AutomaticEnv()
	viper.SetDefault(KeyOpenAIModel, DefaultOpenAIModel)
	viper.SetDefault(KeyDetectorTimeout, DefaultDetectorTimeout)
}

// Load reads configuration from Viper (env vars, config file, defaults)
// and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		TaxonomyFile:    viper.GetString(KeyTaxonomyFile),
		TransformsFile:  viper.GetString(KeyTransformsFile),
		PatternFile:     viper.GetString(KeyPatternFile),
		NEREndpoint:     viper.GetString(KeyNEREndpoint),
		OpenAIAPIKey:    viper.GetString(KeyOpenAIAPIKey),
		OpenAIModel:     viper.GetString(KeyOpenAIModel),
		DetectorTimeout: viper.GetDuration(KeyDetectorTimeout),
		MinScore:        viper.GetFloat64(KeyMinScore),
		GapThreshold:    viper.GetInt(KeyGapThreshold),
		MinOverlap:      viper.GetFloat64(KeyMinOverlap),
	}

	// Quickstart fallback for single-user development.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quill"
	}
	return filepath.Join(home, ".quill")
}

func (c *Config) validate() error {
	if c.DetectorTimeout <= 0 {
		return fmt.Errorf("detector_timeout must be positive")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1], got %v", c.MinScore)
	}
	if c.GapThreshold < 0 {
		return fmt.Errorf("gap_threshold must be >= 0, got %d", c.GapThreshold)
	}
	if c.MinOverlap < 0 || c.MinOverlap > 1 {
		return fmt.Errorf("min_overlap must be in [0,1], got %v", c.MinOverlap)
	}
	return nil
}
