package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, DefaultOpenAIModel, cfg.OpenAIModel)
	assert.Equal(t, DefaultDetectorTimeout, cfg.DetectorTimeout)
	assert.Zero(t, cfg.GapThreshold)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QUILL_DATA_DIR", "/tmp/quill-test")
	t.Setenv("QUILL_NER_ENDPOINT", "http://localhost:9000/ner")
	t.Setenv("QUILL_OPENAI_MODEL", "gpt-4o")
	t.Setenv("QUILL_GAP_THRESHOLD", "2")
	t.Setenv("QUILL_MIN_OVERLAP", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/quill-test", cfg.DataDir)
	assert.Equal(t, "http://localhost:9000/ner", cfg.NEREndpoint)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, 2, cfg.GapThreshold)
	assert.InDelta(t, 0.5, cfg.MinOverlap, 1e-9)
}

func TestLoadOpenAIKeyFallback(t *testing.T) {
	t.Setenv("QUILL_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.OpenAIAPIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("QUILL_MIN_OVERLAP", "1.5")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{DetectorTimeout: time.Second}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero timeout", func(c *Config) { c.DetectorTimeout = 0 }, true},
		{"negative gap", func(c *Config) { c.GapThreshold = -1 }, true},
		{"min score above one", func(c *Config) { c.MinScore = 1.2 }, true},
		{"negative overlap", func(c *Config) { c.MinOverlap = -0.1 }, true},
		{"boundary values ok", func(c *Config) { c.MinScore = 1; c.MinOverlap = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuditDBPath(t *testing.T) {
	cfg := Config{DataDir: "/var/lib/quill"}
	assert.Equal(t, filepath.Join("/var/lib/quill", "audit.db"), cfg.AuditDBPath())
}

func TestEnsureDataDir(t *testing.T) {
	cfg := Config{DataDir: filepath.Join(t.TempDir(), "nested", "dir")}
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, cfg.DataDir)
}
