package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kastheco/specwave/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain runs before all tests to set up the test environment
func TestMain(m *testing.M) {
	log.Initialize(false)
	code := m.Run()
	log.Close()
	os.Exit(code)
}

func TestDefaultConfig(t *testing.T) {
	t.Run("creates config with default values", func(t *testing.T) {
		cfg := DefaultConfig()

		assert.Equal(t, "spec", cfg.SpecDir)
		assert.Equal(t, 3, cfg.SharedExampleThreshold)
		assert.Equal(t, "error", cfg.ConflictPolicy)
		assert.Equal(t, "specwave", cfg.MarkerPrefix)
		assert.Equal(t, 4, cfg.Parallelism)
		assert.True(t, cfg.IsTelemetryEnabled())
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown conflict policy", func(c *Config) { c.ConflictPolicy = "merge" }, "conflict_policy"},
		{"bad marker prefix", func(c *Config) { c.MarkerPrefix = "Spec Wave" }, "marker_prefix"},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, "parallelism"},
		{"negative threshold", func(c *Config) { c.SharedExampleThreshold = -1 }, "shared_example_threshold"},
		{"bad entry point regexp", func(c *Config) { c.EntryPointPatterns = []string{"("} }, "entry_point_patterns"},
		{"empty metadata dir", func(c *Config) { c.MetadataDir = "" }, "metadata_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("reports every problem at once", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ConflictPolicy = "merge"
		cfg.Parallelism = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conflict_policy")
		assert.Contains(t, err.Error(), "parallelism")
	})

	t.Run("threshold zero disables sharing", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SharedExampleThreshold = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_IsTelemetryEnabled(t *testing.T) {
	cfg := DefaultConfig()
	off := false
	cfg.TelemetryEnabled = &off
	assert.False(t, cfg.IsTelemetryEnabled())
}

func TestConfig_SpecPathFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("spec", "models", "user_spec.rb"), cfg.SpecPathFor("app/models/user.rb"))
	assert.Equal(t, filepath.Join("spec", "billing", "charge_spec.rb"), cfg.SpecPathFor("lib/billing/charge.rb"))
	assert.Equal(t, filepath.Join("spec", "config", "boot_spec.rb"), cfg.SpecPathFor("config/boot.rb"))
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Root = "/work/shop"

	assert.Equal(t, filepath.Join("/work/shop", "tmp", "specwave", "metadata"), cfg.MetadataPath())
	assert.Equal(t, "/abs/meta", (&Config{MetadataDir: "/abs/meta", Root: "/work/shop"}).MetadataPath())
	assert.Equal(t, "shop", cfg.ProjectName())

	cfg.AuditDB = "off"
	assert.Empty(t, cfg.AuditDBPath())
	cfg.AuditDB = "audit/specwave.db"
	assert.Equal(t, filepath.Join("/work/shop", "audit", "specwave.db"), cfg.AuditDBPath())

	t.Setenv("HOME", t.TempDir())
	cfg.AuditDB = ""
	assert.Equal(t, "audit.db", filepath.Base(cfg.AuditDBPath()))
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "app", "models")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Empty(t, FindProjectConfig(nested))

	projectFile := filepath.Join(root, ProjectFileName)
	require.NoError(t, os.WriteFile(projectFile, []byte("parallelism = 2\n"), 0o644))
	assert.Equal(t, projectFile, FindProjectConfig(nested))
}
