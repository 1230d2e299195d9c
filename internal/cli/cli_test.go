package cli

// ============================================================================
// CLI Tests
// Purpose: Verify command tree wiring and config loading
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	root := BuildCLI()
	require.NotNil(t, root)
	assert.Equal(t, "logsplitter", root.Use)

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["gen"])
}

func TestLoadConfigDefaults(t *testing.T) {
	// Default path absent: built-in defaults, no error.
	cfg, err := LoadConfig(DefaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `
input: /data/logs.json.gz
output_dir: /data/out
splitter:
  workers: 8
  max_active_files: 128
  tolerant: true
log:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9191
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/logs.json.gz", cfg.Input)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Splitter.Workers)
	assert.Equal(t, 128, cfg.Splitter.MaxActiveFiles)
	assert.True(t, cfg.Splitter.Tolerant)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input: [unclosed"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestSetupLoggerRejectsBadValues(t *testing.T) {
	cfg := &Config{}
	cfg.Log.Level = "chatty"
	_, err := setupLogger(cfg)
	require.Error(t, err)

	cfg.Log.Level = "info"
	cfg.Log.Format = "xml"
	_, err = setupLogger(cfg)
	require.Error(t, err)
}
