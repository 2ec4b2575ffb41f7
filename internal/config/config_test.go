package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/portal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, []string{"127.0.0.1:9222"}, cfg.Grid.Addresses())
	assert.Equal(t, 1, cfg.Grid.Parallelism)
	assert.Equal(t, uint(3), cfg.LoginAttempts)
	assert.Equal(t, 2*time.Hour, cfg.Poll.MaxWait)
	assert.True(t, cfg.Poll.Backoff)
	assert.Equal(t, filepath.Join(home, ".ppmi", "catalog.toml"), cfg.CatalogPath)
	assert.Equal(t, portal.Default(), cfg.Site)
}

func TestLoadReadsConfigFileAndPortalOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".ppmi")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[grid]
endpoints = ["node-1:9222", "node-2:9222"]
parallelism = 2

[poll]
max_wait = "45m"
interval = "10s"
backoff = false

[portal]
exports_url = "https://ida.example.test/exports"

[portal.login.email]
by = "id"
value = "email"
`), 0o600))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "config.toml"), cfg.File)
	assert.Equal(t, []string{"node-1:9222", "node-2:9222"}, cfg.Grid.Addresses())
	assert.Equal(t, 2, cfg.Grid.Parallelism)
	assert.Equal(t, 45*time.Minute, cfg.Poll.MaxWait)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.False(t, cfg.Poll.Backoff)

	assert.Equal(t, "https://ida.example.test/exports", cfg.Site.ExportsURL)
	assert.Equal(t, domain.ID("email"), cfg.Site.Login.Email)
	// untouched fields keep their defaults
	assert.Equal(t, portal.Default().Login.Password, cfg.Site.Login.Password)
	assert.Equal(t, portal.Default().MainURL, cfg.Site.MainURL)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PPMI_GRID_ENDPOINT", "grid.example.test:4444")
	t.Setenv("PPMI_DOWNLOAD_DIR", "/data/ppmi")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"grid.example.test:4444"}, cfg.Grid.Addresses())
	assert.Equal(t, "/data/ppmi", cfg.DownloadDir)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	t.Parallel()

	err := Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid endpoint is empty")
	assert.Contains(t, err.Error(), "poll interval must be positive")
	assert.Contains(t, err.Error(), "download dir is empty")
}

func TestLoadSecretsBackend(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, SecretsAuto, cfg.SecretsBackend)

	t.Setenv("PPMI_SECRETS_BACKEND", "File")
	cfg, err = Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, SecretsFile, cfg.SecretsBackend)

	t.Setenv("PPMI_SECRETS_BACKEND", "keyring")
	_, err = Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported secrets backend "keyring"`)
}
