package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvote/hyquery/internal/config"
)

func TestLoadCreatesDefaultsWhenAbsent(t *testing.T) {
	serverData := t.TempDir()

	cfg, err := config.Load(serverData)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.V1Enabled)
	assert.True(t, cfg.V2Enabled)

	path := config.Path(filepath.Join(serverData, config.DirName))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "Load should have written the default config file")
}

func TestLoadFillsMissingFieldsFromDefaultsAndRewrites(t *testing.T) {
	serverData := t.TempDir()
	dir := filepath.Join(serverData, config.DirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(`{"enabled": true, "v1Enabled": true, "v2Enabled": false}`), 0o600))

	cfg, err := config.Load(serverData)
	require.NoError(t, err)
	assert.EqualValues(t, 10, cfg.RateLimitPerSecond, "missing field should be backfilled from Default()")
	assert.Equal(t, "primary", cfg.Network.Role)

	data, err := os.ReadFile(config.Path(dir))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rateLimitPerSecond"`, "Load should rewrite the file with backfilled fields")
}

func TestDirMigratesLegacyDirectoryInPlace(t *testing.T) {
	serverData := t.TempDir()
	legacy := filepath.Join(serverData, config.LegacyDirName)
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, config.FileName), []byte(`{}`), 0o600))

	dir, err := config.Dir(serverData)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(serverData, config.DirName), dir)

	_, err = os.Stat(legacy)
	assert.True(t, os.IsNotExist(err), "legacy dir should have been renamed away")
}

func TestDirPrefersExistingCurrentDirOverLegacy(t *testing.T) {
	serverData := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(serverData, config.DirName), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(serverData, config.LegacyDirName), 0o755))

	dir, err := config.Dir(serverData)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(serverData, config.DirName), dir)
}

func TestSaveRoundTripsThroughLoad(t *testing.T) {
	serverData := t.TempDir()
	cfg := config.Default()
	cfg.CustomMOTD = "hello world"
	require.NoError(t, cfg.Save(serverData))

	reloaded, err := config.Load(serverData)
	require.NoError(t, err)
	assert.Equal(t, "hello world", reloaded.CustomMOTD)
}

func TestValidateRejectsBothProtocolVersionsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.V1Enabled = false
	cfg.V2Enabled = false
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownNetworkRole(t *testing.T) {
	cfg := config.Default()
	cfg.Network.Enabled = true
	cfg.Network.Role = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownCoordinator(t *testing.T) {
	cfg := config.Default()
	cfg.Network.Enabled = true
	cfg.Network.Coordinator = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}

func TestLoadNormalizesEnumCaseWithoutWarning(t *testing.T) {
	serverData := t.TempDir()
	dir := filepath.Join(serverData, config.DirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(`{"network": {"role": "PRIMARY", "coordinator": "UDP"}, "observability": {"logLevel": "DEBUG"}}`), 0o600))

	cfg, err := config.Load(serverData)
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Network.Role)
	assert.Equal(t, "udp", cfg.Network.Coordinator)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Empty(t, cfg.Warnings, "recognized values in any case should not warn")
}

func TestLoadFallsBackToDefaultOnUnknownEnumsWithWarning(t *testing.T) {
	serverData := t.TempDir()
	dir := filepath.Join(serverData, config.DirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(`{"network": {"role": "bogus", "coordinator": "carrier-pigeon"}, "observability": {"logLevel": "shout"}}`), 0o600))

	cfg, err := config.Load(serverData)
	require.NoError(t, err, "an unrecognized enum must default, not abort the load")
	assert.Equal(t, "primary", cfg.Network.Role)
	assert.Equal(t, "udp", cfg.Network.Coordinator)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Len(t, cfg.Warnings, 3)

	require.NoError(t, cfg.Validate(), "Load's defaulting pass must leave Validate satisfied")
}

func TestValidateAcceptsRequireAvailableFalseAsWarningNotError(t *testing.T) {
	cfg := config.Default()
	cfg.Network.Enabled = true
	cfg.Network.Coordinator = "redis"
	cfg.Network.Redis.RequireAvailable = false
	assert.NoError(t, cfg.Validate())
}
