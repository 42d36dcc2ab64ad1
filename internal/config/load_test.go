package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "guardia.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFileResolvesMinimalDocument(t *testing.T) {
	path := writeTempConfig(t, `{
		"servers": [{"ip": "10.0.0.1", "port": 9100}],
		"services": [{"name": "api", "url": "https://example.invalid/health"}]
	}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	require.Len(t, cfg.Services, 1)
}

func TestLoadFileMissingFileReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadFileInvalidJSONReturnsError(t *testing.T) {
	path := writeTempConfig(t, `{not json`)
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileLoadsSiblingEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guardia.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"servers": [{"ip": "10.0.0.1", "port": 9100}]
	}`), 0o600))
	require.NoError(t, os.WriteFile(path+".env", []byte("GUARDIA_TEST_ENV_VAR=present\n"), 0o600))

	_, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "present", os.Getenv("GUARDIA_TEST_ENV_VAR"))
	os.Unsetenv("GUARDIA_TEST_ENV_VAR")
}
