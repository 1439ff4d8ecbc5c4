package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "keystore: signer.keystore\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7441", cfg.ListenAddress)
	require.Equal(t, "scoresigner.db", cfg.DatabasePath)
	require.Equal(t, float64(5), cfg.RateLimit.PerSecond)
	require.Equal(t, 10, cfg.RateLimit.Burst)
}

func TestLoadParsesFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
database: /tmp/audit.db
keystore: /etc/scoresigner/signer.keystore
passphrase_env: SCORESIGNER_PASSPHRASE
rate_limit:
  per_second: 2
  burst: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "/etc/scoresigner/signer.keystore", cfg.KeystorePath)
	require.Equal(t, "SCORESIGNER_PASSPHRASE", cfg.PassphraseEnv)
	require.Equal(t, float64(2), cfg.RateLimit.PerSecond)
	require.Equal(t, 4, cfg.RateLimit.Burst)
}

func TestLoadRequiresKeystore(t *testing.T) {
	path := writeConfig(t, "listen: \":9000\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
