package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garmelon/tablejohn/internal/config"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "server.toml", `
db_path = "/var/lib/tablejohn/db.sqlite"
repo_path = "/var/lib/tablejohn/repo"
worker_token = "s3cr3t"
`)

	cfg, err := config.LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8880", cfg.Listen)
	assert.Equal(t, 60*time.Second, cfg.WorkerTimeout)
	assert.Equal(t, "s3cr3t", cfg.WorkerToken)
}

func TestLoadServerConfigRejectsBadTimeout(t *testing.T) {
	path := writeTemp(t, "server.toml", `
db_path = "x"
repo_path = "y"
worker_timeout = "0s"
`)

	_, err := config.LoadServerConfig(path)
	assert.ErrorIs(t, err, config.ErrInvalidWorkerTimeout)
}

func TestLoadWorkerConfigRequiresServers(t *testing.T) {
	path := writeTemp(t, "worker.toml", `name = "w1"`)

	_, err := config.LoadWorkerConfig(path)
	assert.ErrorIs(t, err, config.ErrNoServers)
}

func TestLoadWorkerConfigParsesServers(t *testing.T) {
	path := writeTemp(t, "worker.toml", `
name = "w1"
ping = "2s"
batch = "30s"

[[servers]]
name = "a"
url = "http://a.example/"
worker_token = "tok-a"

[[servers]]
name = "b"
url = "http://b.example/"
worker_token = "tok-b"
`)

	cfg, err := config.LoadWorkerConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "a", cfg.Servers[0].Name)
	assert.Equal(t, 2*time.Second, cfg.Ping)
	assert.Equal(t, 30*time.Second, cfg.Batch)
}
