package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/reeldl/internal/config"
)

func TestConfigInitCmd(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:1")
	path := filepath.Join(cli.dir, "new", "config.toml")

	out, err := cli.run("config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().API.BaseURL, cfg.API.BaseURL)

	_, err = cli.run("config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = cli.run("config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigInitCmd_DefaultPath(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:1")

	_, err := cli.run("config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cli.dir, "config", "reeldl", "config.toml"))
}

func TestConfigInitCmd_IgnoresBrokenConfig(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:1")
	require.NoError(t, os.WriteFile(cli.cfgPath, []byte("[api\n"), 0644))

	_, err := cli.run("config", "init", filepath.Join(cli.dir, "fresh.toml"))
	require.NoError(t, err)
}

func TestConfigShowCmd(t *testing.T) {
	cli := newTestCLI(t, "http://example.test:3001/api")

	out, err := cli.run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+cli.cfgPath)
	assert.Contains(t, out, `base_url = "http://example.test:3001/api"`)
	assert.Contains(t, out, `close_delay = "10ms"`)
}

func TestConfigShowCmd_APIURLFlag(t *testing.T) {
	cli := newTestCLI(t, "http://example.test:3001/api")

	out, err := cli.run("--api-url", "http://other.test/api/", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `base_url = "http://other.test/api"`)
}

func TestConfigTestCmd(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:3001/api")

	out, err := cli.run("config", "test", cli.cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid!")
	assert.Contains(t, out, "http://localhost:3001/api")
	assert.Contains(t, out, "History:  disabled")
}

func TestConfigTestCmd_Invalid(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:3001/api")
	bad := filepath.Join(cli.dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`
[api]
base_url = "${REELDL_TEST_MISSING_URL:?set the service url}"
`), 0644))

	out, err := cli.run("config", "test", bad)
	require.Error(t, err)
	assert.Contains(t, out, "Missing environment variables:")
	assert.Contains(t, out, "REELDL_TEST_MISSING_URL: set the service url")

	require.NoError(t, os.WriteFile(bad, []byte(`
[api]
transport = "carrier-pigeon"
`), 0644))
	out, err = cli.run("config", "test", bad)
	require.Error(t, err)
	assert.Contains(t, out, "Validation errors:")
	assert.Contains(t, out, "api.transport")
}

func TestConfigTestCmd_MissingFile(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:3001/api")

	_, err := cli.run("config", "test", filepath.Join(cli.dir, "nope.toml"))
	require.Error(t, err)
}

func TestCompletionCmd(t *testing.T) {
	cli := newTestCLI(t, "http://localhost:1")

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		out, err := cli.run("completion", shell)
		require.NoError(t, err, shell)
		assert.Contains(t, out, "reeldl", shell)
	}

	_, err := cli.run("completion", "tcsh")
	require.Error(t, err)
}
