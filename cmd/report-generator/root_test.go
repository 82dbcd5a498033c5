package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/report-generator/pkg/config"
)

func TestInitDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init-dir", "--path", path})
	require.NoError(t, cmd.Execute())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())
	assert.Contains(t, out.String(), path)
}

func TestVersion(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "report-generator dev")
}

func TestRenderOptionsUseDownloadPath(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ZO_CHROME_DOWNLOAD_PATH", "/var/lib/reports")
	t.Setenv("ZO_CHROME_SAVE_SCREENSHOTS", "true")
	t.Setenv("ZO_REPORT_USER_EMAIL", "root@example.com")

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	opts := renderOptions(cfg)
	assert.Equal(t, "/var/lib/reports", opts.ScreenshotDir)
	assert.True(t, opts.SaveScreenshots)
	assert.Equal(t, "root@example.com", opts.Credentials.Email)
	assert.Equal(t, cfg.DataLoadTimeout(), opts.DataLoadTimeout)
}
