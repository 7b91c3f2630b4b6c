package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/geoflow/pkg/config"
	gferrors "github.com/logflow/geoflow/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCommand(t *testing.T) {
	data := t.TempDir()
	out := filepath.Join(t.TempDir(), "processed")
	require.NoError(t, os.WriteFile(filepath.Join(data, "points.geojson"), []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,2]}}
	]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "rows.csv"), []byte("name\nb\n"), 0644))

	stdout, _, err := execute(t, "run", "--data-dir", data, "--out-dir", out, "--xlsx", "--workers", "2")
	require.NoError(t, err)

	assert.Contains(t, stdout, "GEOFLOW")
	assert.Contains(t, stdout, "CONSOLIDATION COMPLETE")
	assert.FileExists(t, filepath.Join(out, "master_dataset.csv"))
	assert.FileExists(t, filepath.Join(out, "master_dataset.parquet"))
	assert.FileExists(t, filepath.Join(out, "master_dataset.xlsx"))
}

func TestRunCommand_RerunWithNestedOutDir(t *testing.T) {
	data := t.TempDir()
	out := filepath.Join(data, "processed")
	require.NoError(t, os.WriteFile(filepath.Join(data, "rows.csv"), []byte("name\na\nb\n"), 0644))

	for i := 0; i < 2; i++ {
		_, _, err := execute(t, "run", "--data-dir", data, "--out-dir", out, "--xlsx")
		require.NoError(t, err)
	}

	master, err := os.ReadFile(filepath.Join(out, "master_dataset.csv"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(master), "\n"), "header plus two rows")
}

func TestRunCommand_NoColumnar(t *testing.T) {
	data := t.TempDir()
	out := filepath.Join(t.TempDir(), "processed")
	require.NoError(t, os.WriteFile(filepath.Join(data, "rows.csv"), []byte("name\nb\n"), 0644))

	stdout, _, err := execute(t, "run", "--data-dir", data, "--out-dir", out, "--no-columnar")
	require.NoError(t, err)

	assert.Contains(t, stdout, "columnar")
	assert.FileExists(t, filepath.Join(out, "master_dataset.csv"))
	assert.NoFileExists(t, filepath.Join(out, "master_dataset.parquet"))
}

func TestRunCommand_MissingDataDir(t *testing.T) {
	_, _, err := execute(t, "run", "--data-dir", filepath.Join(t.TempDir(), "missing"), "--out-dir", t.TempDir())
	require.Error(t, err)
	assert.True(t, gferrors.IsCode(err, gferrors.CodeAccessDenied))
}

func TestRunCommand_InvalidFlag(t *testing.T) {
	_, _, err := execute(t, "run", "--data-dir", t.TempDir(), "--flatten", "deep")
	assert.Error(t, err)
}

func TestRunFlags_OnlyChangedOverride(t *testing.T) {
	flags := &runFlags{}
	cmd := &cobra.Command{Use: "run"}
	flags.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--workers", "3", "--no-xml"}))

	cfg := config.Default()
	cfg.Output.Dir = "custom"
	flags.apply(cmd, cfg)

	assert.Equal(t, 3, cfg.Parse.Workers)
	assert.False(t, cfg.Capabilities.XML)
	assert.True(t, cfg.Capabilities.Geometry)
	assert.Equal(t, "custom", cfg.Output.Dir)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "geoflow "+version)
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geoflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  basename: merged\n"), 0644))

	stdout, _, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "# loaded "+path)
	assert.Contains(t, stdout, "basename: merged")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"service":"geoflow"`)
}
