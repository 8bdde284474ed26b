package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "headlights.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
output:
  base_path: s3://bucket/run
  filename: part.txt.gz
input:
  path: /data/in.jsonl
runner:
  parallelism: 8
  max_backoff: 2s
transforms:
  - lines/trim
  - strings/upper
storage:
  s3:
    region: eu-west-1
    use_path_style: true
`), 0o644))
	t.Setenv("HEADLIGHTS_RUNNER__SPECULATIVE", "true")
	t.Setenv("HEADLIGHTS_STORAGE__S3__ACCESS_KEY_ID", "AKIA123")

	cfg, err := LoadConfig(cfgFile)
	require.NoError(t, err)

	require.Equal(t, "s3://bucket/run", cfg.Output.BasePath)
	require.Equal(t, "part.txt.gz", cfg.Output.Filename)
	require.True(t, cfg.Output.StrictPath)
	require.Equal(t, 8, cfg.Runner.Parallelism)
	require.Equal(t, 16, cfg.Runner.BundleSize)
	require.Equal(t, 2*time.Second, cfg.Runner.MaxBackoff)
	require.True(t, cfg.Runner.Speculative)
	require.Equal(t, []string{"lines/trim", "strings/upper"}, cfg.Transforms)
	require.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
	require.True(t, cfg.Storage.S3.UsePathStyle)
	require.Equal(t, "AKIA123", cfg.Storage.S3.AccessKeyID)
	require.Equal(t, 10*time.Second, cfg.Storage.FTP.ConnTimeout)
}

func TestLoadConfig_RequiresBasePath(t *testing.T) {
	t.Cleanup(viper.Reset)
	cfgFile := filepath.Join(t.TempDir(), "headlights.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("output:\n  filename: x\n"), 0o644))

	_, err := LoadConfig(cfgFile)
	require.ErrorContains(t, err, "output.base_path")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_BackoffFromEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	cfgFile := filepath.Join(t.TempDir(), "headlights.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("output:\n  base_path: /data/out\n"), 0o644))
	t.Setenv("HEADLIGHTS_RUNNER__INITIAL_BACKOFF", "250ms")
	t.Setenv("HEADLIGHTS_RUNNER__MAX_BACKOFF", "1m")

	cfg, err := LoadConfig(cfgFile)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.Runner.InitialBackoff)
	require.Equal(t, time.Minute, cfg.Runner.MaxBackoff)
	require.Equal(t, 250*time.Millisecond, viper.GetDuration("runner.initial_backoff"))
}
