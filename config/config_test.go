package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osputil/osputil"
	"github.com/osputil/osputil/dialect"
	"github.com/osputil/osputil/zipper"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, dialect.SQLite, cfg.SQL.Dialect)
	assert.Equal(t, 100*time.Millisecond, cfg.SQL.SlowThreshold)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osputil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
sql:
  dialect: postgres
  dsn: postgres://localhost/app
  slow_threshold: 250ms
zip:
  level: best
  overwrite: true
  shared_root: /opt/usr/share/app/shared
  denied_prefixes:
    - /etc
  workers: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, dialect.Postgres, cfg.SQL.Dialect)
	assert.Equal(t, 250*time.Millisecond, cfg.SQL.SlowThreshold)
	assert.True(t, cfg.Zip.Overwrite)
	assert.Equal(t, []string{"/etc"}, cfg.Zip.DeniedPrefixes)
	assert.Equal(t, 4, cfg.Zip.Workers)

	_, level, err := cfg.ZipOptions()
	require.NoError(t, err)
	assert.Equal(t, zipper.BestCompression, level)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, osputil.IsNotFound(err))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("log: [unterminated"), 0o644))
	_, err = Load(bad)
	assert.True(t, osputil.IsInvalidArgument(err))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OSPUTIL_LOG_LEVEL":           "warn",
		"OSPUTIL_SQL_DIALECT":         "mysql",
		"OSPUTIL_SQL_SLOW_THRESHOLD":  "1s",
		"OSPUTIL_ZIP_OVERWRITE":       "true",
		"OSPUTIL_ZIP_WORKERS":         "3",
		"OSPUTIL_ZIP_DENIED_PREFIXES": "/a" + string(os.PathListSeparator) + " /b ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, dialect.MySQL, cfg.SQL.Dialect)
	assert.Equal(t, time.Second, cfg.SQL.SlowThreshold)
	assert.True(t, cfg.Zip.Overwrite)
	assert.Equal(t, 3, cfg.Zip.Workers)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Zip.DeniedPrefixes)

	env["OSPUTIL_ZIP_WORKERS"] = "many"
	err := cfg.ApplyEnv(lookup)
	assert.True(t, osputil.IsInvalidArgument(err))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OSPUTIL_TEST_ENV_FILE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("OSPUTIL_TEST_ENV_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("OSPUTIL_TEST_ENV_FILE"))

	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, LoadEnvFile(""))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"LogLevel", func(c *Config) { c.Log.Level = "loud" }},
		{"LogFormat", func(c *Config) { c.Log.Format = "xml" }},
		{"Dialect", func(c *Config) { c.SQL.Dialect = "oracle" }},
		{"SlowThreshold", func(c *Config) { c.SQL.SlowThreshold = -time.Second }},
		{"ZipLevel", func(c *Config) { c.Zip.Level = "max" }},
		{"Workers", func(c *Config) { c.Zip.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.True(t, osputil.IsInvalidArgument(cfg.Validate()))
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	l, err := cfg.Logger(&buf)
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestZipOptionsDenylist(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Zip.SharedRoot = filepath.Join(dir, "shared")
	opts, _, err := cfg.ZipOptions()
	require.NoError(t, err)

	_, err = zipper.Open(filepath.Join(dir, "shared", "trusted", "a.zip"), opts...)
	assert.True(t, osputil.IsIllegalAccess(err))

	z, err := zipper.Open(filepath.Join(dir, "a.zip"), opts...)
	require.NoError(t, err)
	assert.False(t, z.OverwriteFlag())
}
