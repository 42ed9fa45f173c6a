package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Storage.Driver)
	assert.Equal(t, "labstock.db", c.Storage.SQLitePath)
	assert.Equal(t, "fs", c.Blob.Driver)
	assert.Equal(t, "us-east-1", c.Blob.S3.Region)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 10, c.Log.MaxSizeMB)
	assert.Equal(t, "labstock", c.Metrics.ExpvarName)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labstock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: lab-attachments
    endpoint: http://localhost:9000
    path_style: true
log:
  level: debug
  format: json
`), 0o600))
	t.Setenv("LABSTOCK_LOG_LEVEL", "warn")
	t.Setenv("LABSTOCK_METRICS_TEXTFILE", "/tmp/labstock.prom")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "lab-attachments", c.Blob.S3.Bucket)
	assert.True(t, c.Blob.S3.PathStyle)
	assert.Equal(t, "http://localhost:9000", c.Blob.S3.Endpoint)
	assert.Equal(t, "warn", c.Log.Level, "environment wins over the file")
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "/tmp/labstock.prom", c.Metrics.Textfile)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("LABSTOCK_STORAGE_DRIVER", "oracle")
	_, err = Load("")
	require.ErrorContains(t, err, "storage.driver")
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	c := base
	c.Blob.Driver = "s3"
	assert.ErrorContains(t, c.Validate(), "bucket")

	c = base
	c.Blob.Driver = "ftp"
	assert.ErrorContains(t, c.Validate(), "blob.driver")

	c = base
	c.Log.Level = "loud"
	assert.ErrorContains(t, c.Validate(), "log.level")

	c = base
	c.Log.Format = "xml"
	assert.ErrorContains(t, c.Validate(), "log.format")
}
