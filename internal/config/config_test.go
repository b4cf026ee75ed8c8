package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg := fromViper(newTestViper())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DBDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, MirrorDatabase, cfg.Cache.MirrorDriver)
	assert.False(t, cfg.Cache.LoadOptional)
	assert.Equal(t, StorageDrive, cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.True(t, cfg.Sync.RunOnStart)
	assert.False(t, cfg.Sync.RetryFailed)
	assert.Equal(t, []string{".csv", ".xlsx"}, cfg.Sync.Extensions)
	assert.Equal(t, "Not set update config", cfg.Report.StatsBy)
	assert.Equal(t, 800, cfg.Report.Width)
}

func TestFromViper_Overrides(t *testing.T) {
	v := newTestViper()
	v.Set("DB_DRIVER", "SQLite")
	v.Set("STORAGE_BACKEND", "MinIO")
	v.Set("SYNC_INTERVAL", "15m")
	v.Set("SYNC_EXTENSIONS", "CSV, .xlsx")
	v.Set("REPORT_STATS_BY", "the guild")
	v.Set("MIRROR_LOAD_OPTIONAL", "true")

	cfg := fromViper(v)

	assert.Equal(t, DBDriverSQLite, cfg.Database.Driver)
	assert.Equal(t, StorageMinio, cfg.Storage.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, []string{".csv", ".xlsx"}, cfg.Sync.Extensions)
	assert.Equal(t, "the guild", cfg.Report.StatsBy)
	assert.True(t, cfg.Cache.LoadOptional)
}

func TestNormalizeExtensions(t *testing.T) {
	assert.Equal(t, []string{".csv", ".xlsx", ".tsv"}, normalizeExtensions([]string{"csv,XLSX", " .tsv ", ""}))
	assert.Nil(t, normalizeExtensions(nil))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := fromViper(newTestViper())
		cfg.Storage.Drive = DriveConfig{
			CredentialsJSON: `{"type":"service_account"}`,
			DataFolderID:    "data",
			ReportsFolderID: "reports",
		}
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad db driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"bad mirror", func(c *Config) { c.Cache.MirrorDriver = "memcached" }, "MIRROR_DRIVER"},
		{"missing credentials", func(c *Config) { c.Storage.Drive.CredentialsJSON = "" }, "GOOGLE_DRIVE_CREDENTIALS_JSON"},
		{"missing data folder", func(c *Config) { c.Storage.Drive.DataFolderID = "" }, "DRIVE_DATA_FOLDER_ID"},
		{"missing reports folder", func(c *Config) { c.Storage.Drive.ReportsFolderID = "" }, "DRIVE_REPORTS_FOLDER_ID"},
		{"minio without endpoint", func(c *Config) { c.Storage.Backend = StorageMinio }, "MINIO_ENDPOINT"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "ftp" }, "STORAGE_BACKEND"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "SYNC_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDriveCredentials(t *testing.T) {
	creds, err := DriveConfig{CredentialsJSON: "{}"}.DriveCredentials()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), creds)

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))
	creds, err = DriveConfig{CredentialsFile: path}.DriveCredentials()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), creds)

	_, err = DriveConfig{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}.DriveCredentials()
	assert.Error(t, err)
}
