package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DriverXLSX, cfg.Store.Driver)
	assert.Equal(t, "事件紀錄", cfg.Store.Sheets.Events)
	assert.Equal(t, "主表", cfg.Store.Sheets.Main)
	assert.Equal(t, 30, cfg.Backup.MaxFiles)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DirectoryTTL)
	assert.Equal(t, 10*time.Second, cfg.Bot.PollTimeout)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
store:
  driver: postgres
backup:
  max_files: 3
admin:
  ids: [1, 2]
staff:
  ids: [10]
summary:
  password_hash: "$2a$10$abc"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("BACKUP_MAX_FILES", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 7, cfg.Backup.MaxFiles)
	assert.Equal(t, []int64{1, 2}, cfg.Admin.IDs)
	assert.Equal(t, "$2a$10$abc", cfg.Summary.PasswordHash)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Store:  StoreConfig{Driver: DriverXLSX, Path: "a.xlsx", Timezone: "UTC"},
			Backup: BackupConfig{MaxFiles: 1},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Store.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Backup.MaxFiles = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

func TestIsStaff(t *testing.T) {
	cfg := &Config{
		Admin: AdminConfig{IDs: []int64{1}},
		Staff: StaffConfig{IDs: []int64{2}},
	}
	assert.True(t, cfg.IsAdmin(1))
	assert.False(t, cfg.IsAdmin(2))
	assert.True(t, cfg.IsStaff(1))
	assert.True(t, cfg.IsStaff(2))
	assert.False(t, cfg.IsStaff(3))
}
