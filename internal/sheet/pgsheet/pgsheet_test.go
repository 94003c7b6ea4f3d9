package pgsheet

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xuri/excelize/v2"

	"gym-ledger-bot/internal/sheet"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a migrated pool.
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) *pgxpool.Pool {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))
	// Running twice must be harmless.
	require.NoError(t, Migrate(ctx, pool))

	t.Cleanup(func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	})
	return pool
}

func TestStore(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	s := New(pool)

	t.Run("missing sheet", func(t *testing.T) {
		_, err := s.ReadSheet(ctx, "nope")
		assert.ErrorIs(t, err, sheet.ErrSheetNotFound)
	})

	t.Run("ensure then write and shrink", func(t *testing.T) {
		require.NoError(t, s.EnsureSheet(ctx, "會員資料", []string{"會員編號", "會員姓名"}))
		got, err := s.ReadSheet(ctx, "會員資料")
		require.NoError(t, err)
		assert.Equal(t, []string{"會員編號", "會員姓名"}, got.Header)
		assert.Empty(t, got.Rows)

		table := sheet.NewTable("會員編號", "會員姓名")
		table.Append("101", "Alice")
		table.Append("102", "Bob")
		require.NoError(t, s.WriteSheet(ctx, "會員資料", table))

		got, err = s.ReadSheet(ctx, "會員資料")
		require.NoError(t, err)
		assert.Equal(t, table.Rows, got.Rows)

		small := sheet.NewTable("會員編號", "會員姓名")
		small.Append("103", "Carol")
		require.NoError(t, s.WriteSheet(ctx, "會員資料", small))
		got, err = s.ReadSheet(ctx, "會員資料")
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"103", "Carol"}}, got.Rows)

		// EnsureSheet leaves existing content alone.
		require.NoError(t, s.EnsureSheet(ctx, "會員資料", []string{"x"}))
		got, err = s.ReadSheet(ctx, "會員資料")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Len())
	})

	t.Run("concurrent writer is reported as locked", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "主表")
		require.NoError(t, err)

		err = s.WriteSheet(ctx, "主表", sheet.NewTable("會員編號"))
		assert.ErrorIs(t, err, sheet.ErrLocked)
	})

	t.Run("snapshot", func(t *testing.T) {
		events := sheet.NewTable("會員編號", "堂數")
		events.Types = map[string]sheet.ColumnType{"堂數": sheet.Number}
		events.Append("101", "4")
		require.NoError(t, s.WriteSheet(ctx, "事件紀錄", events))

		stored, err := s.ReadSheet(ctx, "事件紀錄")
		require.NoError(t, err)
		assert.Equal(t, sheet.Number, stored.TypeOf(1), "column types are kept")

		dst := filepath.Join(t.TempDir(), "snap.xlsx")
		require.NoError(t, s.Snapshot(ctx, dst))

		f, err := excelize.OpenFile(dst)
		require.NoError(t, err)
		defer f.Close()
		assert.Contains(t, f.GetSheetList(), "事件紀錄")
		assert.Contains(t, f.GetSheetList(), "會員資料")
		v, err := f.GetCellValue("事件紀錄", "B2")
		require.NoError(t, err)
		assert.Equal(t, "4", v)
		typ, err := f.GetCellType("事件紀錄", "B2")
		require.NoError(t, err)
		assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	})
}
