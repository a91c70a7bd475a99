package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestList_EmbeddedMigrationsOrdered(t *testing.T) {
	migrations, err := List()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS queue_entries")
	assert.Equal(t, 2, migrations[1].Version)
	assert.Contains(t, migrations[1].SQL, "queue_analytics")
}

func TestApply_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ran, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ran)

	ran, err = Apply(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, ran)

	applied, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, applied)

	for _, table := range []string{"queue_entries", "chat_messages", "queue_analytics"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestApply_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	broken := []Migration{
		{Version: 1, Name: "ok", SQL: "CREATE TABLE a (id INTEGER)"},
		{Version: 2, Name: "broken", SQL: "CREATE TABLE b (id INTEGER); NOT SQL"},
	}

	ran, err := apply(ctx, db, broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2 (broken)")
	assert.Equal(t, []int{1}, ran)

	applied, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.False(t, applied[2])
}

func TestLoad_RejectsBadNames(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"no underscore":     {"m/001.sql": {Data: []byte("SELECT 1")}},
		"non numeric":       {"m/abc_init.sql": {Data: []byte("SELECT 1")}},
		"duplicate version": {"m/001_a.sql": {Data: []byte("SELECT 1")}, "m/1_b.sql": {Data: []byte("SELECT 1")}},
	}
	for name, fsys := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(fsys, "m")
			assert.Error(t, err)
		})
	}
}

func TestLoad_SkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"m/README.md": {Data: []byte("docs")},
		"m/010_b.sql": {Data: []byte("SELECT 2")},
		"m/002_a.sql": {Data: []byte("SELECT 1")},
	}
	migrations, err := load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, 10, migrations[1].Version)
}
