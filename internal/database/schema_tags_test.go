package database

import (
	"context"
	"reflect"
	"testing"

	"queuesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableColumns(t *testing.T, db *Database, table string) map[string]bool {
	t.Helper()
	rows, err := db.db.QueryContext(context.Background(), "SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols[name] = true
	}
	require.NoError(t, rows.Err())
	require.NotEmpty(t, cols, "table %s", table)
	return cols
}

func TestModelTagsMatchSchema(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		table string
		model interface{}
	}{
		{"queue_entries", models.QueueEntry{}},
		{"chat_messages", models.ChatMessage{}},
		{"queue_analytics", models.QueueAnalytics{}},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			cols := tableColumns(t, db, tt.table)
			typ := reflect.TypeOf(tt.model)
			for i := 0; i < typ.NumField(); i++ {
				tag := typ.Field(i).Tag.Get("db")
				if tag == "" {
					continue
				}
				assert.True(t, cols[tag], "%s.%s tagged %q, not a column of %s", typ.Name(), typ.Field(i).Name, tag, tt.table)
			}
		})
	}
}
