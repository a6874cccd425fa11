package db

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationIDsOrderedAndUnique(t *testing.T) {
	ms := migrations()
	require.NotEmpty(t, ms)

	ids := make([]string, 0, len(ms))
	seen := map[string]bool{}
	for _, m := range ms {
		assert.False(t, seen[m.ID], "duplicate migration id %s", m.ID)
		seen[m.ID] = true
		assert.NotNil(t, m.Migrate)
		assert.NotNil(t, m.Rollback)
		ids = append(ids, m.ID)
	}
	assert.True(t, sort.StringsAreSorted(ids), "migrations must be applied in id order")
}

func TestReportsSchemaHasCodeIndex(t *testing.T) {
	var found bool
	for _, stmt := range reportsSchema {
		if stmt == `CREATE UNIQUE INDEX IF NOT EXISTS ux_reports_code ON reports(code);` {
			found = true
		}
	}
	assert.True(t, found)
}
