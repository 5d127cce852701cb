// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"io/fs"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)

	names := map[Dialect][]string{}
	for _, dialect := range []Dialect{DialectPostgres, DialectSQLite} {
		entries, err := fs.ReadDir(migrationsFS, dialect.dir())
		require.NoError(t, err, "should read embedded %s migrations", dialect)

		for _, entry := range entries {
			assert.True(t, pattern.MatchString(entry.Name()),
				"file %s should match pattern NNNNNN_name.(up|down).sql", entry.Name())
			names[dialect] = append(names[dialect], entry.Name())
		}
		assert.Contains(t, names[dialect], "000001_create_users.up.sql")
		assert.Contains(t, names[dialect], "000001_create_users.down.sql")
	}

	// both dialects must stay at the same schema version
	assert.Equal(t, names[DialectPostgres], names[DialectSQLite])
}
