// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	fileNames := make(map[string]bool)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
	}

	for _, expected := range []string{
		"000001_create_users.up.sql",
		"000001_create_users.down.sql",
		"000002_create_user_sessions.up.sql",
		"000002_create_user_sessions.down.sql",
	} {
		assert.True(t, fileNames[expected], "should contain %s", expected)
	}

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match pattern NNNNNN_name.(up|down).sql", entry.Name())
	}
}

func TestMigrations_Ordered(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Migration{Version: 1, Name: "000001_create_users"}, all[0])
	assert.Equal(t, Migration{Version: 2, Name: "000002_create_user_sessions"}, all[1])

	all[0].Name = "mutated"
	again, err := Migrations()
	require.NoError(t, err)
	assert.Equal(t, "000001_create_users", again[0].Name, "callers get a copy")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_create_user_sessions", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}
