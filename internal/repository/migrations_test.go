package repository

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.Contains(t, names, "000001_create_pa_decisions.up.sql")
	assert.Contains(t, names, "000001_create_pa_decisions.down.sql")

	source, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.EqualValues(t, 1, first)
}
