package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "001_booking", migrations[0].Version)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}

func TestBookingSchemaHasActiveSlotIndex(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)

	sql := migrations[0].SQL
	assert.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS appointments_provider_slot_active_key")
	assert.Contains(t, sql, "WHERE status IN ('scheduled', 'confirmed')")
	assert.True(t, strings.Contains(sql, "slots       text[] NOT NULL DEFAULT '{}'"))
}
