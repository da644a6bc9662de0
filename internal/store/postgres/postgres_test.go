package postgres

import (
	"io/fs"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://dsc:secret@db:5432/dsc?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "dsc", User: "dsc", Password: "secret",
	}))
	assert.Equal(t, "postgres://u:p@[::1]:6543/x?sslmode=require", DSN(ClientConfig{
		Host: "::1", Port: 6543, Database: "x", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/001_ledgers.sql", "migrations/002_history.sql"}, names)
}

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.True(t, v.Eq(v.Clone().SetAllOne()))

	_, err = parseAmount("1.5")
	require.Error(t, err)
}

func TestNullableAddress(t *testing.T) {
	assert.Nil(t, nullable(""))
	s := "0x00000000000000000000000000000000000000a1"
	assert.Equal(t, &s, nullable(s))
	assert.Equal(t, common.HexToAddress(s), address(&s))
	assert.Equal(t, common.Address{}, address(nil))
}
