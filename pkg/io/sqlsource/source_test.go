package sqlsource

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE principals (
		user_name TEXT PRIMARY KEY,
		access_level TEXT,
		total_access_count INTEGER,
		sensitive_data_reachable REAL
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO principals VALUES
		('alice', 'administrator', 12, 4.5),
		('bob', 'developer', 3, NULL),
		('carol', NULL, 1, 0)`)
	require.NoError(t, err)
	return db
}

func TestRecords(t *testing.T) {
	db := newDB(t)
	src := New(db, `SELECT * FROM principals ORDER BY user_name`)

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "alice", records[0]["user_name"])
	assert.EqualValues(t, 12, records[0]["total_access_count"])
	assert.NotContains(t, records[1], "sensitive_data_reachable")
	assert.NotContains(t, records[2], "access_level")

	table, err := features.NewBuilder().Build(records)
	require.NoError(t, err)
	assert.Equal(t, []float64{4.5, 0, 0}, table.Column(features.SensitiveDataReach))
	assert.Equal(t, []float64{5, 3, 1}, table.Column(features.PrivilegeLevel))

	require.NoError(t, src.Close())
	assert.NoError(t, db.Ping(), "borrowed pool stays open")
}

func TestRecordsWithArgs(t *testing.T) {
	db := newDB(t)
	src := New(db, `SELECT * FROM principals WHERE total_access_count > ?`, WithArgs(2))

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRecordsQueryError(t *testing.T) {
	db := newDB(t)
	src := New(db, `SELECT * FROM missing`)

	_, err := src.Records(context.Background())
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	_, err := Open("oracle", "dsn", "SELECT 1")
	assert.True(t, errorutil.IsConfiguration(err))

	_, err = Open(DriverSQLite, ":memory:", "")
	assert.True(t, errorutil.IsConfiguration(err))

	src, err := Open(DriverSQLite, ":memory:", "SELECT 'x' AS user_name, 7 AS total_access_count")
	require.NoError(t, err)
	defer src.Close()

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0]["user_name"])
}
