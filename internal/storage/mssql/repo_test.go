package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficstops/internal/storage"
	"trafficstops/internal/table"
)

type execCall struct {
	query string
	args  []any
}

type fakeTx struct {
	execs      []execCall
	execErr    error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, execCall{query, args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return driverResult(len(args)), nil
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	f.rolledBack = true
	return nil
}

// driverResult reports one affected row per placeholder group; tests use
// single-column inserts so args == rows.
type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeDB struct {
	tx     *fakeTx
	begins int
	closed bool
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	f.begins++
	return f.tx, nil
}

func (f *fakeDB) Close() error {
	f.closed = true
	return nil
}

func TestBuildCreateSQL(t *testing.T) {
	spec, err := storage.NewTableSpec("dbo.cleaned_stops",
		[]string{"id", "timestamp", "stop_cause"},
		[]table.Kind{table.KindInteger, table.KindTimestamp, table.KindText})
	require.NoError(t, err)

	got, err := buildCreateSQL(spec)
	require.NoError(t, err)
	want := "IF OBJECT_ID(N'dbo.cleaned_stops', N'U') IS NULL BEGIN CREATE TABLE [dbo].[cleaned_stops] " +
		"([id] BIGINT NULL, [timestamp] DATETIME2 NULL, [stop_cause] NVARCHAR(MAX) NULL); END;"
	assert.Equal(t, want, got)

	_, err = buildCreateSQL(storage.TableSpec{Name: "x", Columns: []storage.ColumnSpec{{Name: " "}}})
	assert.Error(t, err)
}

func TestBuildBulkInsertSQL(t *testing.T) {
	q, args := buildBulkInsertSQL("stops", []string{"id", "odd]name"}, [][]any{
		{int64(0), "a"},
		{int64(1), nil},
	})
	assert.Equal(t, "INSERT INTO [stops] ([id], [odd]]name]) VALUES (@p1, @p2), (@p3, @p4)", q)
	assert.Equal(t, []any{int64(0), "a", int64(1), nil}, args)
}

func TestChunkRows(t *testing.T) {
	rows := make([][]any, 2500)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}

	chunks := chunkRows(rows, 1)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], maxRows)
	assert.Len(t, chunks[2], 500)

	chunks = chunkRows(rows, 20)
	assert.Len(t, chunks[0], maxParams/20)
	total := 0
	for _, c := range chunks {
		total += len(c)
		assert.LessOrEqual(t, len(c)*20, maxParams)
	}
	assert.Equal(t, len(rows), total)
}

func TestRepo_TransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	db := &fakeDB{tx: tx}
	r := &Repo{db: db}

	spec, err := storage.NewTableSpec("stops", []string{"id"}, []table.Kind{table.KindInteger})
	require.NoError(t, err)
	require.NoError(t, r.EnsureTable(ctx, spec))

	rows := make([][]any, 1200)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	n, err := r.InsertRows(ctx, "stops", []string{"id"}, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 1200, n)
	assert.Equal(t, 1, db.begins, "all writes share one transaction")
	require.Len(t, tx.execs, 3)
	assert.True(t, strings.HasPrefix(tx.execs[0].query, "IF OBJECT_ID"))

	require.NoError(t, r.Commit(ctx))
	assert.True(t, tx.committed)
	r.Close()
	assert.False(t, tx.rolledBack)
	assert.True(t, db.closed)
}

func TestRepo_CloseRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("deadlock")
	tx := &fakeTx{execErr: boom}
	r := &Repo{db: &fakeDB{tx: tx}}

	_, err := r.InsertRows(ctx, "stops", []string{"id"}, [][]any{{int64(1)}})
	assert.ErrorIs(t, err, boom)
	r.Close()
	assert.True(t, tx.rolledBack)
}
