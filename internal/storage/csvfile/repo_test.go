package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficstops/internal/storage"
	"trafficstops/internal/table"
)

func spec(t *testing.T) storage.TableSpec {
	t.Helper()
	s, err := storage.NewTableSpec("cleaned_stops",
		[]string{"id", "timestamp", "stop_cause", "subject_age"},
		[]table.Kind{table.KindInteger, table.KindTimestamp, table.KindText, table.KindInteger})
	require.NoError(t, err)
	return s
}

func TestRepo_WritesAtomically(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "cleaned_stops.csv")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	s := spec(t)
	require.NoError(t, r.EnsureTable(ctx, s))
	ts := time.Date(2016, 1, 1, 0, 5, 0, 0, time.UTC)
	n, err := r.InsertRows(ctx, s.Name, s.ColumnNames(), [][]any{
		{int64(0), ts, "Moving Violation", int64(30)},
		{int64(1), nil, "Equipment Violation", nil},
		{int64(2), nil, nil, nil},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "destination must not exist before Commit")

	require.NoError(t, r.Commit(ctx))
	r.Close()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "id,timestamp,stop_cause,subject_age\n" +
		"0,2016-01-01 00:05:00,Moving Violation,30\n" +
		"1,,Equipment Violation,\n" +
		"2,,,\n"
	assert.Equal(t, want, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")
}

func TestRepo_CloseWithoutCommitDiscards(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	r, err := Open(path)
	require.NoError(t, err)
	s := spec(t)
	require.NoError(t, r.EnsureTable(ctx, s))
	_, err = r.InsertRows(ctx, s.Name, s.ColumnNames(), [][]any{{int64(0), nil, "x", nil}})
	require.NoError(t, err)
	r.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepo_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Open("")
	assert.Error(t, err)

	r, err := Open(filepath.Join(t.TempDir(), "out.csv"))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.InsertRows(ctx, "", []string{"a"}, [][]any{{"x"}})
	assert.ErrorIs(t, err, ErrNoTable)
	assert.ErrorIs(t, r.Commit(ctx), ErrNoTable)

	s := spec(t)
	require.NoError(t, r.EnsureTable(ctx, s))
	assert.Error(t, r.EnsureTable(ctx, s))
	_, err = r.InsertRows(ctx, s.Name, []string{"id"}, [][]any{{int64(0)}})
	assert.Error(t, err)
}

func TestRegisteredAsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	repo, err := storage.New(context.Background(), storage.Config{Kind: Kind, DSN: path})
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &Repo{}, repo)
	assert.Equal(t, path, repo.(*Repo).Path())
}
