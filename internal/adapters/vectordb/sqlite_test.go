package vectordb

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

func newSQLiteIndex(t *testing.T, driver string) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(t.TempDir(), driver, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSQLiteIndex_Contract(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			runIndexContract(t, func(t *testing.T) ports.VectorIndex { return newSQLiteIndex(t, driver) })
		})
	}
}

func TestLocalIndexes_RewriteKeepsTiePosition(t *testing.T) {
	indexes := map[string]func(t *testing.T) ports.VectorIndex{
		"memory": func(t *testing.T) ports.VectorIndex { return NewMemoryIndex() },
		"sqlite": func(t *testing.T) ports.VectorIndex { return newSQLiteIndex(t, DriverPureGo) },
	}
	for name, newIndex := range indexes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			idx := newIndex(t)
			first := entry("00000000-0000-0000-0000-000000000001", "doc", 1, 1)
			require.NoError(t, idx.Upsert(ctx, []entities.IndexEntry{
				first,
				entry("00000000-0000-0000-0000-000000000002", "doc", 1, 1),
			}))

			first.Chunk.Content = "rewritten"
			require.NoError(t, idx.Upsert(ctx, []entities.IndexEntry{first}))

			res, err := idx.Query(ctx, []float32{1, 1}, 2)
			require.NoError(t, err)
			require.Len(t, res, 2)
			assert.Equal(t, "rewritten", res[0].Chunk.Content)
			assert.Equal(t, "chunk-00000000-0000-0000-0000-000000000002", res[1].Chunk.ID)
		})
	}
}

func TestSQLiteIndex_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewSQLiteIndex(dir, DriverPureGo, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []entities.IndexEntry{
		entry("00000000-0000-0000-0000-000000000001", "doc", 1, 0, 0),
		entry("00000000-0000-0000-0000-000000000002", "doc", 0, 1, 0),
	}))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteIndex(dir, DriverPureGo, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Dimension())
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := reopened.Query(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "chunk-00000000-0000-0000-0000-000000000002", res[0].Chunk.ID)

	err = reopened.Upsert(ctx, []entities.IndexEntry{entry("00000000-0000-0000-0000-000000000003", "doc", 1, 0)})
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}

func TestSQLiteIndex_CommitFailureIsIndexIO(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM index_meta")).
		WithArgs(metaDimension).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	idx, err := NewSQLiteIndexFromDB(context.Background(), db, nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR REPLACE INTO index_meta").
		WithArgs(metaDimension, "2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare("INSERT INTO entries")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err = idx.Upsert(context.Background(), []entities.IndexEntry{entry("00000000-0000-0000-0000-000000000001", "doc", 1, 0)})
	assert.True(t, errors.Is(err, errs.ErrIndexIO))
	assert.Equal(t, 0, idx.Dimension(), "failed write must not establish a dimension")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteIndex_QueryFailureIsIndexIO(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT value FROM index_meta").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("2"))
	mock.ExpectQuery("SELECT chunk_id").WillReturnError(errors.New("database is locked"))

	idx, err := NewSQLiteIndexFromDB(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Dimension())

	_, err = idx.Query(context.Background(), []float32{1, 0}, 3)
	assert.True(t, errors.Is(err, errs.ErrIndexIO))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeVector(t *testing.T) {
	v, err := decodeVector(encodeVector([]float32{1.5, -2, 0}))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 0}, v)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
