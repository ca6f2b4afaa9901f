package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "ref_zip_catalog", []string{"zip"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Rows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ref_zip_catalog"}, []string{"zip", "population"}).
		WillReturnResult(2)

	rows := [][]any{
		{"75002", 110000},
		{"75013", 45000},
	}
	n, err := CopyFrom(context.Background(), mock, "ref_zip_catalog", []string{"zip", "population"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_Validation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{Table: "t"}, [][]any{{1}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{Table: "t", Columns: []string{"a"}}, [][]any{{1}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "t",
		Columns:      []string{"a"},
		ConflictKeys: []string{"a"},
	}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
