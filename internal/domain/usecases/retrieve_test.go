package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

func TestRetrieve_RanksRelevantFirst(t *testing.T) {
	ctx := context.Background()
	uc, index, embedder := newIngest(t, 200, 20)
	rec := newCountingRecorder()
	r := NewRetriever(embedder, index, nil, rec)

	reports := uc.IngestBatch(ctx, []*entities.Document{
		textDoc("cats", "cats.txt", "Cats purr and sleep most of the day."),
		textDoc("rust", "metal.txt", "Iron oxide forms when iron meets water and oxygen."),
	})
	for _, rep := range reports {
		require.NoError(t, rep.Err)
	}

	result, err := r.Retrieve(ctx, "why do cats purr", 2)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "cats.txt", result[0].SourceDoc)
	assert.GreaterOrEqual(t, result[0].Score, result[1].Score)

	result, err = r.Retrieve(ctx, "cats", 1)
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, 2, rec.queries)
}

func TestRetrieve_InvalidArguments(t *testing.T) {
	_, index, embedder := newIngest(t, 100, 20)
	r := NewRetriever(embedder, index, nil, nil)

	_, err := r.Retrieve(context.Background(), "q", 0)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	_, err = r.Retrieve(context.Background(), " ", 3)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
