package memorystore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "kv:session:abc:turns", Key("abc"))
}

func TestDecodeTurns(t *testing.T) {
	turns, err := decodeTurns([]string{
		`{"question":"q1","answer":"a1","timestamp":"2024-01-02T03:04:05Z","sources":["a.txt"]}`,
		`{"question":"q2","answer":"a2","timestamp":"2024-01-02T03:05:05Z"}`,
	})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].Question)
	assert.Equal(t, []string{"a.txt"}, turns[0].Sources)

	_, err = decodeTurns([]string{"not json"})
	assert.Error(t, err)
}

func TestRedisMemory_FIFO(t *testing.T) {
	addr := os.Getenv("KV_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KV_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	m := NewRedisMemory(rdb, uuid.NewString(), 3, time.Minute)
	defer m.Clear(ctx)

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.Append(ctx, entities.Turn{
			Question:  fmt.Sprintf("q%d", i),
			Answer:    fmt.Sprintf("a%d", i),
			Timestamp: time.Now().UTC(),
		}))
	}

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recent, err := m.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "q4", recent[0].Question)
	assert.Equal(t, "q5", recent[1].Question)

	require.NoError(t, m.Clear(ctx))
	n, err = m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
