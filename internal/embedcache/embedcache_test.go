package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/examrag/internal/ai"
	"github.com/xxxsen/examrag/internal/model"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string { return "counting" }

type memStore struct {
	items  map[string]*model.EmbeddingCache
	getErr error
}

func (m *memStore) key(modelName, taskType, hash string) string {
	return modelName + "|" + taskType + "|" + hash
}

func (m *memStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	item, ok := m.items[m.key(modelName, taskType, contentHash)]
	if !ok {
		return nil, false, nil
	}
	return item.Embedding, true, nil
}

func (m *memStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.items[m.key(item.ModelName, item.TaskType, item.ContentHash)] = item
	return nil
}

func TestLruCacheHit(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)
	ctx := context.Background()

	a, err := e.Embed(ctx, "hello", ai.TaskTypeRetrievalQuery)
	require.NoError(t, err)
	a[0] = 99 // callers must not be able to poison the cache
	b, err := e.Embed(ctx, "hello", ai.TaskTypeRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.EqualValues(t, 5, b[0])

	_, err = e.Embed(ctx, "hello", ai.TaskTypeRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, "counting", e.ModelName())
}

type emptyEmbedder struct {
	calls int
}

func (e *emptyEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.calls++
	return nil, nil
}

func (e *emptyEmbedder) ModelName() string { return "empty" }

func TestLruCacheSkipsEmptyVectors(t *testing.T) {
	inner := &emptyEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)
	for i := 0; i < 2; i++ {
		vec, err := e.Embed(context.Background(), "hello", ai.TaskTypeRetrievalQuery)
		require.NoError(t, err)
		require.Empty(t, vec)
	}
	require.Equal(t, 2, inner.calls)
}

func TestLruCacheDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
}

func TestDBCache(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memStore{items: map[string]*model.EmbeddingCache{}}
	e := WrapDBCacheToEmbedder(inner, store)
	ctx := context.Background()

	_, err := e.Embed(ctx, "jamb", ai.TaskTypeRetrievalDocument)
	require.NoError(t, err)
	_, err = e.Embed(ctx, "jamb", ai.TaskTypeRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Len(t, store.items, 1)
	for _, item := range store.items {
		require.Equal(t, "counting", item.ModelName)
		require.Equal(t, model.HashContent("jamb"), item.ContentHash)
	}
}

func TestDBCacheReadFailureFallsThrough(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memStore{items: map[string]*model.EmbeddingCache{}, getErr: errors.New("db down")}
	vec, err := WrapDBCacheToEmbedder(inner, store).Embed(context.Background(), "jamb", "")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	require.Equal(t, 1, inner.calls)
}
