package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
	"github.com/xxxsen/examrag/internal/testutil"
)

func testDoc(sourceID, text string) model.Document {
	return model.Document{SourceID: sourceID, Text: text, ContentHash: model.HashContent(text), ContentType: model.ContentTypeText}
}

func testChunk(sourceID string, ordinal int, text string, vec ...float32) model.Chunk {
	return model.Chunk{
		ChunkID:   model.ChunkID(sourceID, ordinal),
		SourceID:  sourceID,
		Ordinal:   ordinal,
		Text:      text,
		Embedding: vec,
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	require.Equal(t, 2, s.Dimension())

	res, err := s.SimilaritySearch(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Empty(t, res)

	require.NoError(t, s.Upsert(ctx, testDoc("a.txt", "alpha"), []model.Chunk{
		testChunk("a.txt", 0, "east", 1, 0),
		testChunk("a.txt", 1, "east again", 1, 0),
		testChunk("a.txt", 2, "north", 0, 1),
	}))
	require.NoError(t, s.Upsert(ctx, testDoc("b.txt", "beta"), []model.Chunk{
		testChunk("b.txt", 0, "north east", 1, 1),
	}))

	res, err = s.SimilaritySearch(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "a.txt#0", res[0].Chunk.ChunkID)
	require.Equal(t, "a.txt#1", res[1].Chunk.ChunkID)
	require.Equal(t, "b.txt#0", res[2].Chunk.ChunkID)
	require.InDelta(t, 1.0, res[0].Score, 1e-4)
	require.InDelta(t, 0.7071, res[2].Score, 1e-3)

	again, err := s.SimilaritySearch(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, res, again)

	hash, ok, err := s.SourceHash(ctx, "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.HashContent("alpha"), hash)

	// re-ingestion replaces the old chunk set
	require.NoError(t, s.Upsert(ctx, testDoc("a.txt", "alpha v2"), []model.Chunk{
		testChunk("a.txt", 0, "west", -1, 0),
	}))
	n, err := s.CountBySource(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	err = s.Upsert(ctx, testDoc("c.txt", "beta"), []model.Chunk{testChunk("c.txt", 0, "dup", 1, 0)})
	require.ErrorIs(t, err, appErr.ErrDuplicateContent)
	n, err = s.CountBySource(ctx, "c.txt")
	require.NoError(t, err)
	require.Zero(t, n)

	err = s.Upsert(ctx, testDoc("d.txt", "delta"), []model.Chunk{testChunk("d.txt", 0, "bad", 1, 0, 0)})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)

	_, err = s.SimilaritySearch(ctx, []float32{1, 0, 0}, 3)
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
	_, err = s.SimilaritySearch(ctx, []float32{1, 0}, 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(2))
}

func TestMemoryStoreConcurrentReadsSeeWholeSets(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	makeChunks := func(n int) []model.Chunk {
		out := make([]model.Chunk, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, testChunk("a.txt", i, fmt.Sprintf("c%d", i), 1, 0))
		}
		return out
	}
	require.NoError(t, s.Upsert(ctx, testDoc("a.txt", "v0"), makeChunks(3)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 50; i++ {
			size := 3
			if i%2 == 1 {
				size = 5
			}
			_ = s.Upsert(ctx, testDoc("a.txt", fmt.Sprintf("v%d", i)), makeChunks(size))
		}
	}()
	for i := 0; i < 200; i++ {
		res, err := s.SimilaritySearch(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Contains(t, []int{3, 5}, len(res))
	}
	wg.Wait()
}

func TestNewFromRegistry(t *testing.T) {
	s, err := New(context.Background(), config.StoreConfig{Type: "Memory"}, 4)
	require.NoError(t, err)
	require.Equal(t, config.StoreTypeMemory, s.Name())
	require.Equal(t, 4, s.Dimension())

	_, err = New(context.Background(), config.StoreConfig{Type: "redis"}, 4)
	require.ErrorIs(t, err, appErr.ErrConfiguration)
	_, err = New(context.Background(), config.StoreConfig{Type: "memory"}, 0)
	require.ErrorIs(t, err, appErr.ErrConfiguration)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{2, 0}, []float32{5, 0}), 1e-6)
	require.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	require.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
}

func TestAtlasScoreToCosine(t *testing.T) {
	require.InDelta(t, 1.0, atlasScoreToCosine(1), 1e-6)
	require.InDelta(t, 0.0, atlasScoreToCosine(0.5), 1e-6)
	require.InDelta(t, -1.0, atlasScoreToCosine(0), 1e-6)
}

func TestPgvectorStore(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	s := NewPgvectorStore(conn, 2)
	// the test schema is created for testutil.TestDimension
	err := s.EnsureSchema(context.Background())
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)

	_, err = conn.Exec("DROP TABLE IF EXISTS chunks")
	require.NoError(t, err)
	_, err = conn.Exec("DELETE FROM documents")
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	exerciseStore(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := testutil.MongoURI(t)
	ctx := context.Background()
	cfg := config.MongoConfig{
		URI:                uri,
		Database:           fmt.Sprintf("examrag_test_%d", time.Now().UnixNano()),
		Collection:         "chunks",
		DocumentCollection: "raw_documents",
		VectorIndex:        "vector_index",
		ConnectTimeout:     5,
	}
	s, err := NewMongoStore(ctx, cfg, 2)
	require.NoError(t, err)
	defer func() {
		_ = s.client.Database(cfg.Database).Drop(ctx)
		_ = s.Close(ctx)
	}()

	require.NoError(t, s.Upsert(ctx, testDoc("a.txt", "alpha"), []model.Chunk{
		testChunk("a.txt", 0, "east", 1, 0),
		testChunk("a.txt", 1, "north", 0, 1),
	}))
	n, err := s.CountBySource(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, s.Upsert(ctx, testDoc("a.txt", "alpha v2"), []model.Chunk{testChunk("a.txt", 0, "west", -1, 0)}))
	n, err = s.CountBySource(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	err = s.Upsert(ctx, testDoc("b.txt", "alpha v2"), []model.Chunk{testChunk("b.txt", 0, "dup", 1, 0)})
	require.ErrorIs(t, err, appErr.ErrDuplicateContent)
}

func TestMongoStoreUnreachable(t *testing.T) {
	cfg := config.MongoConfig{
		URI:                "mongodb://127.0.0.1:1/?connect=direct",
		Database:           "examrag",
		Collection:         "chunks",
		DocumentCollection: "raw_documents",
		ConnectTimeout:     1,
	}
	_, err := NewMongoStore(context.Background(), cfg, 2)
	require.ErrorIs(t, err, appErr.ErrStoreUnavailable)
}
