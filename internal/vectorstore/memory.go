package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

type memoryEntry struct {
	chunk model.Chunk
	seq   int64
}

type memoryDoc struct {
	hash    string
	entries []memoryEntry
}

// MemoryStore keeps everything in process. Searches scan every chunk.
type MemoryStore struct {
	dim int

	mu   sync.RWMutex
	docs map[string]*memoryDoc
	seq  int64
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{dim: dim, docs: map[string]*memoryDoc{}}
}

func (s *MemoryStore) Name() string {
	return config.StoreTypeMemory
}

func (s *MemoryStore) Dimension() int {
	return s.dim
}

func (s *MemoryStore) Upsert(ctx context.Context, doc model.Document, chunks []model.Chunk) error {
	if err := checkChunks(doc, chunks, s.dim); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.docs {
		if id != doc.SourceID && other.hash == doc.ContentHash {
			return appErr.ErrDuplicateContent
		}
	}
	entries := make([]memoryEntry, 0, len(chunks))
	for _, c := range chunks {
		s.seq++
		c.Embedding = append([]float32(nil), c.Embedding...)
		entries = append(entries, memoryEntry{chunk: c, seq: s.seq})
	}
	s.docs[doc.SourceID] = &memoryDoc{hash: doc.ContentHash, entries: entries}
	return nil
}

func (s *MemoryStore) SourceHash(ctx context.Context, sourceID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[sourceID]
	if !ok {
		return "", false, nil
	}
	return doc.hash, true, nil
}

func (s *MemoryStore) CountBySource(ctx context.Context, sourceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[sourceID]
	if !ok {
		return 0, nil
	}
	return len(doc.entries), nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	if err := checkQuery(vec, k, s.dim); err != nil {
		return nil, err
	}
	type scored struct {
		item model.ScoredChunk
		seq  int64
	}
	s.mu.RLock()
	all := make([]scored, 0, 64)
	for _, doc := range s.docs {
		for _, e := range doc.entries {
			c := e.chunk
			c.Embedding = nil
			all = append(all, scored{item: model.ScoredChunk{Chunk: c, Score: Cosine(vec, e.chunk.Embedding)}, seq: e.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].item.Score != all[j].item.Score {
			return all[i].item.Score > all[j].item.Score
		}
		return all[i].seq < all[j].seq
	})
	if len(all) > k {
		all = all[:k]
	}
	out := make([]model.ScoredChunk, 0, len(all))
	for _, entry := range all {
		out = append(out, entry.item)
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func init() {
	Register(config.StoreTypeMemory, func(ctx context.Context, cfg config.StoreConfig, dim int) (Store, error) {
		return NewMemoryStore(dim), nil
	})
}
