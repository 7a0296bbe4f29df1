// Package vectorstore persists embedded chunks and answers nearest neighbour
// queries. Backends register themselves by name.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

type Store interface {
	Name() string
	// Dimension is the vector length every chunk and query must have.
	Dimension() int
	// Upsert replaces every chunk of doc.SourceID together with the document
	// record. Readers observe either the old set or the new one.
	Upsert(ctx context.Context, doc model.Document, chunks []model.Chunk) error
	SourceHash(ctx context.Context, sourceID string) (string, bool, error)
	CountBySource(ctx context.Context, sourceID string) (int, error)
	// SimilaritySearch returns at most k chunks by descending cosine score,
	// ties broken by insertion order.
	SimilaritySearch(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Factory func(ctx context.Context, cfg config.StoreConfig, dim int) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(ctx context.Context, cfg config.StoreConfig, dim int) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("%w: store.type is required", appErr.ErrConfiguration)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", appErr.ErrConfiguration)
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported store type: %s", appErr.ErrConfiguration, cfg.Type)
	}
	return factory(ctx, cfg, dim)
}

func checkChunks(doc model.Document, chunks []model.Chunk, dim int) error {
	if doc.SourceID == "" {
		return fmt.Errorf("%w: source id is required", appErr.ErrInvalid)
	}
	for _, c := range chunks {
		if c.SourceID != doc.SourceID {
			return fmt.Errorf("%w: chunk %s does not belong to %s", appErr.ErrInvalid, c.ChunkID, doc.SourceID)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %s has %d values, store expects %d", appErr.ErrDimensionMismatch, c.ChunkID, len(c.Embedding), dim)
		}
	}
	return nil
}

func checkQuery(vec []float32, k int, dim int) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be >= 1", appErr.ErrInvalid)
	}
	if len(vec) != dim {
		return fmt.Errorf("%w: query has %d values, store expects %d", appErr.ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
