package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/ai"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
	"github.com/xxxsen/examrag/internal/vectorstore"
)

const DefaultTopK = 10

type Retriever struct {
	embedder ai.IEmbedder
	store    vectorstore.Store
	timeout  time.Duration
}

// NewRetriever bounds every store call by storeTimeout; zero disables it.
func NewRetriever(embedder ai.IEmbedder, store vectorstore.Store, storeTimeout time.Duration) *Retriever {
	return &Retriever{embedder: embedder, store: store, timeout: storeTimeout}
}

// Retrieve returns the k chunks closest to question, best first. An empty
// store gives an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]model.ScoredChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", appErr.ErrInvalid, k)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("k", k))
	vec, err := r.embedder.Embed(ctx, question, ai.TaskTypeRetrievalQuery)
	if err != nil {
		logger.Error("embed question failed", zap.Error(err))
		return nil, fmt.Errorf("embed question: %w", err)
	}
	searchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := r.store.SimilaritySearch(searchCtx, vec, k)
	if err != nil {
		err = storeErr(err)
		logger.Error("similarity search failed", zap.Error(err))
		return nil, err
	}
	logger.Debug("chunks retrieved", zap.Int("count", len(res)), zap.Duration("cost", time.Since(start)))
	return res, nil
}

// FilterByScore drops results scoring below minScore. A minScore of zero or
// less keeps everything.
func FilterByScore(items []model.ScoredChunk, minScore float64) []model.ScoredChunk {
	if minScore <= 0 {
		return items
	}
	out := make([]model.ScoredChunk, 0, len(items))
	for _, item := range items {
		if float64(item.Score) >= minScore {
			out = append(out, item)
		}
	}
	return out
}
