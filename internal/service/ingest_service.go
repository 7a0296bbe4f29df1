package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/ai"
	"github.com/xxxsen/examrag/internal/chunker"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
	"github.com/xxxsen/examrag/internal/source"
	"github.com/xxxsen/examrag/internal/vectorstore"
)

// IngestService moves documents through extraction, chunking, embedding and
// storage. Runs are serialized; a document is only visible to queries once
// its Upsert commits.
type IngestService struct {
	mu       sync.Mutex
	splitter *chunker.Splitter
	embedder ai.IEmbedder
	store    vectorstore.Store
	workers  int
	timeout  time.Duration
	now      func() time.Time
}

func NewIngestService(splitter *chunker.Splitter, embedder ai.IEmbedder, store vectorstore.Store, workers int, storeTimeout time.Duration) *IngestService {
	return &IngestService{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		workers:  workers,
		timeout:  storeTimeout,
		now:      time.Now,
	}
}

// Ingest loads src and indexes every document it yields. The returned report
// is never nil; the error is set only when the run was aborted.
func (s *IngestService) Ingest(ctx context.Context, src source.Source) (*model.IngestReport, error) {
	report := &model.IngestReport{Source: src.Name(), State: model.IngestStateExtracting, Started: s.now().Unix()}
	results, err := src.Load(ctx)
	if err != nil {
		report.State = model.IngestStateFailed
		report.Finished = s.now().Unix()
		logutil.GetLogger(ctx).Error("load source failed", zap.String("source", src.Name()), zap.Error(err))
		return report, fmt.Errorf("load source %s: %w", src.Name(), err)
	}
	return s.run(ctx, report, results)
}

// IngestResults indexes already loaded results under the given source name.
func (s *IngestService) IngestResults(ctx context.Context, name string, results []source.Result) (*model.IngestReport, error) {
	report := &model.IngestReport{Source: name, State: model.IngestStateExtracting, Started: s.now().Unix()}
	return s.run(ctx, report, results)
}

func (s *IngestService) run(ctx context.Context, report *model.IngestReport, results []source.Result) (*model.IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logutil.GetLogger(ctx).With(zap.String("source", report.Source))
	logger.Info("ingestion started", zap.Int("documents", len(results)))
	for _, res := range results {
		item := model.DocumentReport{SourceID: res.SourceID, Stage: model.IngestStateExtracting}
		err := s.ingestOne(ctx, res, &item)
		if err != nil {
			item.Status = model.DocumentFailed
			item.Error = err.Error()
			report.Documents = append(report.Documents, item)
			if appErr.IsFatal(err) {
				report.State = model.IngestStateFailed
				report.Finished = s.now().Unix()
				logger.Error("ingestion aborted",
					zap.String("source_id", res.SourceID),
					zap.String("stage", string(item.Stage)),
					zap.Error(err))
				return report, fmt.Errorf("ingest %s: %w", res.SourceID, err)
			}
			logger.Warn("document skipped",
				zap.String("source_id", res.SourceID),
				zap.String("stage", string(item.Stage)),
				zap.Error(err))
			continue
		}
		item.Stage = ""
		report.Documents = append(report.Documents, item)
	}
	report.State = model.IngestStateIdle
	report.Finished = s.now().Unix()
	logger.Info("ingestion finished",
		zap.Int("indexed", report.Indexed()),
		zap.Int("unchanged", report.Unchanged()),
		zap.Int("failed", report.Failed()),
		zap.Int("chunks", report.Chunks()))
	return report, nil
}

func (s *IngestService) ingestOne(ctx context.Context, res source.Result, item *model.DocumentReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source_id", res.SourceID))
	if res.Err != nil {
		return res.Err
	}
	if res.Document == nil {
		return fmt.Errorf("%w: source returned no document", appErr.ErrExtraction)
	}
	doc := *res.Document
	if doc.ContentHash == "" {
		doc.ContentHash = model.HashContent(doc.Text)
	}

	hash, ok, err := s.sourceHash(ctx, doc.SourceID)
	if err != nil {
		return err
	}
	if ok && hash == doc.ContentHash {
		item.Status = model.DocumentUnchanged
		logger.Debug("document unchanged, skip")
		return nil
	}

	item.Stage = model.IngestStateChunking
	logger.Debug("state changed", zap.String("state", string(item.Stage)))
	segments := s.splitter.Split(doc.Text)
	chunks := make([]model.Chunk, 0, len(segments))
	texts := make([]string, 0, len(segments))
	for i, seg := range segments {
		chunks = append(chunks, model.Chunk{
			ChunkID:     model.ChunkID(doc.SourceID, i),
			SourceID:    doc.SourceID,
			Ordinal:     i,
			Text:        seg.Text,
			StartOffset: seg.Start,
			Category:    doc.Category,
		})
		texts = append(texts, seg.Text)
	}

	item.Stage = model.IngestStateEmbedding
	logger.Debug("state changed", zap.String("state", string(item.Stage)), zap.Int("chunks", len(chunks)))
	vecs, err := ai.EmbedBatch(ctx, s.embedder, texts, ai.TaskTypeRetrievalDocument, s.workers)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}

	item.Stage = model.IngestStateStoring
	logger.Debug("state changed", zap.String("state", string(item.Stage)))
	if err := s.upsert(ctx, doc, chunks); err != nil {
		return err
	}
	item.Status = model.DocumentIndexed
	item.Chunks = len(chunks)
	logger.Info("document indexed", zap.Int("chunks", len(chunks)))
	return nil
}

func (s *IngestService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *IngestService) sourceHash(ctx context.Context, sourceID string) (string, bool, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	hash, ok, err := s.store.SourceHash(ctx, sourceID)
	return hash, ok, storeErr(err)
}

func (s *IngestService) upsert(ctx context.Context, doc model.Document, chunks []model.Chunk) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return storeErr(s.store.Upsert(ctx, doc, chunks))
}

// storeErr classifies a deadline hit while talking to the store as the store
// being unavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, appErr.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", appErr.ErrStoreUnavailable, err)
	}
	return err
}
