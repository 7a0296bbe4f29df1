package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/ai"
	"github.com/xxxsen/examrag/internal/chunker"
	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/db"
	"github.com/xxxsen/examrag/internal/embedcache"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
	"github.com/xxxsen/examrag/internal/repo"
	"github.com/xxxsen/examrag/internal/source"
	"github.com/xxxsen/examrag/internal/vectorstore"
)

const (
	warmupText   = "warm up"
	warmupPrompt = "Hi"
)

type pipelineOptions struct {
	store     vectorstore.Store
	embedder  ai.IEmbedder
	generator ai.IGenerator
}

type Option func(*pipelineOptions)

// WithStore injects a store. The pipeline does not close injected stores.
func WithStore(store vectorstore.Store) Option {
	return func(o *pipelineOptions) {
		o.store = store
	}
}

// WithEmbedder replaces the configured embedding provider. Caching,
// dimension checks and timeouts still apply.
func WithEmbedder(embedder ai.IEmbedder) Option {
	return func(o *pipelineOptions) {
		o.embedder = embedder
	}
}

func WithGenerator(generator ai.IGenerator) Option {
	return func(o *pipelineOptions) {
		o.generator = generator
	}
}

// Pipeline owns every long lived handle needed to ingest and answer. It is
// built once by NewPipeline, shared by all requests and torn down by Close.
type Pipeline struct {
	cfg          *config.Config
	store        vectorstore.Store
	embedder     ai.IEmbedder
	generator    ai.IGenerator
	retriever    *Retriever
	synthesizer  *Synthesizer
	ingest       *IngestService
	cacheRepo    *repo.EmbeddingCacheRepo
	storeTimeout time.Duration

	closers   []func(ctx context.Context) error
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewPipeline connects every dependency and verifies it with a warm-up call.
// On any failure the handles opened so far are released and no pipeline is
// returned.
func NewPipeline(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	o := &pipelineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	logger := logutil.GetLogger(ctx)
	p := &Pipeline{
		cfg:          cfg,
		storeTimeout: time.Duration(cfg.Store.Timeout) * time.Second,
	}
	succeed := false
	defer func() {
		if !succeed {
			_ = p.Close(context.Background())
		}
	}()

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.OverlapSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrConfiguration, err)
	}
	dim := cfg.Embedding.Dimension

	p.store = o.store
	if p.store == nil {
		store, err := vectorstore.New(ctx, cfg.Store, dim)
		if err != nil {
			logger.Error("init vector store failed", zap.String("store_type", cfg.Store.Type), zap.Error(err))
			return nil, err
		}
		p.store = store
		p.closers = append(p.closers, store.Close)
	}
	if p.store.Dimension() != dim {
		return nil, fmt.Errorf("%w: store %s holds %d dims, embedding.dimension is %d",
			appErr.ErrDimensionMismatch, p.store.Name(), p.store.Dimension(), dim)
	}

	embedder, err := p.buildEmbedder(ctx, o.embedder)
	if err != nil {
		return nil, err
	}
	p.embedder = embedder

	p.generator = o.generator
	if p.generator == nil {
		generator, err := buildGenerator(cfg.LLM)
		if err != nil {
			return nil, err
		}
		p.generator = generator
	}
	p.generator = ai.WithGenerateTimeout(p.generator, time.Duration(cfg.LLM.Timeout)*time.Second)

	if err := p.warmup(ctx); err != nil {
		return nil, err
	}

	p.retriever = NewRetriever(p.embedder, p.store, p.storeTimeout)
	p.synthesizer = NewSynthesizer(p.generator, cfg.Assistant, cfg.Retrieval.MaxContextChars)
	p.ingest = NewIngestService(splitter, p.embedder, p.store, cfg.Embedding.BatchWorkers, p.storeTimeout)
	succeed = true
	logger.Info("pipeline initialized",
		zap.String("store_type", p.store.Name()),
		zap.String("embedding_model", p.embedder.ModelName()),
		zap.Int("embedding_dim", dim))
	return p, nil
}

func (p *Pipeline) buildEmbedder(ctx context.Context, base ai.IEmbedder) (ai.IEmbedder, error) {
	cfg := p.cfg.Embedding
	if base == nil {
		provider, err := ai.NewEmbedProvider(cfg.Provider, embedProviderArgs(cfg))
		if err != nil {
			return nil, err
		}
		base = ai.NewEmbedder(provider, cfg.Model)
	}
	embedder := ai.WithDimension(base, cfg.Dimension)
	if cfg.DBCache {
		conn, err := p.cacheDB(ctx)
		if err != nil {
			return nil, err
		}
		p.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, p.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.CacheSize, time.Duration(cfg.CacheTTL)*time.Second)
	return ai.WithTimeout(embedder, time.Duration(cfg.Timeout)*time.Second), nil
}

// cacheDB reuses the pgvector store connection when there is one and opens a
// dedicated postgres connection otherwise.
func (p *Pipeline) cacheDB(ctx context.Context) (*sql.DB, error) {
	if pg, ok := p.store.(*vectorstore.PgvectorStore); ok {
		return pg.DB(), nil
	}
	pgCfg := p.cfg.Store.Postgres
	if pgCfg.DSN == "" && pgCfg.Host == "" {
		return nil, fmt.Errorf("%w: embedding.db_cache needs store.postgres settings", appErr.ErrConfiguration)
	}
	conn, err := db.Open(ctx, pgCfg, p.storeTimeout)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, func(context.Context) error {
		return conn.Close()
	})
	if err := db.ApplyMigrations(ctx, conn, p.cfg.Embedding.Dimension); err != nil {
		return nil, fmt.Errorf("%w: migrate embedding cache: %w", appErr.ErrStoreUnavailable, err)
	}
	return conn, nil
}

func embedProviderArgs(cfg config.EmbeddingConfig) map[string]interface{} {
	args := make(map[string]interface{}, len(cfg.Data)+1)
	for k, v := range cfg.Data {
		args[k] = v
	}
	if strings.EqualFold(cfg.Provider, "hashing") {
		if _, ok := args["dimension"]; !ok {
			args["dimension"] = cfg.Dimension
		}
	}
	return args
}

func buildGenerator(cfg config.LLMConfig) (ai.IGenerator, error) {
	refs := append([]config.ProviderRef{{Provider: cfg.Provider, Model: cfg.Model, Data: cfg.Data}}, cfg.Fallbacks...)
	entries := make([]ai.GeneratorEntry, 0, len(refs))
	for _, ref := range refs {
		provider, err := ai.NewProvider(ref.Provider, ref.Data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      provider.Name() + "/" + ref.Model,
			Generator: ai.NewGenerator(provider, ref.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func (p *Pipeline) warmup(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	if _, err := p.embedder.Embed(ctx, warmupText, ai.TaskTypeRetrievalQuery); err != nil {
		logger.Error("embedder warm-up failed", zap.String("model", p.embedder.ModelName()), zap.Error(err))
		return fmt.Errorf("embedder warm-up: %w", err)
	}
	if err := p.ping(ctx); err != nil {
		logger.Error("store ping failed", zap.String("store_type", p.store.Name()), zap.Error(err))
		return err
	}
	if !p.cfg.LLM.WarmupEnabled() {
		return nil
	}
	if _, err := p.generator.Generate(ctx, warmupPrompt); err != nil {
		logger.Error("llm warm-up failed", zap.String("model", p.cfg.LLM.Model), zap.Error(err))
		return fmt.Errorf("llm warm-up: %w", err)
	}
	return nil
}

func (p *Pipeline) ping(ctx context.Context) error {
	if p.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.storeTimeout)
		defer cancel()
	}
	return storeErr(p.store.Ping(ctx))
}

func (p *Pipeline) ready() bool {
	return p != nil && !p.closed.Load()
}

// Ask answers one question. Identity questions are answered directly without
// retrieval or generation.
func (p *Pipeline) Ask(ctx context.Context, question string, customIntro string) (model.Answer, error) {
	if !p.ready() {
		return model.Answer{}, appErr.ErrNotReady
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Answer{}, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("question_len", len(question)))
	if IsIdentityQuestion(question) {
		logger.Debug("identity question answered directly")
		return model.Answer{Text: p.cfg.Assistant.IdentityAnswer}, nil
	}
	results, err := p.retriever.Retrieve(ctx, question, p.cfg.Retrieval.TopK)
	if err != nil {
		return model.Answer{}, err
	}
	kept := FilterByScore(results, p.cfg.Retrieval.MinScore)
	logger.Debug("context selected", zap.Int("retrieved", len(results)), zap.Int("kept", len(kept)))
	return p.synthesizer.Synthesize(ctx, question, model.ChunkTexts(kept), customIntro)
}

// Retrieve exposes the raw retrieval step.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) ([]model.ScoredChunk, error) {
	if !p.ready() {
		return nil, appErr.ErrNotReady
	}
	return p.retriever.Retrieve(ctx, question, k)
}

func (p *Pipeline) Ingest(ctx context.Context, src source.Source) (*model.IngestReport, error) {
	if !p.ready() {
		return nil, appErr.ErrNotReady
	}
	return p.ingest.Ingest(ctx, src)
}

// Health probes the store without mutating anything. It is safe on a nil
// pipeline, which reports not_initialized.
func (p *Pipeline) Health(ctx context.Context) model.Health {
	h := model.Health{
		APIStatus:      "ok",
		PipelineStatus: model.PipelineNotInitialized,
		StoreStatus:    model.StoreDisconnected,
	}
	if !p.ready() {
		return h
	}
	h.PipelineStatus = model.PipelineInitialized
	h.Settings = p.cfg.Settings()
	if err := p.ping(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("store health probe failed", zap.String("store_type", p.store.Name()), zap.Error(err))
		return h
	}
	h.StoreStatus = model.StoreConnected
	return h
}

// EmbeddingCacheRepo is nil unless embedding.db_cache is enabled.
func (p *Pipeline) EmbeddingCacheRepo() *repo.EmbeddingCacheRepo {
	return p.cacheRepo
}

// Close releases owned handles in reverse order. Calls after the first return
// the first result.
func (p *Pipeline) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		var errs []error
		for i := len(p.closers) - 1; i >= 0; i-- {
			if err := p.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
		logutil.GetLogger(ctx).Info("pipeline closed")
	})
	return p.closeErr
}
