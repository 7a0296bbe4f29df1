package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/db"
	"github.com/xxxsen/examrag/internal/model"
	"github.com/xxxsen/examrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
	"github.com/xxxsen/examrag/internal/repo"
)

// PgvectorStore keeps chunks in postgres with the pgvector extension.
type PgvectorStore struct {
	db     *sql.DB
	dim    int
	chunks *repo.ChunkRepo
	docs   *repo.DocumentRepo
	owned  bool
	now    func() time.Time
}

// NewPgvectorStore wraps an open connection. EnsureSchema must run before the
// first write.
func NewPgvectorStore(conn *sql.DB, dim int) *PgvectorStore {
	return &PgvectorStore{
		db:     conn,
		dim:    dim,
		chunks: repo.NewChunkRepo(conn),
		docs:   repo.NewDocumentRepo(conn),
		now:    time.Now,
	}
}

// EnsureSchema provisions the tables and verifies that an existing chunk
// table was created for the same dimension.
func (s *PgvectorStore) EnsureSchema(ctx context.Context) error {
	existing, err := s.chunks.ColumnDimension(ctx)
	if err != nil {
		return s.wrap("read schema", err)
	}
	if existing > 0 && existing != s.dim {
		return fmt.Errorf("%w: chunks.embedding is vector(%d), embedding model produces %d",
			appErr.ErrDimensionMismatch, existing, s.dim)
	}
	if err := db.ApplyMigrations(ctx, s.db, s.dim); err != nil {
		return s.wrap("apply migrations", err)
	}
	return nil
}

// DB exposes the underlying connection so other postgres tables can share it.
func (s *PgvectorStore) DB() *sql.DB {
	return s.db
}

func (s *PgvectorStore) Name() string {
	return config.StoreTypePgvector
}

func (s *PgvectorStore) Dimension() int {
	return s.dim
}

func (s *PgvectorStore) Upsert(ctx context.Context, doc model.Document, chunks []model.Chunk) (err error) {
	if err := checkChunks(doc, chunks, s.dim); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	chunkRepo := repo.NewChunkRepo(tx)
	docRepo := repo.NewDocumentRepo(tx)
	removed, err := chunkRepo.DeleteBySource(ctx, doc.SourceID)
	if err != nil {
		return s.wrap("delete chunks", err)
	}
	if err := docRepo.Upsert(ctx, &doc, len(chunks), s.now().Unix()); err != nil {
		if errors.Is(err, appErr.ErrDuplicateContent) {
			return err
		}
		return s.wrap("upsert document", err)
	}
	if err := chunkRepo.InsertBatch(ctx, chunks); err != nil {
		return s.wrap("insert chunks", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("commit", err)
	}
	logutil.GetLogger(ctx).Debug("pgvector upsert finished",
		zap.String("source_id", doc.SourceID),
		zap.Int64("removed", removed),
		zap.Int("inserted", len(chunks)))
	return nil
}

func (s *PgvectorStore) SourceHash(ctx context.Context, sourceID string) (string, bool, error) {
	hash, ok, err := s.docs.GetHash(ctx, sourceID)
	if err != nil {
		return "", false, s.wrap("get document hash", err)
	}
	return hash, ok, nil
}

func (s *PgvectorStore) CountBySource(ctx context.Context, sourceID string) (int, error) {
	n, err := s.chunks.CountBySource(ctx, sourceID)
	if err != nil {
		return 0, s.wrap("count chunks", err)
	}
	return n, nil
}

func (s *PgvectorStore) SimilaritySearch(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	if err := checkQuery(vec, k, s.dim); err != nil {
		return nil, err
	}
	res, err := s.chunks.Search(ctx, vec, k)
	if err != nil {
		return nil, s.wrap("search chunks", err)
	}
	return res, nil
}

func (s *PgvectorStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", appErr.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PgvectorStore) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *PgvectorStore) wrap(op string, err error) error {
	if dbutil.IsUnavailable(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: pgvector %s: %w", appErr.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("pgvector %s: %w", op, err)
}

func createPgvectorStore(ctx context.Context, cfg config.StoreConfig, dim int) (Store, error) {
	conn, err := db.Open(ctx, cfg.Postgres, time.Duration(cfg.Timeout)*time.Second)
	if err != nil {
		return nil, err
	}
	store := NewPgvectorStore(conn, dim)
	store.owned = true
	if err := store.EnsureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

func init() {
	Register(config.StoreTypePgvector, createPgvectorStore)
}
