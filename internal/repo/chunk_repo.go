package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/examrag/internal/model"
	"github.com/xxxsen/examrag/internal/pkg/dbutil"
)

const chunkInsertBatch = 200

type ChunkRepo struct {
	db DBTX
}

func NewChunkRepo(db DBTX) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts chunks in slice order, which fixes their sequence
// numbers for tie breaking.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []model.Chunk) error {
	for start := 0; start < len(chunks); start += chunkInsertBatch {
		end := min(start+chunkInsertBatch, len(chunks))
		data := make([]map[string]interface{}, 0, end-start)
		for _, c := range chunks[start:end] {
			data = append(data, map[string]interface{}{
				"chunk_id":     c.ChunkID,
				"source_id":    c.SourceID,
				"ordinal":      c.Ordinal,
				"text":         c.Text,
				"start_offset": c.StartOffset,
				"category":     c.Category,
				"embedding":    pgvector.NewVector(c.Embedding),
			})
		}
		sqlStr, args, err := builder.BuildInsert("chunks", data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepo) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	where := map[string]interface{}{
		"source_id": sourceID,
	}
	sqlStr, args, err := builder.BuildDelete("chunks", where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ChunkRepo) CountBySource(ctx context.Context, sourceID string) (int, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(*) FROM chunks WHERE source_id=?", []interface{}{sourceID})
	var n int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Search ranks chunks by cosine similarity to vec. Equal distances keep
// insertion order.
func (r *ChunkRepo) Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	const query = `
		SELECT chunk_id, source_id, ordinal, text, start_offset, category, 1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.ScoredChunk, 0, k)
	for rows.Next() {
		var item model.ScoredChunk
		var score float64
		if err := rows.Scan(
			&item.Chunk.ChunkID,
			&item.Chunk.SourceID,
			&item.Chunk.Ordinal,
			&item.Chunk.Text,
			&item.Chunk.StartOffset,
			&item.Chunk.Category,
			&score,
		); err != nil {
			return nil, err
		}
		item.Score = float32(score)
		results = append(results, item)
	}
	return results, rows.Err()
}

// ColumnDimension reports the declared size of chunks.embedding, or 0 when
// the table does not exist yet.
func (r *ChunkRepo) ColumnDimension(ctx context.Context) (int, error) {
	const query = `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass('chunks') AND a.attname = 'embedding'
	`
	var dim int
	if err := r.db.QueryRowContext(ctx, query).Scan(&dim); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return dim, nil
}
