package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/examrag/internal/model"
	"github.com/xxxsen/examrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

type DocumentRepo struct {
	db DBTX
}

func NewDocumentRepo(db DBTX) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Upsert writes the document record keyed by source id. Identical content
// already stored under another source id yields ErrDuplicateContent.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *model.Document, chunkCount int, mtime int64) error {
	const query = `
		INSERT INTO documents (source_id, content_hash, category, content_type, collected_at, chunk_count, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			category = EXCLUDED.category,
			content_type = EXCLUDED.content_type,
			collected_at = EXCLUDED.collected_at,
			chunk_count = EXCLUDED.chunk_count,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.SourceID,
		doc.ContentHash,
		doc.Category,
		doc.ContentType,
		doc.CollectedAt,
		chunkCount,
		mtime,
	)
	if dbutil.IsConflict(err) {
		return appErr.ErrDuplicateContent
	}
	return err
}

func (r *DocumentRepo) GetHash(ctx context.Context, sourceID string) (string, bool, error) {
	where := map[string]interface{}{
		"source_id": sourceID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, []string{"content_hash"})
	if err != nil {
		return "", false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var hash string
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return hash, true, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, sourceID string) error {
	where := map[string]interface{}{
		"source_id": sourceID,
	}
	sqlStr, args, err := builder.BuildDelete("documents", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
