// Package source loads raw documents for ingestion. A source never fails as
// a whole because one document is unreadable: per-document problems are
// reported in the matching Result.
package source

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/extract"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

const (
	TypeBuiltin = "builtin"
	TypeDir     = "dir"
	TypeS3      = "s3"
)

// Result carries either a loaded document or the reason it could not be
// loaded.
type Result struct {
	SourceID string
	Document *model.Document
	Err      error
}

type Source interface {
	Name() string
	Load(ctx context.Context) ([]Result, error)
}

type Factory func(ctx context.Context, cfg config.SourceConfig) (Source, error)

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

func New(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("%w: ingest.source.type is required", appErr.ErrConfiguration)
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported source type: %s", appErr.ErrConfiguration, cfg.Type)
	}
	return factory(ctx, cfg)
}

// buildResult extracts data and turns it into a document. sourceID uses
// forward slashes; a nested id takes its first segment as category.
func buildResult(sourceID string, data []byte, collectedAt time.Time) Result {
	text, contentType, err := extract.Extract(sourceID, data)
	if err != nil {
		return Result{SourceID: sourceID, Err: err}
	}
	return Result{
		SourceID: sourceID,
		Document: &model.Document{
			SourceID:    sourceID,
			Text:        text,
			ContentType: contentType,
			Category:    categoryOf(sourceID),
			ContentHash: model.HashContent(text),
			CollectedAt: collectedAt.Unix(),
		},
	}
}

func categoryOf(sourceID string) string {
	dir := path.Dir(sourceID)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.Split(strings.TrimPrefix(dir, "/"), "/")[0]
}
