package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/extract"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

// DirSource walks a directory tree in lexical order and loads every file with
// a supported extension.
type DirSource struct {
	root         string
	extractedDir string
}

func NewDirSource(root string, extractedDir string) *DirSource {
	return &DirSource{root: root, extractedDir: extractedDir}
}

func (d *DirSource) Name() string {
	return TypeDir + ":" + d.root
}

func (d *DirSource) Load(ctx context.Context) ([]Result, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("%w: open source dir: %w", appErr.ErrInvalid, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", appErr.ErrInvalid, d.root)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dir", d.root))
	skipDir := ""
	if d.extractedDir != "" {
		if skipDir, err = filepath.Abs(d.extractedDir); err != nil {
			return nil, fmt.Errorf("%w: resolve extracted dir: %w", appErr.ErrInvalid, err)
		}
	}
	var out []Result
	err = filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			// extracted text written under the root must not come back as sources
			if skipDir != "" && p != d.root {
				if abs, err := filepath.Abs(p); err == nil && abs == skipDir {
					return fs.SkipDir
				}
			}
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		sourceID := filepath.ToSlash(rel)
		if !extract.Supported(sourceID) {
			logger.Debug("skip unsupported file", zap.String("source_id", sourceID))
			return nil
		}
		fi, err := entry.Info()
		if err != nil {
			out = append(out, Result{SourceID: sourceID, Err: err})
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			out = append(out, Result{SourceID: sourceID, Err: &extract.Error{Source: sourceID, Err: err}})
			return nil
		}
		res := buildResult(sourceID, data, fi.ModTime())
		if res.Err == nil && d.extractedDir != "" {
			if err := d.saveExtracted(sourceID, res.Document.Text); err != nil {
				logger.Warn("save extracted text failed", zap.String("source_id", sourceID), zap.Error(err))
			}
		}
		out = append(out, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DirSource) saveExtracted(sourceID string, text string) error {
	target := filepath.Join(d.extractedDir, filepath.FromSlash(sourceID)+".txt")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, []byte(text), 0o644)
}

func init() {
	Register(TypeDir, func(ctx context.Context, cfg config.SourceConfig) (Source, error) {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("%w: ingest.source.dir is required", appErr.ErrConfiguration)
		}
		return NewDirSource(cfg.Dir, cfg.ExtractedDir), nil
	})
}
