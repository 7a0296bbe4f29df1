package extract

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

var ErrUnsupported = errors.New("unsupported source type")

// Error is the per-source extraction failure. It matches appErr.ErrExtraction.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == appErr.ErrExtraction
}

// Extractor converts raw bytes into plain text.
type Extractor interface {
	ContentType() string
	Extract(data []byte) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Extractor{}
)

func Register(ext string, e Extractor) {
	key := strings.ToLower(strings.TrimSpace(ext))
	if key == "" || e == nil {
		return
	}
	registryMu.Lock()
	registry[key] = e
	registryMu.Unlock()
}

func lookup(name string) Extractor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[strings.ToLower(path.Ext(name))]
}

func Supported(name string) bool {
	return lookup(name) != nil
}

// Extract picks an extractor by file extension and returns trimmed text and
// its content type. Any failure is returned as *Error.
func Extract(name string, data []byte) (string, string, error) {
	e := lookup(name)
	if e == nil {
		return "", "", &Error{Source: name, Err: ErrUnsupported}
	}
	text, err := e.Extract(data)
	if err != nil {
		return "", "", &Error{Source: name, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", &Error{Source: name, Err: errors.New("empty content")}
	}
	return text, e.ContentType(), nil
}
