package source

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/xxxsen/examrag/internal/config"
)

//go:embed builtin/*.txt
var builtinFS embed.FS

// MemorySource serves documents held in memory, keyed by source id.
type MemorySource struct {
	name  string
	files map[string][]byte
	now   func() time.Time
}

func NewMemorySource(name string, files map[string]string) *MemorySource {
	data := make(map[string][]byte, len(files))
	for k, v := range files {
		data[k] = []byte(v)
	}
	return &MemorySource{name: name, files: data, now: time.Now}
}

// Builtin returns the bundled JAMB overview corpus.
func Builtin() *MemorySource {
	files := map[string][]byte{}
	entries, _ := fs.ReadDir(builtinFS, "builtin")
	for _, entry := range entries {
		data, err := fs.ReadFile(builtinFS, "builtin/"+entry.Name())
		if err != nil {
			continue
		}
		files[entry.Name()] = data
	}
	return &MemorySource{name: TypeBuiltin, files: files, now: time.Now}
}

func (m *MemorySource) Name() string {
	return m.name
}

func (m *MemorySource) Load(ctx context.Context) ([]Result, error) {
	ids := make([]string, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	now := m.now()
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, buildResult(id, m.files[id], now))
	}
	return out, nil
}

func init() {
	Register(TypeBuiltin, func(ctx context.Context, cfg config.SourceConfig) (Source, error) {
		return Builtin(), nil
	})
}
