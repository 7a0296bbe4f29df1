package extract

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/examrag/internal/model"
)

type markdownExtractor struct {
	md goldmark.Markdown
}

func (m *markdownExtractor) ContentType() string {
	return model.ContentTypeMarkdown
}

// Extract drops markdown syntax and keeps one paragraph per top level block,
// so paragraph breaks survive for the chunker.
func (m *markdownExtractor) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("markdown is not valid utf-8")
	}
	reader := text.NewReader(data)
	doc := m.md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var sb strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(data))
			}
			if code := strings.TrimSpace(sb.String()); code != "" {
				blocks = append(blocks, code)
			}
		case *ast.List:
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if txt := blockText(item, data); txt != "" {
					blocks = append(blocks, txt)
				}
			}
		default:
			if txt := blockText(n, data); txt != "" {
				blocks = append(blocks, txt)
			}
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func init() {
	e := &markdownExtractor{md: goldmark.New()}
	Register(".md", e)
	Register(".markdown", e)
}
