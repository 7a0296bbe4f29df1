// Package chunker splits document text into bounded, overlapping segments.
//
// Text is first cut recursively on the coarsest separator that occurs
// (paragraph, line, sentence, word) and only falls back to hard character cuts
// when a piece still does not fit. Pieces keep their trailing separator, so
// they always partition the input exactly. Adjacent pieces are then merged
// greedily and every segment after the first is prefixed with the overlap
// characters that precede it in the text.
//
// Lengths and offsets are counted in runes.
package chunker

import (
	"fmt"

	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

type Segment struct {
	Text  string
	Start int
}

// End is the rune offset just past the segment.
func (s Segment) End() int {
	return s.Start + len([]rune(s.Text))
}

type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

func New(size, overlap int) (*Splitter, error) {
	return NewWithSeparators(size, overlap, DefaultSeparators)
}

func NewWithSeparators(size, overlap int, separators []string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", appErr.ErrInvalid, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", appErr.ErrInvalid, size, overlap)
	}
	seps := make([][]rune, 0, len(separators))
	for _, sep := range separators {
		if sep == "" {
			continue
		}
		seps = append(seps, []rune(sep))
	}
	return &Splitter{size: size, overlap: overlap, separators: seps}, nil
}

// Split is a shortcut for New(size, overlap).Split(text).
func Split(text string, size, overlap int) ([]Segment, error) {
	s, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

func (s *Splitter) Split(text string) []Segment {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.size {
		return []Segment{{Text: text, Start: 0}}
	}
	stride := s.size - s.overlap
	var pieces []span
	s.split(runes, span{0, len(runes)}, 0, stride, &pieces)
	merged := merge(pieces, s.size, stride)

	out := make([]Segment, 0, len(merged))
	for i, m := range merged {
		start := m.start
		if i > 0 {
			start -= min(s.overlap, m.start)
		}
		out = append(out, Segment{Text: string(runes[start:m.end]), Start: start})
	}
	return out
}

type span struct {
	start int
	end   int
}

func (sp span) len() int {
	return sp.end - sp.start
}

func (s *Splitter) split(runes []rune, sp span, level int, limit int, out *[]span) {
	if sp.len() <= limit {
		*out = append(*out, sp)
		return
	}
	if level >= len(s.separators) {
		for start := sp.start; start < sp.end; start += limit {
			*out = append(*out, span{start, min(start+limit, sp.end)})
		}
		return
	}
	parts := cut(runes, sp, s.separators[level])
	if len(parts) == 1 {
		s.split(runes, sp, level+1, limit, out)
		return
	}
	for _, part := range parts {
		if part.len() <= limit {
			*out = append(*out, part)
			continue
		}
		s.split(runes, part, level+1, limit, out)
	}
}

// cut splits sp after every occurrence of sep. The separator stays with the
// piece before it.
func cut(runes []rune, sp span, sep []rune) []span {
	var parts []span
	start := sp.start
	for i := sp.start; i+len(sep) <= sp.end; {
		if hasPrefixAt(runes, i, sep) {
			end := i + len(sep)
			parts = append(parts, span{start, end})
			start = end
			i = end
			continue
		}
		i++
	}
	if start < sp.end {
		parts = append(parts, span{start, sp.end})
	}
	return parts
}

func hasPrefixAt(runes []rune, at int, sep []rune) bool {
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

// merge packs consecutive pieces. The first segment may use the full size,
// later ones leave room for the overlap prefix.
func merge(pieces []span, size, stride int) []span {
	var out []span
	var cur span
	open := false
	for _, p := range pieces {
		if !open {
			cur = p
			open = true
			continue
		}
		budget := stride
		if len(out) == 0 {
			budget = size
		}
		if cur.len()+p.len() <= budget {
			cur.end = p.end
			continue
		}
		out = append(out, cur)
		cur = p
	}
	if open {
		out = append(out, cur)
	}
	return out
}
