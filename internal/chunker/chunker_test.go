package chunker

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

func rebuild(t *testing.T, segments []Segment) string {
	t.Helper()
	var sb strings.Builder
	prevEnd := 0
	for i, seg := range segments {
		runes := []rune(seg.Text)
		if i == 0 {
			require.Equal(t, 0, seg.Start)
			sb.WriteString(seg.Text)
			prevEnd = seg.End()
			continue
		}
		overlap := prevEnd - seg.Start
		require.GreaterOrEqual(t, overlap, 0)
		require.LessOrEqual(t, overlap, len(runes))
		sb.WriteString(string(runes[overlap:]))
		prevEnd = seg.End()
	}
	return sb.String()
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	segments, err := Split("JAMB was established in 1978.", 1000, 200)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, "JAMB was established in 1978.", segments[0].Text)
	require.Equal(t, 0, segments[0].Start)
}

func TestSplitEmptyText(t *testing.T) {
	segments, err := Split("", 10, 2)
	require.NoError(t, err)
	require.Empty(t, segments)
}

func TestSplitRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative overlap", size: 10, overlap: -1},
		{name: "overlap equals size", size: 10, overlap: 10},
		{name: "overlap exceeds size", size: 10, overlap: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("text", tt.size, tt.overlap)
			require.ErrorIs(t, err, appErr.ErrInvalid)
		})
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	p1 := strings.Repeat("a", 30) + "\n\n"
	p2 := strings.Repeat("b", 30) + "\n\n"
	p3 := strings.Repeat("c", 30)
	text := p1 + p2 + p3

	segments, err := Split(text, 40, 5)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	require.Equal(t, p1, segments[0].Text)
	// later chunks start with the 5 characters before their paragraph
	require.Equal(t, text[len(p1)-5:len(p1)+len(p2)], segments[1].Text)
	require.Equal(t, text[len(p1)+len(p2)-5:], segments[2].Text)
	require.Equal(t, text, rebuild(t, segments))
}

func TestSplitFallsBackToCharacters(t *testing.T) {
	text := strings.Repeat("x", 95)
	segments, err := Split(text, 20, 5)
	require.NoError(t, err)
	for i, seg := range segments {
		require.LessOrEqual(t, len([]rune(seg.Text)), 20)
		if i > 0 {
			require.Equal(t, 5, segments[i-1].End()-seg.Start)
		}
	}
	require.Equal(t, text, rebuild(t, segments))
}

func TestSplitCountsRunes(t *testing.T) {
	text := strings.Repeat("ñü ", 40)
	segments, err := Split(text, 25, 4)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
	for _, seg := range segments {
		require.LessOrEqual(t, len([]rune(seg.Text)), 25)
	}
	require.Equal(t, text, rebuild(t, segments))
}

func TestSplitProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"JAMB", "UTME", "candidates", "admission", "registrar", "1978", "CAPS", "o'level", "score"}
	seps := []string{" ", " ", " ", ". ", "\n", "\n\n", "? "}

	for round := 0; round < 200; round++ {
		var sb strings.Builder
		n := rng.Intn(400)
		for i := 0; i < n; i++ {
			sb.WriteString(words[rng.Intn(len(words))])
			sb.WriteString(seps[rng.Intn(len(seps))])
		}
		text := sb.String()
		size := 10 + rng.Intn(200)
		overlap := rng.Intn(size)

		segments, err := Split(text, size, overlap)
		require.NoError(t, err)
		if text == "" {
			require.Empty(t, segments)
			continue
		}
		for i, seg := range segments {
			require.LessOrEqual(t, len([]rune(seg.Text)), size, "round %d chunk %d", round, i)
			if i > 0 {
				prev := segments[i-1]
				got := prev.End() - seg.Start
				require.Equal(t, min(overlap, prev.End()), got, "round %d chunk %d", round, i)
			}
		}
		require.Equal(t, text, rebuild(t, segments), "round %d", round)

		again, err := Split(text, size, overlap)
		require.NoError(t, err)
		require.Equal(t, segments, again)
	}
}
