package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/examrag/internal/config"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

func newTestSynthesizer(gen *fakeGenerator, maxContext int) *Synthesizer {
	return NewSynthesizer(gen, config.AssistantConfig{
		Persona:       "You are a JAMB assistant.",
		RefusalPhrase: testRefusal,
	}, maxContext)
}

func TestIsIdentityQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{"Who are you?", true},
		{"what are you?", true},
		{"  WHO   ARE YOU??  ", true},
		{"who are you", true},
		{"Who are you, exactly?", false},
		{"Tell me who you are", false},
		{"what are you doing?", false},
		{"", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsIdentityQuestion(tt.question), tt.question)
	}
}

func TestBuildPromptKeepsRankOrder(t *testing.T) {
	s := newTestSynthesizer(&fakeGenerator{}, 0)
	prompt := s.BuildPrompt(" When? ", []string{"first chunk", "second chunk"})
	require.True(t, strings.HasPrefix(prompt, "You are a JAMB assistant. Answer the user's question ONLY using the following context."))
	require.Contains(t, prompt, "'"+testRefusal+"'")
	require.Contains(t, prompt, "Context:\nfirst chunk\n\nsecond chunk\n\nQuestion: When?")
	require.Less(t, strings.Index(prompt, "first chunk"), strings.Index(prompt, "second chunk"))
}

func TestBuildPromptBoundsContext(t *testing.T) {
	s := newTestSynthesizer(&fakeGenerator{}, 10)
	prompt := s.BuildPrompt("q", []string{"0123456789abc", "dropped"})
	require.Contains(t, prompt, "Context:\n0123456789\n\nQuestion: q")
	require.NotContains(t, prompt, "dropped")

	s = newTestSynthesizer(&fakeGenerator{}, 12)
	prompt = s.BuildPrompt("q", []string{"aaaa", "bbbb", "cccc"})
	require.Contains(t, prompt, "Context:\naaaa\n\nbbbb\n\nQuestion: q")
}

func TestSynthesize(t *testing.T) {
	ctx := context.Background()

	gen := &fakeGenerator{}
	answer, err := newTestSynthesizer(gen, 0).Synthesize(ctx, "q", nil, "Hi")
	require.NoError(t, err)
	require.Equal(t, "Hi\n\n"+testRefusal, answer.Text)
	require.False(t, answer.Grounded)
	require.Zero(t, gen.calls())

	out := "  JAMB was established in 1978.  "
	gen = &fakeGenerator{out: &out}
	answer, err = newTestSynthesizer(gen, 0).Synthesize(ctx, "q", []string{"ctx"}, "")
	require.NoError(t, err)
	require.Equal(t, testEstablish, answer.Text)
	require.True(t, answer.Grounded)

	empty := " \n "
	_, err = newTestSynthesizer(&fakeGenerator{out: &empty}, 0).Synthesize(ctx, "q", []string{"ctx"}, "")
	require.ErrorIs(t, err, appErr.ErrSynthesis)

	cause := errors.New("connection reset")
	_, err = newTestSynthesizer(&fakeGenerator{err: cause}, 0).Synthesize(ctx, "q", []string{"ctx"}, "")
	require.ErrorIs(t, err, appErr.ErrSynthesis)
	require.ErrorIs(t, err, cause)
}

func TestSynthesizeWithoutGenerator(t *testing.T) {
	s := NewSynthesizer(nil, config.AssistantConfig{RefusalPhrase: testRefusal}, 0)
	_, err := s.Synthesize(context.Background(), "q", []string{"ctx"}, "")
	require.ErrorIs(t, err, appErr.ErrSynthesis)
}
