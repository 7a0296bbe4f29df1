package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/ai"
	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

const contextSeparator = "\n\n"

var identityQuestions = map[string]struct{}{
	"who are you":  {},
	"what are you": {},
}

// IsIdentityQuestion matches only the fixed phrasings "who are you" and
// "what are you", ignoring case, surrounding space and trailing '?'.
func IsIdentityQuestion(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	q = strings.TrimSpace(strings.TrimRight(q, "?"))
	q = strings.Join(strings.Fields(q), " ")
	_, ok := identityQuestions[q]
	return ok
}

// Synthesizer turns retrieved context into a grounded answer.
type Synthesizer struct {
	generator       ai.IGenerator
	persona         string
	refusal         string
	maxContextChars int
}

func NewSynthesizer(generator ai.IGenerator, assistant config.AssistantConfig, maxContextChars int) *Synthesizer {
	return &Synthesizer{
		generator:       generator,
		persona:         assistant.Persona,
		refusal:         assistant.RefusalPhrase,
		maxContextChars: maxContextChars,
	}
}

func (s *Synthesizer) RefusalPhrase() string {
	return s.refusal
}

// Synthesize answers question from chunks, which are expected in rank order.
// Without any context the model is not called and the refusal phrase is
// returned.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []string, customIntro string) (model.Answer, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		logger.Info("no context retrieved, answer with refusal")
		return s.withIntro(model.Answer{Text: s.refusal}, customIntro), nil
	}
	if s.generator == nil {
		return model.Answer{}, fmt.Errorf("%w: %w", appErr.ErrSynthesis, ai.ErrUnavailable)
	}
	prompt := s.BuildPrompt(question, chunks)
	out, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Error("generate answer failed", zap.Error(err))
		return model.Answer{}, fmt.Errorf("%w: %w", appErr.ErrSynthesis, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return model.Answer{}, fmt.Errorf("%w: model returned empty output", appErr.ErrSynthesis)
	}
	answer := model.Answer{
		Text:     out,
		Grounded: !strings.Contains(out, s.refusal),
	}
	logger.Debug("answer generated", zap.Bool("grounded", answer.Grounded), zap.Int("answer_len", len(out)))
	return s.withIntro(answer, customIntro), nil
}

func (s *Synthesizer) withIntro(answer model.Answer, customIntro string) model.Answer {
	if customIntro != "" {
		answer.Text = customIntro + "\n\n" + answer.Text
	}
	return answer
}

// BuildPrompt renders the instruction, the context block and the question.
// Chunks that would push the context past maxContextChars are dropped; the
// first chunk is always kept, cut if necessary.
func (s *Synthesizer) BuildPrompt(question string, chunks []string) string {
	var sb strings.Builder
	sb.WriteString(s.persona)
	sb.WriteString(" Answer the user's question ONLY using the following context. ")
	sb.WriteString("If the answer is not directly inferable or found within the context, clearly state '")
	sb.WriteString(s.refusal)
	sb.WriteString("' Be concise and directly address the question. ")
	sb.WriteString("Do NOT add any conversational filler or make up information.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(s.buildContext(chunks))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\nAnswer:")
	return sb.String()
}

func (s *Synthesizer) buildContext(chunks []string) string {
	if s.maxContextChars <= 0 {
		return strings.Join(chunks, contextSeparator)
	}
	used := 0
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		n := len([]rune(chunk))
		if i > 0 {
			n += len(contextSeparator)
		}
		if used+n > s.maxContextChars {
			if i == 0 {
				parts = append(parts, string([]rune(chunk)[:s.maxContextChars]))
			}
			break
		}
		parts = append(parts, chunk)
		used += n
	}
	return strings.Join(parts, contextSeparator)
}
