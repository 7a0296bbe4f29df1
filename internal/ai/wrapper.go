package ai

import (
	"context"
	"fmt"
	"time"

	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

type dimensionEmbedder struct {
	next IEmbedder
	dim  int
}

// WithDimension rejects vectors whose length differs from dim. Vectors are
// never truncated or padded.
func WithDimension(next IEmbedder, dim int) IEmbedder {
	return &dimensionEmbedder{next: next, dim: dim}
}

func (e *dimensionEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec, err := e.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("%w: model %s returned %d values, store expects %d",
			appErr.ErrDimensionMismatch, e.next.ModelName(), len(vec), e.dim)
	}
	return vec, nil
}

func (e *dimensionEmbedder) ModelName() string {
	return e.next.ModelName()
}

type timeoutEmbedder struct {
	next    IEmbedder
	timeout time.Duration
}

func WithTimeout(next IEmbedder, timeout time.Duration) IEmbedder {
	if timeout <= 0 {
		return next
	}
	return &timeoutEmbedder{next: next, timeout: timeout}
}

func (e *timeoutEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.next.Embed(ctx, text, taskType)
}

func (e *timeoutEmbedder) ModelName() string {
	return e.next.ModelName()
}

type timeoutGenerator struct {
	next    IGenerator
	timeout time.Duration
}

func WithGenerateTimeout(next IGenerator, timeout time.Duration) IGenerator {
	if timeout <= 0 {
		return next
	}
	return &timeoutGenerator{next: next, timeout: timeout}
}

func (g *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.Generate(ctx, prompt)
}
