package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

// groupGenerator tries each generator in order and returns the first success.
type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	valid := make([]GeneratorEntry, 0, len(items))
	for _, item := range items {
		if item.Generator != nil {
			valid = append(valid, item)
		}
	}
	switch len(valid) {
	case 0:
		return nil
	case 1:
		return valid[0].Generator
	}
	return &groupGenerator{items: valid}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := item.Generator.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed, try next",
			zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	return "", fmt.Errorf("all %d generators failed, last: %w", len(g.items), lastErr)
}

func (g *groupGenerator) Names() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	return strings.Join(names, "|")
}
