package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// EmbedBatch embeds texts on a pool of workers. The result keeps the input
// order. The first failure cancels the remaining work and is returned.
func EmbedBatch(ctx context.Context, e IEmbedder, texts []string, taskType string, workers int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(texts) {
		workers = len(texts)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embed pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for i, text := range texts {
		i, text := i, text
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vec, err := e.Embed(ctx, text, taskType)
			if err != nil {
				fail(fmt.Errorf("embed chunk %d: %w", i, err))
				return
			}
			out[i] = vec
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embed task: %w", submitErr))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
