package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashingDimension = 384

type hashingConfig struct {
	Dimension int `json:"dimension"`
}

// hashingProvider is a local feature hashing embedder. Every lower-cased word
// token is hashed into one signed bucket and the vector is L2 normalised, so
// texts sharing words have positive cosine similarity. It needs no network
// and is fully deterministic.
type hashingProvider struct {
	dim int
}

func NewHashingEmbedder(dim int) IEmbedder {
	if dim <= 0 {
		dim = defaultHashingDimension
	}
	return NewEmbedder(&hashingProvider{dim: dim}, "feature-hash")
}

func (p *hashingProvider) Name() string {
	return "hashing"
}

func (p *hashingProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, p.dim)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dim))
		if sum&(1<<63) != 0 {
			vec[idx]--
			continue
		}
		vec[idx]++
	}
	normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

func createHashingEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &hashingConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultHashingDimension
	}
	return &hashingProvider{dim: cfg.Dimension}, nil
}

func init() {
	RegisterEmbed("hashing", createHashingEmbedFactory)
}
