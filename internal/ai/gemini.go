package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey               string   `json:"api_key"`
	Temperature          *float32 `json:"temperature"`
	TopP                 *float32 `json:"top_p"`
	TopK                 *float32 `json:"top_k"`
	OutputDimensionality int32    `json:"output_dimensionality"`
}

type geminiProvider struct {
	cfg geminiConfig

	mu     sync.Mutex
	client *genai.Client
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.cfg.APIKey == "" {
		return "", ErrUnavailable
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}
	config := &genai.GenerateContentConfig{
		Temperature: p.cfg.Temperature,
		TopP:        p.cfg.TopP,
		TopK:        p.cfg.TopK,
	}
	resp, err := client.Models.GenerateContent(ctx, model, textContent(prompt), config)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if p.cfg.OutputDimensionality > 0 {
		dim := p.cfg.OutputDimensionality
		config.OutputDimensionality = &dim
	}
	resp, err := client.Models.EmbedContent(ctx, model, textContent(text), config)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

func textContent(text string) []*genai.Content {
	return []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
}

func newGeminiProvider(args interface{}) (*geminiProvider, error) {
	cfg := geminiConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &geminiProvider{cfg: cfg}, nil
}

func createGeminiFactory(args interface{}) (IAIProvider, error) {
	return newGeminiProvider(args)
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	return newGeminiProvider(args)
}

func init() {
	Register("gemini", createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
