package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// Sampling defaults tuned for short factual answers from small local models.
var defaultOllamaOptions = map[string]interface{}{
	"temperature":    0.6,
	"top_p":          0.8,
	"top_k":          20,
	"repeat_penalty": 1.05,
}

type ollamaConfig struct {
	BaseURL   string                 `json:"base_url"`
	KeepAlive string                 `json:"keep_alive"`
	Options   map[string]interface{} `json:"options"`
}

type ollamaProvider struct {
	baseURL   string
	keepAlive string
	options   map[string]interface{}
	client    *http.Client
}

type ollamaGenerateRequest struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	Stream    bool                   `json:"stream"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:     model,
		Prompt:    prompt,
		Stream:    false,
		KeepAlive: p.keepAlive,
		Options:   p.options,
	}
	var out ollamaGenerateResponse
	if err := postJSON(ctx, p.client, "ollama", joinURL(p.baseURL, "/api/generate"), nil, reqBody, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

// Embed ignores taskType, ollama embedding models take no task hint.
func (p *ollamaProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model:     model,
		Input:     []string{text},
		KeepAlive: p.keepAlive,
	}
	var out ollamaEmbedResponse
	if err := postJSON(ctx, p.client, "ollama", joinURL(p.baseURL, "/api/embed"), nil, reqBody, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama response has no embeddings")
	}
	return out.Embeddings[0], nil
}

func newOllamaProvider(args interface{}) (*ollamaProvider, error) {
	cfg := &ollamaConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	options := make(map[string]interface{}, len(defaultOllamaOptions)+len(cfg.Options))
	for k, v := range defaultOllamaOptions {
		options[k] = v
	}
	for k, v := range cfg.Options {
		options[k] = v
	}
	return &ollamaProvider{
		baseURL:   baseURL,
		keepAlive: strings.TrimSpace(cfg.KeepAlive),
		options:   options,
		client:    newHTTPClient(),
	}, nil
}

func createOllamaFactory(args interface{}) (IAIProvider, error) {
	return newOllamaProvider(args)
}

func createOllamaEmbedFactory(args interface{}) (IEmbedProvider, error) {
	return newOllamaProvider(args)
}

func init() {
	Register("ollama", createOllamaFactory)
	RegisterEmbed("ollama", createOllamaEmbedFactory)
}
