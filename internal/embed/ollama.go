package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/httpjson"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures an Ollama embeddings endpoint.
type OllamaConfig struct {
	Host  string
	Model string
}

// OllamaProvider calls POST {host}/api/embed.
type OllamaProvider struct {
	client *http.Client
	cfg    OllamaConfig
}

var _ Provider = (*OllamaProvider)(nil)

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaProvider returns a provider for cfg, filling defaults.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	return &OllamaProvider{client: httpjson.NewClient(), cfg: cfg}
}

// Embed implements Provider.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: p.cfg.Model, Input: texts}
	if err := httpjson.Post(ctx, p.client, "ollama", p.cfg.Host+"/api/embed", nil, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, errors.New(errors.ErrCodeProviderRejected,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts)), nil)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = toFloat32(e)
	}
	return out, nil
}

// ModelName implements Provider.
func (p *OllamaProvider) ModelName() string {
	return p.cfg.Model
}

// Close implements Provider.
func (p *OllamaProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
