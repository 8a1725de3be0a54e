package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/httpjson"
)

// OpenAI defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	// APIKey is sent as a bearer token, or as the api-key header when
	// APIVersion is set.
	APIKey string

	// BaseURL is the API root. For Azure OpenAI use the deployment URL,
	// e.g. https://x.openai.azure.com/openai/deployments/embed.
	BaseURL string

	// Model is the embedding model or deployment name.
	Model string

	// APIVersion selects Azure OpenAI mode when non-empty.
	APIVersion string

	// Dimensions requests shortened vectors from text-embedding-3 models.
	Dimensions int
}

// OpenAIProvider calls POST {base}/embeddings.
type OpenAIProvider struct {
	client *http.Client
	cfg    OpenAIConfig
}

var _ Provider = (*OpenAIProvider)(nil)

type openAIEmbeddingRequest struct {
	Model      string   `json:"model,omitempty"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewOpenAIProvider validates cfg and returns a provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeCredentialsMissing, "openai embeddings: API key is not set", nil).
			WithSuggestion("set DOCRAG_EMBEDDINGS_API_KEY or OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIProvider{client: httpjson.NewClient(), cfg: cfg}, nil
}

func (p *OpenAIProvider) endpoint() string {
	u := p.cfg.BaseURL + "/embeddings"
	if p.cfg.APIVersion != "" {
		u += "?api-version=" + url.QueryEscape(p.cfg.APIVersion)
	}
	return u
}

func (p *OpenAIProvider) headers() map[string]string {
	if p.cfg.APIVersion != "" {
		return map[string]string{"api-key": p.cfg.APIKey}
	}
	return map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openAIEmbeddingRequest{Model: p.cfg.Model, Input: texts}
	if strings.HasPrefix(p.cfg.Model, "text-embedding-3") {
		req.Dimensions = p.cfg.Dimensions
	}

	var resp openAIEmbeddingResponse
	if err := httpjson.Post(ctx, p.client, "openai", p.endpoint(), p.headers(), req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errors.New(errors.ErrCodeProviderRejected,
				fmt.Sprintf("openai returned embedding index %d for %d inputs", d.Index, len(texts)), nil)
		}
		out[d.Index] = toFloat32(d.Embedding)
	}
	for i, v := range out {
		if v == nil {
			return nil, errors.New(errors.ErrCodeProviderRejected,
				fmt.Sprintf("openai returned no embedding for input %d", i), nil)
		}
	}
	return out, nil
}

// ModelName implements Provider.
func (p *OpenAIProvider) ModelName() string {
	return p.cfg.Model
}

// Close implements Provider.
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
