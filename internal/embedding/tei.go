package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// TEIConfig holds configuration for the TEI embedding provider.
type TEIConfig struct {
	// BaseURL is the base URL of the text-embeddings-inference server.
	BaseURL string

	// Model is the embedding model name, informational only.
	Model string

	// Dimensions is the expected vector dimension.
	Dimensions int

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// TEIProvider generates embeddings via a text-embeddings-inference server.
type TEIProvider struct {
	config TEIConfig
	client *http.Client

	initOnce sync.Once
	initErr  error
}

// NewTEIProvider creates a TEI-backed provider.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &TEIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Init probes the server health endpoint once. Subsequent calls return
// the first result.
func (p *TEIProvider) Init(ctx context.Context) error {
	p.initOnce.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/health", nil)
		if err != nil {
			p.initErr = fmt.Errorf("creating health request: %w", err)
			return
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.initErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			p.initErr = fmt.Errorf("%w: health status %d", ErrEmbeddingFailed, resp.StatusCode)
		}
	})
	return p.initErr
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

// Embed generates an embedding for a single text.
func (p *TEIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}

	vec := vectors[0]
	if len(vec) != p.config.Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), p.config.Dimensions)
	}

	return vec, nil
}

// Dimensions returns the configured vector dimension.
func (p *TEIProvider) Dimensions() int {
	return p.config.Dimensions
}

var _ Provider = (*TEIProvider)(nil)
