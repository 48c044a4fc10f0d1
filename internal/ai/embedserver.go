package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

const defaultEmbeddingServerURL = "http://localhost:8000"

// ServerEmbedder computes text embeddings using a self-hosted embedding server
// exposing POST /embed/text.
type ServerEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewServerEmbedder creates a new embedding server client
func NewServerEmbedder(baseURL, model string, dim int) *ServerEmbedder {
	if baseURL == "" {
		baseURL = defaultEmbeddingServerURL
	}
	return &ServerEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{},
	}
}

type textEmbeddingRequest struct {
	Text string `json:"text"`
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// Model returns the configured model name, falling back to "server".
func (c *ServerEmbedder) Model() string {
	if c.model == "" {
		return "server"
	}
	return c.model
}

func (c *ServerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errkind.Wrap(errkind.ErrValidation, "empty text", nil)
	}

	reqBody, err := json.Marshal(textEmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/text", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "embedding request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("embedding", resp.StatusCode, body)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, errkind.Wrap(errkind.ErrInference, "failed to parse response", err)
	}

	return checkVector(embResp.Embedding, c.dim)
}

var _ Embedder = (*ServerEmbedder)(nil)
