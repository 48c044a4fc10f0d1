package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2-vision:11b"
)

type OllamaDescriber struct {
	usageTracker
	baseURL      string
	model        string
	maxImageSize int
	client       *http.Client
}

func NewOllamaDescriber(baseURL, model string, maxImageSize int) *OllamaDescriber {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaDescriber{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		maxImageSize: maxImageSize,
		client:       &http.Client{},
	}
}

func (p *OllamaDescriber) Name() string {
	return p.model
}

// ollamaRequest represents a request to the Ollama chat API
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaResponse represents a response from the Ollama chat API
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (p *OllamaDescriber) Describe(ctx context.Context, imageData []byte) (string, error) {
	data, _, err := PrepareImage(imageData, p.maxImageSize)
	if err != nil {
		return "", err
	}

	resp, err := p.sendRequest(ctx, []ollamaMessage{
		{
			Role:    "user",
			Content: strings.TrimSpace(describePrompt),
			Images:  []string{base64.StdEncoding.EncodeToString(data)},
		},
	})
	if err != nil {
		return "", err
	}

	// Ollama is free, but we track tokens for stats
	p.track(int64(resp.PromptEvalCount), int64(resp.EvalCount))

	description := strings.TrimSpace(resp.Message.Content)
	if description == "" {
		return "", errkind.Wrap(errkind.ErrInference, "empty response from Ollama", nil)
	}
	return description, nil
}

func (p *OllamaDescriber) sendRequest(ctx context.Context, messages []ollamaMessage) (*ollamaResponse, error) {
	reqBody := ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: 0,
			NumPredict:  300,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "ollama request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("ollama", resp.StatusCode, body)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, errkind.Wrap(errkind.ErrInference, "failed to parse response", err)
	}

	return &ollamaResp, nil
}

// statusError maps a non-200 HTTP response: 5xx and 429 are transient,
// anything else is an inference failure.
func statusError(service string, status int, body []byte) error {
	msg := fmt.Sprintf("%s API error (status %d): %s", service, status, strings.TrimSpace(string(body)))
	if status >= 500 || status == http.StatusTooManyRequests {
		return errkind.Wrap(errkind.ErrTransientIO, msg, nil)
	}
	return errkind.Wrap(errkind.ErrInference, msg, nil)
}

var _ Describer = (*OllamaDescriber)(nil)
