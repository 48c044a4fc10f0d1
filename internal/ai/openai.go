package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

const (
	defaultVisionModel    = "nvidia/NVIDIA-Nemotron-Nano-12B-v2-VL"
	defaultEmbeddingModel = "Qwen/Qwen3-Embedding-8B"
)

// OpenAIOptions configures clients for OpenAI or any OpenAI-compatible
// endpoint such as DeepInfra.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxImageSize int
	Pricing      RequestPricing
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failed photos are retried by the next pass.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

// classifyOpenAIError tags API failures: throttling and server errors are
// transient, other HTTP errors mean the model rejected the request.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return errkind.Wrap(errkind.ErrTransientIO, op, err)
		}
		return errkind.Wrap(errkind.ErrInference, op, err)
	}
	return errkind.Wrap(errkind.ErrTransientIO, op, err)
}

// OpenAIDescriber describes images through the chat completions API.
type OpenAIDescriber struct {
	usageTracker
	client       *openai.Client
	model        string
	maxImageSize int
}

func NewOpenAIDescriber(opts OpenAIOptions) *OpenAIDescriber {
	model := opts.Model
	if model == "" {
		model = defaultVisionModel
	}
	return &OpenAIDescriber{
		usageTracker: usageTracker{pricing: opts.Pricing},
		client:       newOpenAIClient(opts.APIKey, opts.BaseURL),
		model:        model,
		maxImageSize: opts.MaxImageSize,
	}
}

func (p *OpenAIDescriber) Name() string {
	return p.model
}

func (p *OpenAIDescriber) Describe(ctx context.Context, imageData []byte) (string, error) {
	data, mime, err := PrepareImage(imageData, p.maxImageSize)
	if err != nil {
		return "", err
	}
	imageURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart(strings.TrimSpace(describePrompt)),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL: imageURL,
							}),
						},
					},
				},
			},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", classifyOpenAIError("describe image", err)
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		p.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if len(resp.Choices) == 0 {
		return "", errkind.Wrap(errkind.ErrInference, "no choices in vision response", nil)
	}

	description := strings.TrimSpace(resp.Choices[0].Message.Content)
	if description == "" {
		return "", errkind.Wrap(errkind.ErrInference, "empty description", nil)
	}
	return description, nil
}

// OpenAIEmbedder computes text embeddings through the embeddings API.
type OpenAIEmbedder struct {
	usageTracker
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an embedder. A positive dim makes every vector
// of a different length an inference error.
func NewOpenAIEmbedder(opts OpenAIOptions, dim int) *OpenAIEmbedder {
	model := opts.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		usageTracker: usageTracker{pricing: opts.Pricing},
		client:       newOpenAIClient(opts.APIKey, opts.BaseURL),
		model:        model,
		dim:          dim,
	}
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errkind.Wrap(errkind.ErrValidation, "empty text", nil)
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, classifyOpenAIError("embed text", err)
	}

	e.track(resp.Usage.PromptTokens, 0)

	if len(resp.Data) == 0 {
		return nil, errkind.Wrap(errkind.ErrInference, "no data in embedding response", nil)
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return checkVector(vector, e.dim)
}

// checkVector rejects empty vectors and, when dim > 0, vectors of another length.
func checkVector(vector []float32, dim int) ([]float32, error) {
	if len(vector) == 0 {
		return nil, errkind.Wrap(errkind.ErrInference, "empty embedding", nil)
	}
	if dim > 0 && len(vector) != dim {
		return nil, errkind.Wrap(errkind.ErrInference,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), dim), nil)
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, errkind.Wrap(errkind.ErrInference, fmt.Sprintf("embedding component %d is not finite", i), nil)
		}
	}
	return vector, nil
}

var (
	_ Describer = (*OpenAIDescriber)(nil)
	_ Embedder  = (*OpenAIEmbedder)(nil)
)
