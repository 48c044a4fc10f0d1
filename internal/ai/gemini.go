package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiDescriber struct {
	usageTracker
	client       *genai.Client
	model        string
	maxImageSize int
}

// GeminiOptions configures a GeminiDescriber. BaseURL is empty for the public endpoint.
type GeminiOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxImageSize int
	Pricing      RequestPricing
}

func NewGeminiDescriber(ctx context.Context, opts GeminiOptions) (*GeminiDescriber, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiDescriber{
		usageTracker: usageTracker{pricing: opts.Pricing},
		client:       client,
		model:        model,
		maxImageSize: opts.MaxImageSize,
	}, nil
}

func (p *GeminiDescriber) Name() string {
	return p.model
}

func (p *GeminiDescriber) Describe(ctx context.Context, imageData []byte) (string, error) {
	data, mime, err := PrepareImage(imageData, p.maxImageSize)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: strings.TrimSpace(describePrompt)},
				{InlineData: &genai.Blob{Data: data, MIMEType: mime}},
			},
		},
	}

	temperature := float32(0)
	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", errkind.Wrap(errkind.ErrTransientIO, "gemini API error", err)
	}

	if result.UsageMetadata != nil {
		p.track(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	}

	description := strings.TrimSpace(result.Text())
	if description == "" {
		return "", errkind.Wrap(errkind.ErrInference, "no response from Gemini", nil)
	}
	return description, nil
}

var _ Describer = (*GeminiDescriber)(nil)
