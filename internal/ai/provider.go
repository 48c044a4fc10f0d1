package ai

import (
	"context"
	_ "embed"
	"sync"
)

//go:embed prompts/describe.txt
var describePrompt string

// DescribePrompt returns the fixed instruction sent with every image.
func DescribePrompt() string {
	return describePrompt
}

// Describer turns image bytes into one factual sentence for search indexing.
// Implementations are safe for concurrent use.
type Describer interface {
	Name() string
	Describe(ctx context.Context, imageData []byte) (string, error)
}

// Embedder turns text into a fixed-length vector.
// Implementations are safe for concurrent use.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker accumulates Usage from concurrent callers.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (t *usageTracker) track(inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Requests++
	t.usage.InputTokens += int(inputTokens)
	t.usage.OutputTokens += int(outputTokens)
	t.usage.TotalCost += float64(inputTokens) / 1_000_000 * t.pricing.Input
	t.usage.TotalCost += float64(outputTokens) / 1_000_000 * t.pricing.Output
}

// SetPricing replaces the prices applied to requests tracked from now on.
func (t *usageTracker) SetPricing(pricing RequestPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing = pricing
}

// Pricing returns the prices currently applied.
func (t *usageTracker) Pricing() RequestPricing {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pricing
}

// GetUsage returns a snapshot of the accumulated usage.
func (t *usageTracker) GetUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// ResetUsage clears the accumulated usage.
func (t *usageTracker) ResetUsage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = Usage{}
}

// Priced is implemented by providers whose usage is charged per token.
type Priced interface {
	SetPricing(pricing RequestPricing)
	Pricing() RequestPricing
}

// UsageReporter is implemented by describers and embedders that track token usage.
type UsageReporter interface {
	GetUsage() Usage
	ResetUsage()
}
