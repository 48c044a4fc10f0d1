package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// Helper functions for creating test images

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func encodeBMP(img image.Image) []byte {
	var buf bytes.Buffer
	bmp.Encode(&buf, img)
	return buf.Bytes()
}

// --- SniffImage / PrepareImage tests ---

func TestSniffImage(t *testing.T) {
	img := createTestImage(10, 10, color.White)

	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantErr  bool
	}{
		{"jpeg", encodeJPEG(img), "image/jpeg", false},
		{"png", encodePNG(img), "image/png", false},
		{"bmp", encodeBMP(img), "image/bmp", false},
		{"empty", nil, "", true},
		{"text", []byte("definitely not an image"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, err := SniffImage(tt.data)
			if tt.wantErr {
				if !errors.Is(err, errkind.ErrInference) {
					t.Fatalf("expected inference error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mime != tt.wantMIME {
				t.Errorf("mime = %q, want %q", mime, tt.wantMIME)
			}
		})
	}
}

func TestPrepareImage_PassthroughWithoutResize(t *testing.T) {
	data := encodePNG(createTestImage(50, 50, color.Black))

	out, mime, err := PrepareImage(data, 0)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("expected png, got %s", mime)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected bytes to be passed through unchanged")
	}
}

func TestPrepareImage_ConvertsBMP(t *testing.T) {
	data := encodeBMP(createTestImage(20, 20, color.White))

	out, mime, err := PrepareImage(data, 0)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("expected jpeg, got %s", mime)
	}
	if _, format, err := image.Decode(bytes.NewReader(out)); err != nil || format != "jpeg" {
		t.Errorf("expected decodable jpeg, got format %q err %v", format, err)
	}
}

func TestPrepareImage_Downscales(t *testing.T) {
	data := encodeJPEG(createTestImage(400, 200, color.White))

	out, mime, err := PrepareImage(data, 100)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("expected jpeg, got %s", mime)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
}

// --- ResizeImage tests ---

func TestResizeImage_NoResizeNeeded(t *testing.T) {
	data := encodeJPEG(createTestImage(100, 100, color.White))

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	_, format, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg format, got %s", format)
	}
}

func TestResizeImage_Portrait(t *testing.T) {
	data := encodePNG(createTestImage(1000, 2000, color.White))

	resized, err := ResizeImage(data, 500)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}
	if img.Bounds().Dy() != 500 {
		t.Errorf("expected height 500, got %d", img.Bounds().Dy())
	}
	if img.Bounds().Dx() != 250 {
		t.Errorf("expected width 250, got %d", img.Bounds().Dx())
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	if _, err := ResizeImage([]byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid data")
	}
}

// --- OpenAI-compatible describer ---

func chatCompletionBody(content string) string {
	resp := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 20, "total_tokens": 120},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestOpenAIDescriber_Describe(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody("  A red car parked on a cobblestone street.\n"))
	}))
	defer server.Close()

	d := NewOpenAIDescriber(OpenAIOptions{
		APIKey:  "test",
		BaseURL: server.URL + "/v1/",
		Model:   "test-model",
		Pricing: RequestPricing{Input: 1, Output: 2},
	})

	desc, err := d.Describe(context.Background(), encodePNG(createTestImage(8, 8, color.White)))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc != "A red car parked on a cobblestone street." {
		t.Errorf("unexpected description %q", desc)
	}

	if gotBody["model"] != "test-model" {
		t.Errorf("unexpected model %v", gotBody["model"])
	}
	if temp, ok := gotBody["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("expected temperature 0, got %v", gotBody["temperature"])
	}
	raw, _ := json.Marshal(gotBody["messages"])
	if !strings.Contains(string(raw), "data:image/png;base64,") {
		t.Error("expected png data URL in request")
	}

	usage := d.GetUsage()
	if usage.InputTokens != 100 || usage.OutputTokens != 20 || usage.Requests != 1 {
		t.Errorf("unexpected usage %+v", usage)
	}
	wantCost := 100.0/1_000_000*1 + 20.0/1_000_000*2
	if math.Abs(usage.TotalCost-wantCost) > 1e-12 {
		t.Errorf("cost = %v, want %v", usage.TotalCost, wantCost)
	}
}

func TestOpenAIDescriber_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
	}{
		{"empty content", http.StatusOK, chatCompletionBody("   "), errkind.ErrInference},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, errkind.ErrTransientIO},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, errkind.ErrTransientIO},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad image"}}`, errkind.ErrInference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			d := NewOpenAIDescriber(OpenAIOptions{APIKey: "test", BaseURL: server.URL + "/v1/"})
			_, err := d.Describe(context.Background(), encodeJPEG(createTestImage(8, 8, color.White)))
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("expected %v, got %v", tt.wantKind, err)
			}
			if calls.Load() != 1 {
				t.Errorf("expected exactly one request (no retries), got %d", calls.Load())
			}
		})
	}
}

func TestOpenAIDescriber_RejectsUnsupportedImage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	d := NewOpenAIDescriber(OpenAIOptions{APIKey: "test", BaseURL: server.URL + "/v1/"})
	_, err := d.Describe(context.Background(), []byte("plain text"))
	if !errors.Is(err, errkind.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("no request should be sent for an unsupported image")
	}
}

// --- OpenAI-compatible embedder ---

func embeddingBody(vector []float64) string {
	resp := map[string]any{
		"object": "list",
		"model":  "test-embed",
		"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vector}},
		"usage":  map[string]any{"prompt_tokens": 7, "total_tokens": 7},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var gotInput any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		gotInput = req["input"]
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, embeddingBody([]float64{0.5, -0.25, 1}))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIOptions{APIKey: "test", BaseURL: server.URL + "/v1/", Model: "test-embed"}, 3)
	vec, err := e.Embed(context.Background(), "a dog on a beach")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 || vec[1] != -0.25 || vec[2] != 1 {
		t.Errorf("unexpected vector %v", vec)
	}
	if gotInput != "a dog on a beach" {
		t.Errorf("unexpected input %v", gotInput)
	}
	if e.GetUsage().InputTokens != 7 {
		t.Errorf("expected 7 input tokens, got %d", e.GetUsage().InputTokens)
	}
	if e.Model() != "test-embed" {
		t.Errorf("unexpected model %q", e.Model())
	}
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, embeddingBody([]float64{1, 2}))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIOptions{APIKey: "test", BaseURL: server.URL + "/v1/"}, 4)
	_, err := e.Embed(context.Background(), "text")
	if !errors.Is(err, errkind.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
}

func TestOpenAIEmbedder_EmptyTextMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIOptions{APIKey: "test", BaseURL: server.URL + "/v1/"}, 0)
	_, err := e.Embed(context.Background(), "  \t ")
	if !errors.Is(err, errkind.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("expected no request for empty text")
	}
}

// --- Embedding server ---

func TestServerEmbedder(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantLen  int
		wantKind error
	}{
		{"ok", http.StatusOK, `{"embedding":[0.1,0.2,0.3,0.4],"model":"clip","dim":4}`, 4, nil},
		{"empty vector", http.StatusOK, `{"embedding":[],"dim":0}`, 0, errkind.ErrInference},
		{"malformed", http.StatusOK, `{"embedding":`, 0, errkind.ErrInference},
		{"unavailable", http.StatusServiceUnavailable, `down`, 0, errkind.ErrTransientIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/embed/text" || r.Method != http.MethodPost {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			e := NewServerEmbedder(server.URL+"/", "clip", 0)
			vec, err := e.Embed(context.Background(), "sunset over mountains")
			if tt.wantKind != nil {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("expected %v, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(vec) != tt.wantLen {
				t.Errorf("expected %d dims, got %d", tt.wantLen, len(vec))
			}
		})
	}
}

func TestCheckVector_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{"nan", []float32{float32(math.NaN()), 1}},
		{"positive inf", []float32{1, float32(math.Inf(1))}},
		{"negative inf", []float32{float32(math.Inf(-1)), 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := checkVector(tt.vector, 0); !errors.Is(err, errkind.ErrInference) {
				t.Errorf("expected inference error, got %v", err)
			}
		})
	}

	if _, err := checkVector([]float32{0.5, -1}, 2); err != nil {
		t.Errorf("finite vector rejected: %v", err)
	}
}

// --- Gemini ---

func TestGeminiDescriber_Describe(t *testing.T) {
	var gotPath, gotKey string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": " A lighthouse at dusk. \n"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 300, "candidatesTokenCount": 12, "totalTokenCount": 312}
		}`)
	}))
	defer server.Close()

	d, err := NewGeminiDescriber(t.Context(), GeminiOptions{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
		Model:   "test-gemini",
		Pricing: RequestPricing{Input: 1, Output: 2},
	})
	if err != nil {
		t.Fatalf("NewGeminiDescriber: %v", err)
	}

	desc, err := d.Describe(t.Context(), encodePNG(createTestImage(8, 8, color.White)))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc != "A lighthouse at dusk." {
		t.Errorf("unexpected description %q", desc)
	}
	if !strings.HasSuffix(gotPath, "/models/test-gemini:generateContent") {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("unexpected api key header %q", gotKey)
	}
	if !bytes.Contains(gotBody, []byte(`"image/png"`)) {
		t.Errorf("expected inline png in request, got %s", gotBody)
	}

	usage := d.GetUsage()
	if usage.InputTokens != 300 || usage.OutputTokens != 12 || usage.Requests != 1 {
		t.Errorf("unexpected usage %+v", usage)
	}
	wantCost := 300.0/1_000_000*1 + 12.0/1_000_000*2
	if math.Abs(usage.TotalCost-wantCost) > 1e-12 {
		t.Errorf("cost = %v, want %v", usage.TotalCost, wantCost)
	}
}

func TestGeminiDescriber_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates": [], "usageMetadata": {"promptTokenCount": 300}}`)
	}))
	defer server.Close()

	d, err := NewGeminiDescriber(t.Context(), GeminiOptions{APIKey: "test-key", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewGeminiDescriber: %v", err)
	}
	if d.Name() != defaultGeminiModel {
		t.Errorf("expected default model, got %q", d.Name())
	}
	_, err = d.Describe(t.Context(), encodeJPEG(createTestImage(8, 8, color.White)))
	if !errors.Is(err, errkind.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
}

func TestUsageTracker_SetPricing(t *testing.T) {
	var tracker usageTracker
	tracker.track(1_000_000, 0)
	tracker.SetPricing(RequestPricing{Input: 3, Output: 5})
	tracker.track(1_000_000, 1_000_000)

	if got := tracker.Pricing(); got != (RequestPricing{Input: 3, Output: 5}) {
		t.Errorf("unexpected pricing %+v", got)
	}
	if usage := tracker.GetUsage(); usage.TotalCost != 8 || usage.Requests != 2 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

// --- Ollama ---

func TestOllamaDescriber_Describe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			t.Errorf("expected one message with one image, got %+v", req.Messages)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		io.WriteString(w, `{"model":"llava","message":{"role":"assistant","content":" Two people hiking. "},"done":true,"prompt_eval_count":50,"eval_count":10}`)
	}))
	defer server.Close()

	d := NewOllamaDescriber(server.URL, "llava", 0)
	desc, err := d.Describe(context.Background(), encodeJPEG(createTestImage(8, 8, color.White)))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc != "Two people hiking." {
		t.Errorf("unexpected description %q", desc)
	}
	if d.GetUsage().OutputTokens != 10 {
		t.Errorf("expected 10 output tokens, got %d", d.GetUsage().OutputTokens)
	}
}

func TestDescribePrompt(t *testing.T) {
	p := DescribePrompt()
	for _, want := range []string{"factual", "colors", "readable text", "Output only the sentence"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
