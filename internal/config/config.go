package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	Vision      VisionConfig
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Ollama      OllamaConfig
	Embedding   EmbeddingConfig
	Enrich      EnrichConfig
	Search      SearchConfig
	Geocoder    GeocoderConfig
	Logging     LoggingConfig
	Web         WebConfig
	Prices      PricesConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// ObjectStoreConfig describes the S3-compatible bucket holding the original images.
type ObjectStoreConfig struct {
	Endpoint      string // host[:port], no scheme (e.g. s3.eu-central-003.backblazeb2.com)
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string // prefix used to build source locations of newly registered photos
}

type VisionConfig struct {
	Provider     string        // openai, gemini or ollama
	Model        string        // defaults depend on provider
	Timeout      time.Duration // per describe call (default 60s)
	MaxImageSize int           // downscale longest edge before sending, 0 disables
}

type OpenAIConfig struct {
	Token   string
	BaseURL string // OpenAI-compatible endpoint, e.g. https://api.deepinfra.com/v1/openai
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL string // defaults to http://localhost:11434
}

type EmbeddingConfig struct {
	Provider string        // openai or server
	Model    string        // defaults to Qwen/Qwen3-Embedding-8B
	URL      string        // embedding server URL, defaults to http://localhost:8000
	Dim      int           // expected dimensionality, 0 accepts whatever the provider returns
	Timeout  time.Duration // per embed call (default 30s)
}

type EnrichConfig struct {
	BatchSize       int           // photos processed concurrently per batch (default 10)
	Interval        time.Duration // periodic pass interval in serve mode (default 10m)
	DownloadTimeout time.Duration // per image download (default 60s)
	GeocodeTimeout  time.Duration // per reverse geocode (default 10s)
}

type SearchConfig struct {
	TopK          int     // default 20
	MinSimilarity float64 // default 0.3, results must be strictly above
}

type GeocoderConfig struct {
	Mode             string // memory or database
	NominatimURL     string
	NominatimAgent   string
	NominatimTimeout time.Duration
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins string // comma separated CORS origins
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Input  float64 `yaml:"input"`  // USD per 1M input tokens
	Output float64 `yaml:"output"` // USD per 1M output tokens
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration syntax ("90s", "10m") or a plain number of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			Bucket:        os.Getenv("S3_BUCKET"),
			UseSSL:        envBool("S3_USE_SSL", true),
			PublicBaseURL: strings.TrimSuffix(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		},
		Vision: VisionConfig{
			Provider:     envString("VISION_PROVIDER", "openai"),
			Model:        os.Getenv("VISION_MODEL"),
			Timeout:      envDuration("VISION_TIMEOUT", 60*time.Second),
			MaxImageSize: envInt("VISION_MAX_IMAGE_SIZE", 0),
		},
		OpenAI: OpenAIConfig{
			Token:   os.Getenv("OPENAI_TOKEN"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL: os.Getenv("OLLAMA_URL"),
		},
		Embedding: EmbeddingConfig{
			Provider: envString("EMBEDDING_PROVIDER", "openai"),
			Model:    os.Getenv("EMBEDDING_MODEL"),
			URL:      os.Getenv("EMBEDDING_URL"),
			Dim:      envInt("EMBEDDING_DIM", 0),
			Timeout:  envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Enrich: EnrichConfig{
			BatchSize:       envInt("ENRICH_BATCH_SIZE", 10),
			Interval:        envDuration("ENRICH_INTERVAL", 10*time.Minute),
			DownloadTimeout: envDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
			GeocodeTimeout:  envDuration("GEOCODE_TIMEOUT", 10*time.Second),
		},
		Search: SearchConfig{
			TopK:          envInt("SEARCH_TOP_K", 20),
			MinSimilarity: envFloat("SEARCH_MIN_SIMILARITY", 0.3),
		},
		Geocoder: GeocoderConfig{
			Mode:             envString("GEOCODER_MODE", "memory"),
			NominatimURL:     envString("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
			NominatimAgent:   envString("NOMINATIM_USER_AGENT", "photo-indexer/1.0"),
			NominatimTimeout: envDuration("NOMINATIM_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 3000),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, zero if unknown.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}

// Addr returns the listen address for the web server.
func (c *WebConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
