// Package config provides hierarchical configuration loading for Verdant.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Verdant chat service.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Upstream  Upstream  `yaml:"upstream"`
	Invoker   Invoker   `yaml:"invoker"`
	Routing   Routing   `yaml:"routing"`
	Tools     Tools     `yaml:"tools"`
	NATS      NATS      `yaml:"nats"`
	Telemetry Telemetry `yaml:"telemetry"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // Max total chat request duration (default: 600s)
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`  // Chat bodies carry base64 attachments (default: 96 MiB)
	ChatRate       float64       `yaml:"chat_rate"`       // Sustained chat turns per second per client (default: 1)
	ChatBurst      int           `yaml:"chat_burst"`      // Chat burst per client (default: 5)
}

// Storage holds the flat-file locations.
type Storage struct {
	ConversationsDir string `yaml:"conversations_dir"`
	GlobalInfoPath   string `yaml:"global_info_path"`
	ControlsPath     string `yaml:"controls_path"`
}

// Upstream holds the OpenAI-compatible model API configuration.
type Upstream struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// Invoker holds the model-invocation subprocess configuration.
type Invoker struct {
	Command         []string      `yaml:"command"`          // argv prefix of the invocation process
	MaxConcurrent   int           `yaml:"max_concurrent"`   // Max simultaneous processes (default: 8)
	FailoverEnabled bool          `yaml:"failover_enabled"` // Retry 5xx/connectivity errors and fail over (default: true)
	FallbackModel   string        `yaml:"fallback_model"`   // Reliable last-resort model, empty disables
	RetryBackoff    time.Duration `yaml:"retry_backoff"`    // Linear backoff unit (default: 300ms)
	FlushBatch      int           `yaml:"flush_batch"`      // Tokens per client flush (default: 2)
	FlushInterval   time.Duration `yaml:"flush_interval"`   // Delay between flushes (default: 10ms)
}

// Routing holds the tier fallbacks and output budgets.
type Routing struct {
	FallbackLight   string `yaml:"fallback_light"`
	FallbackTooling string `yaml:"fallback_tooling"`
	FallbackHeavy   string `yaml:"fallback_heavy"`
	LightTokens     int    `yaml:"light_tokens"`
	ToolingTokens   int    `yaml:"tooling_tokens"`
	HeavyTokens     int    `yaml:"heavy_tokens"`
}

// Tools holds the OCR and search collaborators.
type Tools struct {
	OCRURL        string        `yaml:"ocr_url"`
	OCRAPIKey     string        `yaml:"ocr_api_key"`
	OCRModel      string        `yaml:"ocr_model"`
	WebSearchURL  string        `yaml:"web_search_url"`
	WebSearchKey  string        `yaml:"web_search_key"`
	WebModel      string        `yaml:"web_model"`
	DeepSearchURL string        `yaml:"deep_search_url"`
	DeepSearchKey string        `yaml:"deep_search_key"`
	DeepModel     string        `yaml:"deep_model"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`     // Tool-context cache TTL (default: 3m, min 30s)
	CacheSizeMB   int64         `yaml:"cache_size_mb"` // L1 cache capacity (default: 32)
	Timeout       time.Duration `yaml:"timeout"`       // Per tool call timeout (default: 90s)
}

// NATS holds the optional NATS JetStream configuration. Empty URL disables it.
type NATS struct {
	URL      string `yaml:"url"`
	KVBucket string `yaml:"kv_bucket"`
}

// Telemetry holds the optional OTLP exporter configuration.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for tool calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "http://localhost:3000",
			RequestTimeout: 600 * time.Second,
			MaxBodyBytes:   96 << 20,
			ChatRate:       1,
			ChatBurst:      5,
		},
		Storage: Storage{
			ConversationsDir: "data/conversations",
			GlobalInfoPath:   "data/globalInfo.json",
			ControlsPath:     "data/dashboardControls.json",
		},
		Upstream: Upstream{
			BaseURL:      "https://api.dedaluslabs.ai/v1",
			DefaultModel: "anthropic/claude-opus-4-5",
		},
		Invoker: Invoker{
			Command:         []string{"verdant-ask"},
			MaxConcurrent:   8,
			FailoverEnabled: true,
			FallbackModel:   "openai/gpt-5-mini",
			RetryBackoff:    300 * time.Millisecond,
			FlushBatch:      2,
			FlushInterval:   10 * time.Millisecond,
		},
		Routing: Routing{
			FallbackLight:   "openai/gpt-5-nano",
			FallbackTooling: "openai/gpt-5-mini",
			FallbackHeavy:   "anthropic/claude-opus-4-5",
			LightTokens:     900,
			ToolingTokens:   1400,
			HeavyTokens:     2600,
		},
		Tools: Tools{
			OCRURL:        "https://api.mistral.ai/v1/ocr",
			OCRModel:      "mistral-ocr-latest",
			WebSearchURL:  "https://api.dedaluslabs.ai/v1",
			WebModel:      "openai/gpt-5-mini",
			DeepSearchURL: "https://api.dedaluslabs.ai/v1",
			DeepModel:     "openai/gpt-5",
			CacheTTL:      3 * time.Minute,
			CacheSizeMB:   32,
			Timeout:       90 * time.Second,
		},
		NATS: NATS{
			KVBucket: "verdant-tool-context",
		},
		Logging: Logging{
			Level:   "info",
			Service: "verdant",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}
