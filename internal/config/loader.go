package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "verdant.yaml"

// MinCacheTTL is the lowest tool-context cache TTL accepted.
const MinCacheTTL = 30 * time.Second

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error. VERDANT_CONFIG
// overrides the file location.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("VERDANT_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "VERDANT_PORT")
	setString(&cfg.Server.CORSOrigin, "VERDANT_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "VERDANT_REQUEST_TIMEOUT")
	setInt64(&cfg.Server.MaxBodyBytes, "VERDANT_MAX_BODY_BYTES")
	setFloat(&cfg.Server.ChatRate, "VERDANT_CHAT_RATE")
	setInt(&cfg.Server.ChatBurst, "VERDANT_CHAT_BURST")

	setString(&cfg.Storage.ConversationsDir, "VERDANT_CONVERSATIONS_DIR")
	setString(&cfg.Storage.GlobalInfoPath, "VERDANT_GLOBAL_INFO_PATH")
	setString(&cfg.Storage.ControlsPath, "VERDANT_CONTROLS_PATH")

	setString(&cfg.Upstream.APIKey, "DEDALUS_API_KEY")
	setString(&cfg.Upstream.BaseURL, "DEDALUS_API_BASE_URL")
	setString(&cfg.Upstream.DefaultModel, "DEDALUS_MODEL")

	setFields(&cfg.Invoker.Command, "VERDANT_INVOKER_COMMAND")
	setInt(&cfg.Invoker.MaxConcurrent, "VERDANT_INVOKER_MAX_CONCURRENT")
	setBool(&cfg.Invoker.FailoverEnabled, "VERDANT_FAILOVER_ENABLED")
	setString(&cfg.Invoker.FallbackModel, "VERDANT_FALLBACK_MODEL")
	setDuration(&cfg.Invoker.RetryBackoff, "VERDANT_RETRY_BACKOFF")
	setInt(&cfg.Invoker.FlushBatch, "VERDANT_FLUSH_BATCH")
	setDuration(&cfg.Invoker.FlushInterval, "VERDANT_FLUSH_INTERVAL")

	setString(&cfg.Routing.FallbackLight, "VERDANT_LIGHT_MODEL")
	setString(&cfg.Routing.FallbackTooling, "VERDANT_TOOLING_MODEL")
	setString(&cfg.Routing.FallbackHeavy, "VERDANT_HEAVY_MODEL")
	setInt(&cfg.Routing.LightTokens, "VERDANT_LIGHT_MAX_TOKENS")
	setInt(&cfg.Routing.ToolingTokens, "VERDANT_TOOLING_MAX_TOKENS")
	setInt(&cfg.Routing.HeavyTokens, "VERDANT_HEAVY_MAX_TOKENS")

	setString(&cfg.Tools.OCRURL, "MISTRAL_OCR_URL")
	setString(&cfg.Tools.OCRAPIKey, "MISTRAL_API_KEY")
	setString(&cfg.Tools.OCRModel, "MISTRAL_OCR_MODEL")
	setString(&cfg.Tools.WebSearchURL, "VERDANT_WEB_MCP_URL")
	setString(&cfg.Tools.WebSearchKey, "VERDANT_WEB_MCP_KEY")
	setString(&cfg.Tools.WebModel, "VERDANT_WEB_MCP_MODEL")
	setString(&cfg.Tools.DeepSearchURL, "VERDANT_DEEP_MCP_URL")
	setString(&cfg.Tools.DeepSearchKey, "VERDANT_DEEP_MCP_KEY")
	setString(&cfg.Tools.DeepModel, "VERDANT_DEEP_MCP_MODEL")
	setDuration(&cfg.Tools.CacheTTL, "VERDANT_TOOL_CACHE_TTL")
	setInt64(&cfg.Tools.CacheSizeMB, "VERDANT_TOOL_CACHE_SIZE_MB")
	setDuration(&cfg.Tools.Timeout, "VERDANT_TOOL_TIMEOUT")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "VERDANT_NATS_KV_BUCKET")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "VERDANT_OTLP_INSECURE")

	setString(&cfg.Logging.Level, "VERDANT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "VERDANT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "VERDANT_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "VERDANT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "VERDANT_BREAKER_TIMEOUT")
}

// normalize applies floors that keep the pipeline well-behaved.
func normalize(cfg *Config) {
	if cfg.Tools.CacheTTL < MinCacheTTL {
		cfg.Tools.CacheTTL = MinCacheTTL
	}
	if cfg.Invoker.FlushBatch < 1 {
		cfg.Invoker.FlushBatch = 1
	}
	if cfg.Invoker.MaxConcurrent < 1 {
		cfg.Invoker.MaxConcurrent = 1
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Storage.ConversationsDir == "" {
		return errors.New("storage.conversations_dir is required")
	}
	if len(cfg.Invoker.Command) == 0 || cfg.Invoker.Command[0] == "" {
		return errors.New("invoker.command is required")
	}
	if cfg.Server.ChatRate <= 0 {
		return errors.New("server.chat_rate must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFields(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if f := strings.Fields(v); len(f) > 0 {
			*dst = f
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
