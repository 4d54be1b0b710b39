package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/pinloom/pinloom"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig stores HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"` // request body cap, reference images arrive inline
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"` // "libsql" or "sqlite"
}

// LLMConfig stores chat completion provider settings.
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`      // any OpenAI-compatible endpoint
	APIKey       string        `mapstructure:"api_key"`       // bearer token for BaseURL
	PlannerModel string        `mapstructure:"planner_model"` // tool-using model
	VisionModel  string        `mapstructure:"vision_model"`  // image-capable model
	MaxNewTokens int           `mapstructure:"max_new_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxRetries   int           `mapstructure:"max_retries"` // 0 disables client retries
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ToolsConfig stores external tool provider settings.
type ToolsConfig struct {
	PexelsBaseURL    string `mapstructure:"pexels_base_url"`
	PexelsAPIKey     string `mapstructure:"pexels_api_key"`
	PexelsPerPage    int    `mapstructure:"pexels_per_page"`
	HFBaseURL        string `mapstructure:"hf_base_url"`
	HFToken          string `mapstructure:"hf_token"`
	HFModel          string `mapstructure:"hf_model"`
	HFInferenceSteps int    `mapstructure:"hf_inference_steps"`
	ImageEditModel   string `mapstructure:"image_edit_model"` // routed through llm.base_url
}

// HarnessConfig stores orchestration settings.
type HarnessConfig struct {
	// Context window
	ContextTurns int `mapstructure:"context_turns"` // sanitized history turns sent to the model

	// Timeouts
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"` // planning and summarizing calls
	VisionTimeout   time.Duration `mapstructure:"vision_timeout"`   // reference image description
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`     // per tool invocation

	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // memoize vision descriptions
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Cache entry TTL

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`     // per-user chat limiter
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate

	// Safety and validation
	ValidateToolArgs bool     `mapstructure:"validate_tool_args"` // check args against generated schemas
	AllowedTools     []string `mapstructure:"allowed_tools"`      // empty means every registered tool

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"` // state transitions as log events

	// Performance
	ToolConcurrency int `mapstructure:"tool_concurrency"` // Max concurrent tool executions
}

// AuthConfig stores the bearer tokens accepted by the API and the routes left open.
type AuthConfig struct {
	Tokens      []TokenConfig `mapstructure:"tokens"`
	PublicPaths []string      `mapstructure:"public_paths"` // trailing "*" marks a prefix
}

// TokenConfig maps one bearer token to a user.
type TokenConfig struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file on the search path; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	AppConfig = cfg
	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. llm.api_key becomes LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", internal.DefaultHTTPAddr)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s") // generation plus summarization
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 16<<20)

	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.type", internal.DefaultDatabaseType)

	v.SetDefault("llm.base_url", internal.DefaultLLMBaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.planner_model", "meta-llama/llama-3.3-70b-instruct")
	v.SetDefault("llm.vision_model", "google/gemini-2.0-flash-001")
	v.SetDefault("llm.max_new_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("tools.pexels_base_url", "https://api.pexels.com")
	v.SetDefault("tools.pexels_api_key", "")
	v.SetDefault("tools.pexels_per_page", 15)
	v.SetDefault("tools.hf_base_url", "https://router.huggingface.co/hf-inference")
	v.SetDefault("tools.hf_token", "")
	v.SetDefault("tools.hf_model", "black-forest-labs/FLUX.1-schnell")
	v.SetDefault("tools.hf_inference_steps", 5)
	v.SetDefault("tools.image_edit_model", "black-forest-labs/flux.2-flex")

	v.SetDefault("harness.context_turns", 4)
	v.SetDefault("harness.provider_timeout", "60s")
	v.SetDefault("harness.vision_timeout", "20s")
	v.SetDefault("harness.tool_timeout", "90s")
	v.SetDefault("harness.cache_enabled", true)
	v.SetDefault("harness.cache_capacity", 256)
	v.SetDefault("harness.cache_ttl_seconds", 3600) // 1 hour
	v.SetDefault("harness.rate_limit_enabled", true)
	v.SetDefault("harness.rate_limit_capacity", 5)
	v.SetDefault("harness.rate_limit_refill_rate", "10s")
	v.SetDefault("harness.validate_tool_args", true)
	v.SetDefault("harness.allowed_tools", []string{}) // Empty means allow all by default
	v.SetDefault("harness.enable_tracing", true)
	v.SetDefault("harness.tool_concurrency", 4)

	v.SetDefault("auth.tokens", []map[string]string{})
	v.SetDefault("auth.public_paths", []string{"/", "/login", "/register", "/healthz", "/api/auth*", "/api/images*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
