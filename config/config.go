// Package config loads engine configuration from YAML with environment
// variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use readable forms like
// "90s" or "2m".
type Duration time.Duration

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full engine configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Models     ModelsConfig     `yaml:"models"`
	Store      StoreConfig      `yaml:"store"`
	Router     RouterConfig     `yaml:"router"`
	Discussion DiscussionConfig `yaml:"discussion"`
	Memory     MemoryConfig     `yaml:"memory"`
	Stream     StreamConfig     `yaml:"stream"`
	Filter     FilterConfig     `yaml:"filter"`
	WebSearch  WebSearchConfig  `yaml:"web_search"`
}

// LoggingConfig mirrors the logging package options.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// ModelsConfig selects and parameterizes the model providers.
type ModelsConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`

	// Name overrides the provider's default model.
	Name string `yaml:"name"`

	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// RouterFallback enables the model-based routing fallback.
	RouterFallback bool `yaml:"router_fallback"`

	CostPerInputToken  float64 `yaml:"cost_per_input_token"`
	CostPerOutputToken float64 `yaml:"cost_per_output_token"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file; ignored for the memory backend.
	Path string `yaml:"path"`
}

// RouterConfig tunes routing behavior.
type RouterConfig struct {
	DefaultAgent        string  `yaml:"default_agent"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// DiscussionConfig bounds multi-agent exchanges.
type DiscussionConfig struct {
	MaxTurns int      `yaml:"max_turns"`
	Timeout  Duration `yaml:"timeout"`
}

// MemoryConfig tunes context retrieval.
type MemoryConfig struct {
	RecentLimit   int      `yaml:"recent_limit"`
	SimilarLimit  int      `yaml:"similar_limit"`
	SimilarWindow Duration `yaml:"similar_window"`
}

// StreamConfig tunes the event publisher.
type StreamConfig struct {
	BufferSize        int      `yaml:"buffer_size"`
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
}

// FilterConfig tunes response cleaning.
type FilterConfig struct {
	MaxLength int `yaml:"max_length"`
}

// WebSearchConfig enables the outbound search client.
type WebSearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Default returns a working configuration: in-memory store, no web search,
// keyword-only routing.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Models: ModelsConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Store:      StoreConfig{Backend: "memory"},
		Router:     RouterConfig{DefaultAgent: "scribe", ConfidenceThreshold: 0.5},
		Discussion: DiscussionConfig{MaxTurns: 6, Timeout: Duration(60 * time.Second)},
		Memory: MemoryConfig{
			RecentLimit:   20,
			SimilarLimit:  5,
			SimilarWindow: Duration(90 * 24 * time.Hour),
		},
		Stream: StreamConfig{BufferSize: 64, KeepaliveInterval: Duration(10 * time.Second)},
		Filter: FilterConfig{MaxLength: 8_000},
	}
}

// Load reads a YAML file over the defaults. Environment variables override
// the API keys so secrets stay out of config files.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Models.Provider == "openai" {
		c.Models.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Models.Provider == "anthropic" {
		c.Models.APIKey = v
	}
	if v := os.Getenv("WEB_SEARCH_API_KEY"); v != "" {
		c.WebSearch.APIKey = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Models.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown model provider %q", c.Models.Provider)
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite backend requires store.path")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Discussion.MaxTurns <= 0 {
		return fmt.Errorf("discussion.max_turns must be positive")
	}
	if c.Discussion.Timeout <= 0 {
		return fmt.Errorf("discussion.timeout must be positive")
	}
	return nil
}

// Capabilities describes which optional collaborators are available. The
// workflow consults it to degrade features instead of failing requests.
type Capabilities struct {
	WebSearch     bool
	Transcription bool
	Embeddings    bool
}

// CapabilityWarning names the degradation applied when a capability is
// missing, surfaced in result warnings.
func (c Capabilities) CapabilityWarning(name string) string {
	return fmt.Sprintf("%s is not configured; continuing without it", name)
}
