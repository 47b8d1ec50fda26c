// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	Metrics() MetricsConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(string)

	// Agent Setters
	SetAgentAutoExecute(bool)
	SetMemoryPersistPath(string)
}

// Config holds the entire application configuration.
// It uses private fields to enforce access through the Interface's getter methods.
type Config struct {
	logger  LoggerConfig
	browser BrowserConfig
	agent   AgentConfig
	metrics MetricsConfig
}

// document mirrors Config with exported fields so viper can decode into it.
type document struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.logger }
func (c *Config) Browser() BrowserConfig { return c.browser }
func (c *Config) Agent() AgentConfig     { return c.agent }
func (c *Config) Metrics() MetricsConfig { return c.metrics }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.browser.Headless = b }
func (c *Config) SetBrowserRemoteURL(u string)  { c.browser.RemoteURL = u }
func (c *Config) SetAgentAutoExecute(b bool)    { c.agent.AutoExecute = b }
func (c *Config) SetMemoryPersistPath(p string) { c.agent.Memory.PersistPath = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserBackend selects the remote-control implementation.
type BrowserBackend string

const (
	BackendCDP BrowserBackend = "cdp"
	BackendRod BrowserBackend = "rod"
)

// BrowserConfig holds settings for the controlled browser.
type BrowserConfig struct {
	Backend BrowserBackend `mapstructure:"backend" yaml:"backend"`
	// RemoteURL attaches to an already running browser (DevTools websocket or
	// http endpoint) instead of launching one.
	RemoteURL       string        `mapstructure:"remote_url" yaml:"remote_url"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	Proxy           string        `mapstructure:"proxy" yaml:"proxy"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	OverlayLog      bool          `mapstructure:"overlay_log" yaml:"overlay_log"`
	Annotate        bool          `mapstructure:"annotate" yaml:"annotate"`
}

// AgentConfig holds settings related to the agent and its reasoning steps.
type AgentConfig struct {
	LLM              LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	MaxLabelAttempts int             `mapstructure:"max_label_attempts" yaml:"max_label_attempts"`
	Temperature      float64         `mapstructure:"temperature" yaml:"temperature"`
	JobAttempts      int             `mapstructure:"job_attempts" yaml:"job_attempts"`
	AutoExecute      bool            `mapstructure:"auto_execute" yaml:"auto_execute"`
	PollInterval     time.Duration   `mapstructure:"poll_interval" yaml:"poll_interval"`
	ScreenshotDir    string          `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	Memory           MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Planner          PlannerConfig   `mapstructure:"planner" yaml:"planner"`
}

// MemoryConfig bounds and persists the interaction history.
type MemoryConfig struct {
	Capacity    int    `mapstructure:"capacity" yaml:"capacity"`
	PersistPath string `mapstructure:"persist_path" yaml:"persist_path"`
}

// PlannerConfig tunes the job planner.
type PlannerConfig struct {
	Tier string `mapstructure:"tier" yaml:"tier"`
	// MaxContextTokens trims the page text in the prompt when positive.
	MaxContextTokens int    `mapstructure:"max_context_tokens" yaml:"max_context_tokens"`
	TokenizerModel   string `mapstructure:"tokenizer_model" yaml:"tokenizer_model"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOllama    LLMProvider = "ollama"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// RequestsPerMinute paces outgoing completions when positive.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// providerKeyEnv maps each hosted provider to the env var holding its API key.
var providerKeyEnv = map[LLMProvider]string{
	ProviderGemini:    "WEBPILOT_GEMINI_API_KEY",
	ProviderOpenAI:    "WEBPILOT_OPENAI_API_KEY",
	ProviderAnthropic: "WEBPILOT_ANTHROPIC_API_KEY",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var doc document
	if err := v.Unmarshal(&doc); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return fromDocument(doc)
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.backend", string(BackendCDP))
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.wait_timeout", "10s")
	v.SetDefault("browser.overlay_log", true)
	v.SetDefault("browser.annotate", true)

	// -- Agent --
	v.SetDefault("agent.max_label_attempts", 5)
	v.SetDefault("agent.temperature", 0.4)
	v.SetDefault("agent.job_attempts", 3)
	v.SetDefault("agent.auto_execute", true)
	v.SetDefault("agent.poll_interval", "500ms")
	v.SetDefault("agent.screenshot_dir", "screenshots")
	v.SetDefault("agent.memory.capacity", 50)
	v.SetDefault("agent.memory.persist_path", "")
	v.SetDefault("agent.planner.tier", "powerful")
	v.SetDefault("agent.planner.max_context_tokens", 0)
	v.SetDefault("agent.planner.tokenizer_model", "gpt-4o")

	// -- Agent LLM --
	// Model entries are keyed by alias; viper splits keys on dots so aliases must not contain them.
	v.SetDefault("agent.llm.default_fast_model", "fast")
	v.SetDefault("agent.llm.default_powerful_model", "powerful")
	v.SetDefault("agent.llm.requests_per_minute", 0)
	v.SetDefault("agent.llm.models", map[string]interface{}{
		"fast": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "60s",
		},
		"powerful": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "120s",
		},
	})

	// -- Metrics --
	v.SetDefault("metrics.addr", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data
	for provider, env := range providerKeyEnv {
		_ = v.BindEnv("llm_keys."+string(provider), env)
	}

	var doc document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg := fromDocument(doc)

	// Models without an inline key pick up the provider-wide key from the environment.
	for name, m := range cfg.agent.LLM.Models {
		if m.APIKey == "" {
			m.APIKey = v.GetString("llm_keys." + string(m.Provider))
			cfg.agent.LLM.Models[name] = m
		}
	}

	if cfg.agent.Memory.PersistPath != "" {
		expanded, err := homedir.Expand(cfg.agent.Memory.PersistPath)
		if err != nil {
			return nil, fmt.Errorf("invalid agent.memory.persist_path: %w", err)
		}
		cfg.agent.Memory.PersistPath = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func fromDocument(doc document) *Config {
	if doc.Agent.LLM.Models == nil {
		doc.Agent.LLM.Models = make(map[string]LLMModelConfig)
	}
	return &Config{
		logger:  doc.Logger,
		browser: doc.Browser,
		agent:   doc.Agent,
		metrics: doc.Metrics,
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch b.Backend {
	case BackendCDP, BackendRod:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendCDP, BackendRod, b.Backend)
	}
	if b.WindowWidth <= 0 || b.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", b.WindowWidth, b.WindowHeight)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if b.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the agent settings.
func (a *AgentConfig) Validate() error {
	if a.MaxLabelAttempts <= 0 {
		return fmt.Errorf("max_label_attempts must be greater than 0")
	}
	if a.JobAttempts <= 0 {
		return fmt.Errorf("job_attempts must be greater than 0")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if a.Memory.Capacity <= 0 {
		return fmt.Errorf("memory.capacity must be greater than 0")
	}
	if a.Planner.MaxContextTokens < 0 {
		return fmt.Errorf("planner.max_context_tokens cannot be negative")
	}
	switch strings.ToLower(a.Planner.Tier) {
	case "fast", "powerful":
	default:
		return fmt.Errorf("planner.tier must be fast or powerful, got %q", a.Planner.Tier)
	}
	return a.LLM.Validate()
}

// Validate checks that both default models are configured with a known provider.
func (r *LLMRouterConfig) Validate() error {
	if r.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute cannot be negative")
	}
	for _, name := range []string{r.DefaultFastModel, r.DefaultPowerfulModel} {
		m, ok := r.Models[name]
		if !ok {
			return fmt.Errorf("llm model %q is not defined in llm.models", name)
		}
		switch m.Provider {
		case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		default:
			return fmt.Errorf("llm model %q has unsupported provider %q", name, m.Provider)
		}
	}
	return nil
}
