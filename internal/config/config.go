package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Files    FilesConfig    `yaml:"files"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds model provider settings.
type APIConfig struct {
	// Active provider: openrouter, gemini, ollama (default: openrouter)
	Provider string `yaml:"provider"`

	OpenRouterKey string `yaml:"openrouter_key,omitempty"`
	GeminiKey     string `yaml:"gemini_key,omitempty"`
	OllamaKey     string `yaml:"ollama_key,omitempty"` // Optional, for remote Ollama servers with auth

	OpenRouterBaseURL string `yaml:"openrouter_base_url,omitempty"`
	OllamaBaseURL     string `yaml:"ollama_base_url,omitempty"`

	// Sent as HTTP-Referer and X-Title to OpenRouter
	Referer string `yaml:"referer,omitempty"`
	Title   string `yaml:"title,omitempty"`

	// Client-side request budget; 0 disables limiting
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
}

// ActiveKey returns the API key for the active provider.
func (c *APIConfig) ActiveKey() string {
	switch c.Provider {
	case "gemini":
		return c.GeminiKey
	case "ollama":
		return c.OllamaKey
	default:
		return c.OpenRouterKey
	}
}

// ModelConfig holds model settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxTurns    int `yaml:"max_turns"`    // half-turn ceiling per run
	FixAttempts int `yaml:"fix_attempts"` // fix cycles after a failed build
}

// SandboxConfig describes the remote host that runs sandboxes.
type SandboxConfig struct {
	// ssh (default) or memory; memory keeps files in process and every
	// build passes, for local development only
	Driver string `yaml:"driver"`

	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	KeyPath        string `yaml:"key_path,omitempty"`
	KeyPassphrase  string `yaml:"key_passphrase,omitempty"`
	Password       string `yaml:"password,omitempty"`
	KnownHostsPath string `yaml:"known_hosts_path,omitempty"`

	// Each sandbox is a directory under RootDir on the host
	RootDir string `yaml:"root_dir"`
	// Dev servers are assigned ports from BasePort upwards
	BasePort int `yaml:"base_port"`
	// Host name used in preview addresses; defaults to Host
	PreviewHost string `yaml:"preview_host,omitempty"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BuildTimeout   time.Duration `yaml:"build_timeout"`
	InstallTimeout time.Duration `yaml:"install_timeout"`

	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// PipelineConfig holds per-request limits.
type PipelineConfig struct {
	RunDeadline time.Duration `yaml:"run_deadline"`
	EventBuffer int           `yaml:"event_buffer"`
}

// FilesConfig holds template and merge settings.
type FilesConfig struct {
	Protected     []string `yaml:"protected"`
	TemplateDir   string   `yaml:"template_dir,omitempty"`
	WatchTemplate bool     `yaml:"watch_template"`
}

// StoreConfig selects the version store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite or memory
	Path   string `yaml:"path"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"` // Logging level: debug, info, warn, error
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:          DefaultProvider,
			OpenRouterBaseURL: DefaultOpenRouterBaseURL,
			OllamaBaseURL:     DefaultOllamaBaseURL,
			Referer:           DefaultReferer,
			Title:             DefaultTitle,
			HTTPTimeout:       DefaultHTTPTimeout,
		},
		Model: ModelConfig{
			Name:            DefaultModel,
			Temperature:     0,
			MaxOutputTokens: DefaultMaxTokens,
		},
		Agent: AgentConfig{
			MaxTurns:    DefaultMaxTurns,
			FixAttempts: DefaultFixAttempts,
		},
		Sandbox: SandboxConfig{
			Driver:           "ssh",
			Port:             22,
			RootDir:          DefaultSandboxRoot,
			BasePort:         DefaultBasePort,
			ConnectTimeout:   DefaultConnectTimeout,
			BuildTimeout:     DefaultBuildTimeout,
			InstallTimeout:   DefaultInstallTimeout,
			BreakerThreshold: DefaultBreakerThreshold,
			BreakerReset:     DefaultBreakerReset,
		},
		Pipeline: PipelineConfig{
			RunDeadline: DefaultRunDeadline,
			EventBuffer: DefaultEventBuffer,
		},
		Files: FilesConfig{
			Protected: []string{"package.json", "package-lock.json", "vite.config.js"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   defaultStorePath(),
		},
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   true,
		},
	}
}
