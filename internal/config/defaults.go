package config

import "time"

// Default configuration values.
const (
	// Provider settings
	DefaultProvider          = "openrouter"
	DefaultModel             = "openai/gpt-4o-mini"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOllamaBaseURL     = "http://localhost:11434"
	DefaultReferer           = "http://localhost:3000"
	DefaultTitle             = "Adorable"
	DefaultMaxTokens         = 16384
	DefaultHTTPTimeout       = 120 * time.Second

	// Agent loop
	DefaultMaxTurns    = 50
	DefaultFixAttempts = 3

	// Sandbox
	DefaultSandboxRoot      = "/srv/adorable/sandboxes"
	DefaultBasePort         = 5173
	DefaultConnectTimeout   = 30 * time.Second
	DefaultBuildTimeout     = 60 * time.Second
	DefaultInstallTimeout   = 5 * time.Minute
	DefaultBreakerThreshold = 3
	DefaultBreakerReset     = 30 * time.Second

	// Pipeline
	DefaultRunDeadline = 10 * time.Minute
	DefaultEventBuffer = 64

	// Server
	DefaultAddr = ":3001"

	// Log rotation
	DefaultLogMaxSizeMB  = 15
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)
