// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the Frontdesk receptionist service.
package config

import (
	"time"

	"github.com/MrWong99/frontdesk/internal/conversation"
)

// LogLevel controls log verbosity for the Frontdesk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Frontdesk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Secrets      SecretsConfig      `yaml:"secrets"`
	Receptionist ReceptionistConfig `yaml:"receptionist"`
	Conversation ConversationConfig `yaml:"conversation"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Notify       NotifyConfig       `yaml:"notify"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Changes are applied without restart.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// SessionTTL is how long an idle browser session is kept (e.g., "24h").
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the model backend.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the configuration block for a provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "genai", "openai").
	Name string `yaml:"name"`

	// APIKey overrides the key read by the secret loader.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// SecretsConfig names the environment variables the secret loader reads.
type SecretsConfig struct {
	APIKeyEnv   string `yaml:"api_key_env"`
	AccountEnv  string `yaml:"account_env"`
	PasswordEnv string `yaml:"password_env"`

	// Dotenv is an optional dotenv file loaded before the environment is read.
	Dotenv string `yaml:"dotenv"`
}

// ReceptionistConfig shapes the system instruction.
type ReceptionistConfig struct {
	Company           string `yaml:"company"`
	City              string `yaml:"city"`
	Tone              string `yaml:"tone"`
	CreatorDisclosure string `yaml:"creator_disclosure"`

	// Instruction replaces the built-in instruction template. It is rendered
	// with text/template and may reference .Company, .City, .Tone,
	// .CreatorDisclosure, .Sentinel and .Delimiter.
	Instruction string `yaml:"instruction"`
}

// Persona converts the block into the conversation persona.
func (r ReceptionistConfig) Persona() conversation.Persona {
	return conversation.Persona{
		Company:           r.Company,
		City:              r.City,
		Tone:              r.Tone,
		CreatorDisclosure: r.CreatorDisclosure,
	}
}

// BuildInstruction renders the system instruction described by the block.
func (r ReceptionistConfig) BuildInstruction() (string, error) {
	return conversation.BuildInstruction(r.Instruction, r.Persona())
}

// ConversationConfig tunes the chat loop.
type ConversationConfig struct {
	// HistoryTurns is how many prior turns are sent with each prompt.
	// Zero sends only the current prompt.
	HistoryTurns int `yaml:"history_turns"`

	// Temperature and MaxTokens are passed to the model. Zero keeps the
	// provider default.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LedgerConfig locates the ticket ledger file.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig configures lead notification emails.
type NotifyConfig struct {
	// Enabled defaults to true when omitted.
	Enabled  *bool  `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Subject  string `yaml:"subject"`
	// BodyTemplate is a text/template for the email body. It sees .Payload
	// and .Time. Empty selects the built-in body.
	BodyTemplate string `yaml:"body_template"`
}

// IsEnabled reports whether notifications should be sent.
func (n NotifyConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// DashboardConfig holds the sidebar metric parameters.
type DashboardConfig struct {
	UnitValue int `yaml:"unit_value"`
	Target    int `yaml:"target"`
}
