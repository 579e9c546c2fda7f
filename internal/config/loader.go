package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/dashboard"
	"github.com/MrWong99/frontdesk/internal/notify"
	"github.com/MrWong99/frontdesk/internal/secrets"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultLLMProvider = "genai"
	DefaultLedgerPath  = "service_tickets.txt"
	DefaultDotenv      = ".env"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"genai", "openai-native", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = conversation.DefaultSessionTTL
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultLLMProvider
	}
	if cfg.Secrets.APIKeyEnv == "" {
		cfg.Secrets.APIKeyEnv = secrets.DefaultNames.APIKey
	}
	if cfg.Secrets.AccountEnv == "" {
		cfg.Secrets.AccountEnv = secrets.DefaultNames.Account
	}
	if cfg.Secrets.PasswordEnv == "" {
		cfg.Secrets.PasswordEnv = secrets.DefaultNames.Password
	}
	if cfg.Secrets.Dotenv == "" {
		cfg.Secrets.Dotenv = DefaultDotenv
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = DefaultLedgerPath
	}
	if cfg.Notify.SMTPHost == "" {
		cfg.Notify.SMTPHost = notify.DefaultHost
	}
	if cfg.Notify.SMTPPort == 0 {
		cfg.Notify.SMTPPort = notify.DefaultPort
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = notify.DefaultSubject
	}
	if cfg.Dashboard.UnitValue == 0 {
		cfg.Dashboard.UnitValue = dashboard.DefaultUnitValue
	}
	if cfg.Dashboard.Target == 0 {
		cfg.Dashboard.Target = dashboard.DefaultTarget
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.session_ttl %s must not be negative", cfg.Server.SessionTTL))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)

	// Receptionist
	if _, err := cfg.Receptionist.BuildInstruction(); err != nil {
		errs = append(errs, fmt.Errorf("receptionist.instruction: %w", err))
	}

	// Conversation
	if cfg.Conversation.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("conversation.history_turns %d must not be negative", cfg.Conversation.HistoryTurns))
	}
	if t := cfg.Conversation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %v must be within [0, 2]", t))
	}
	if cfg.Conversation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens %d must not be negative", cfg.Conversation.MaxTokens))
	}

	// Ledger
	if cfg.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path is required"))
	}

	// Notify
	if p := cfg.Notify.SMTPPort; p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("notify.smtp_port %d is out of range [1, 65535]", p))
	}
	if _, err := notify.ParseBodyTemplate(cfg.Notify.BodyTemplate); err != nil {
		errs = append(errs, fmt.Errorf("notify.body_template: %w", err))
	}
	if !cfg.Notify.IsEnabled() {
		slog.Warn("notify.enabled is false; captured leads will not be emailed")
	}

	// Dashboard
	if cfg.Dashboard.UnitValue < 0 {
		errs = append(errs, fmt.Errorf("dashboard.unit_value %d must not be negative", cfg.Dashboard.UnitValue))
	}
	if cfg.Dashboard.Target < 0 {
		errs = append(errs, fmt.Errorf("dashboard.target %d must not be negative", cfg.Dashboard.Target))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
