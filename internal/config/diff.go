package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InstructionChanged is set when any receptionist field changed.
	InstructionChanged bool

	DashboardChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// HotReloadable reports whether d contains any change that can be applied live.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.InstructionChanged || d.DashboardChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Receptionist != new.Receptionist {
		d.InstructionChanged = true
	}
	if old.Dashboard != new.Dashboard {
		d.DashboardChanged = true
	}

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !sameTLS(old.Server.TLS, new.Server.TLS))
	restart("server.session_ttl", old.Server.SessionTTL != new.Server.SessionTTL)
	restart("providers.llm", !sameEntry(old.Providers.LLM, new.Providers.LLM))
	restart("secrets", old.Secrets != new.Secrets)
	restart("conversation", old.Conversation != new.Conversation)
	restart("ledger.path", old.Ledger != new.Ledger)
	restart("notify", !sameNotify(old.Notify, new.Notify))

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func sameNotify(a, b NotifyConfig) bool {
	return a.IsEnabled() == b.IsEnabled() &&
		a.SMTPHost == b.SMTPHost &&
		a.SMTPPort == b.SMTPPort &&
		a.Subject == b.Subject &&
		a.BodyTemplate == b.BodyTemplate
}
