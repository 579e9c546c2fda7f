// Command frontdesk is the main entry point for the Frontdesk AI receptionist.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/frontdesk/internal/app"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/secrets"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/anyllm"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/genai"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/openai"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	watchConfig := true
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
		watchConfig = false
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "frontdesk: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if !watchConfig {
		slog.Warn("config file not found, using defaults", "config", *configPath)
	}
	slog.Info("frontdesk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Secrets ───────────────────────────────────────────────────────────────
	if err := secrets.LoadDotenv(cfg.Secrets.Dotenv); err != nil {
		slog.Warn("dotenv file not loaded", "path", cfg.Secrets.Dotenv, "err", err)
	}
	sec, err := secrets.Load(secrets.Names{
		APIKey:   cfg.Secrets.APIKeyEnv,
		Account:  cfg.Secrets.AccountEnv,
		Password: cfg.Secrets.PasswordEnv,
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "frontdesk: configuration error: %v\n", err)
		slog.Error("secrets not configured", "err", err)
		return 1
	}
	slog.Debug("secrets loaded", "secrets", sec)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg, sec)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithLevelVar(level),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.Handler()),
	}
	if watchConfig {
		opts = append(opts, app.WithConfigWatch(*configPath, 0))
	}
	application, err := app.New(ctx, cfg, providers, sec, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.AddCloser(func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(flushCtx)
	})

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	reg.RegisterLLM("genai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []genai.Option
		if entry.BaseURL != "" {
			opts = append(opts, genai.WithBaseURL(entry.BaseURL))
		}
		return genai.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optString(entry.Options, "timeout"); d != "" {
			timeout, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("openai-native: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllm.SupportedProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.IsLocal(providerName) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			model := entry.Model
			if model == "" && providerName == "gemini" {
				model = genai.DefaultModel
			}
			return anyllm.New(providerName, model, opts...)
		})
	}

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the configured LLM provider. The API key from
// the secret loader is used unless the config sets one explicitly.
func buildProviders(cfg *config.Config, reg *config.Registry, sec secrets.Secrets) (*app.Providers, error) {
	entry := cfg.Providers.LLM
	if entry.APIKey == "" {
		entry.APIKey = sec.APIKey
	}
	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name)
	return &app.Providers{LLM: p}, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	notify := "(disabled)"
	if cfg.Notify.IsEnabled() {
		notify = fmt.Sprintf("%s:%d", cfg.Notify.SMTPHost, cfg.Notify.SMTPPort)
	}
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Frontdesk startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerLabel(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	company := cfg.Receptionist.Company
	if company == "" {
		company = conversation.DefaultPersona.Company
	}
	printRow("Company", company)
	printRow("Ledger", cfg.Ledger.Path)
	printRow("Notify", notify)
	printRow("History turns", fmt.Sprint(cfg.Conversation.HistoryTurns))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func providerLabel(name, model string) string {
	if model == "" {
		return name
	}
	return name + " / " + model
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
