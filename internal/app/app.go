// Package app wires all Frontdesk subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the ledger, notifier,
// session store, receptionist and HTTP surface; Run serves HTTP and runs the
// background loops; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithNotifier,
// WithListener, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/internal/notify"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/secrets"
	"github.com/MrWong99/frontdesk/internal/web"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
)

const (
	defaultSweepInterval = 5 * time.Minute
	readHeaderTimeout    = 10 * time.Second
	// writeTimeout bounds a whole request, including the model and SMTP
	// round trips of a lead-capturing turn.
	writeTimeout = 2 * time.Minute
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	LLM llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	secrets   secrets.Secrets

	ledger   *ledger.FileLedger
	notifier notify.Notifier
	sessions *conversation.Store
	rcpt     *conversation.Receptionist
	web      *web.Server
	metrics  *observe.Metrics
	scrape   http.Handler
	levelVar *slog.LevelVar

	watchPath     string
	watchInterval time.Duration
	watcher       *config.Watcher
	sweepInterval time.Duration

	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithNotifier replaces the SMTP notifier built from config.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevelVar lets config reloads change the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithConfigWatch enables hot reload of the YAML file at path, polled every
// interval (zero keeps the watcher default). Run drives the polling loop.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchInterval = interval
	}
}

// WithSweepInterval sets how often idle sessions are expired.
func WithSweepInterval(d time.Duration) Option {
	return func(a *App) { a.sweepInterval = d }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, sec secrets.Secrets, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{
		cfg:           cfg,
		providers:     providers,
		secrets:       sec,
		sweepInterval: defaultSweepInterval,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Ledger ────────────────────────────────────────────────────────
	a.ledger = ledger.New(cfg.Ledger.Path)
	slog.Info("ledger ready", "path", a.ledger.Path(), "count", a.ledger.Count())

	// ── 2. Notifier ──────────────────────────────────────────────────────
	if err := a.initNotifier(); err != nil {
		return nil, fmt.Errorf("app: init notifier: %w", err)
	}

	// ── 3. Sessions + receptionist ───────────────────────────────────────
	a.sessions = conversation.NewStore(
		conversation.WithTTL(cfg.Server.SessionTTL),
		conversation.WithStoreMetrics(a.metrics),
	)
	instr, err := cfg.Receptionist.BuildInstruction()
	if err != nil {
		return nil, fmt.Errorf("app: build instruction: %w", err)
	}
	a.rcpt, err = conversation.NewReceptionist(providers.LLM, a.ledger, a.notifier,
		conversation.WithMetrics(a.metrics),
		conversation.WithInstruction(instr),
		conversation.WithHistoryTurns(cfg.Conversation.HistoryTurns),
		conversation.WithSampling(cfg.Conversation.Temperature, cfg.Conversation.MaxTokens),
		conversation.WithProviderName(cfg.Providers.LLM.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init receptionist: %w", err)
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.web = web.New(web.Config{
		Receptionist:   a.rcpt,
		Sessions:       a.sessions,
		Ledger:         a.ledger,
		Metrics:        a.metrics,
		Health:         health.New(health.LedgerCheck(a.ledger), health.ProviderCheck(providers.LLM)),
		MetricsHandler: a.scrape,
		Company:        cfg.Receptionist.Persona().Company,
		ModelLabel:     modelLabel(cfg.Providers.LLM),
		UnitValue:      cfg.Dashboard.UnitValue,
		Target:         cfg.Dashboard.Target,
		SecureCookies:  cfg.Server.TLS != nil,
		SessionTTL:     cfg.Server.SessionTTL,
	})
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.web.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	// ── 5. Config watcher ────────────────────────────────────────────────
	if a.watchPath != "" {
		var wopts []config.WatcherOption
		if a.watchInterval > 0 {
			wopts = append(wopts, config.WithInterval(a.watchInterval))
		}
		a.watcher, err = config.NewWatcher(a.watchPath, a.ApplyConfig, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
	}

	return a, nil
}

func (a *App) initNotifier() error {
	if a.notifier != nil {
		return nil
	}
	if !a.cfg.Notify.IsEnabled() {
		a.notifier = notify.Nop{}
		return nil
	}
	n, err := notify.NewSMTP(notify.SMTPConfig{
		Host:         a.cfg.Notify.SMTPHost,
		Port:         a.cfg.Notify.SMTPPort,
		Account:      a.secrets.Account,
		Password:     a.secrets.Password,
		Subject:      a.cfg.Notify.Subject,
		BodyTemplate: a.cfg.Notify.BodyTemplate,
	})
	if err != nil {
		return err
	}
	a.notifier = n
	return nil
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Receptionist returns the chat loop.
func (a *App) Receptionist() *conversation.Receptionist { return a.rcpt }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and runs the session sweeper and config watcher until ctx
// is cancelled or the server fails. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.serve()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 15*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.sessions.Run(gctx, a.sweepInterval)
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr, "llm", a.cfg.Providers.LLM.Name)
	return g.Wait()
}

func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	if a.listener == nil {
		if tls != nil {
			return a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		}
		return a.server.ListenAndServe()
	}
	if tls != nil {
		return a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
	}
	return a.server.Serve(a.listener)
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the live-reloadable parts of a config change. It is
// the [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InstructionChanged {
		instr, err := new.Receptionist.BuildInstruction()
		if err != nil {
			slog.Warn("config reload: keeping previous instruction", "err", err)
		} else {
			a.rcpt.SetInstruction(instr)
			a.web.SetCompany(new.Receptionist.Persona().Company)
			slog.Info("receptionist instruction reloaded")
		}
	}
	if d.DashboardChanged {
		a.web.SetDashboard(new.Dashboard.UnitValue, new.Dashboard.Target)
		slog.Info("dashboard settings reloaded", "unit_value", new.Dashboard.UnitValue, "target", new.Dashboard.Target)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: some changes need a restart", "fields", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and runs closers in order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete", "sessions", a.sessions.Len())
	})
	return shutdownErr
}

// AddCloser registers fn to run during Shutdown.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// ParseLevel converts a config log level into an slog level.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func modelLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}
