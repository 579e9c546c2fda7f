// Package web serves the receptionist's browser surface: the chat page,
// form endpoints, the WebSocket chat channel and the JSON APIs.
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/dashboard"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/internal/observe"
)

// SessionCookie is the name of the browser session cookie.
const SessionCookie = "frontdesk_session"

// defaultLeadsLimit caps /api/leads when no limit is given.
const defaultLeadsLimit = 20

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"money": func(v int) string { return "$" + strconv.Itoa(v) },
}).ParseFS(templateFS, "templates/index.html"))

// Ledger is the read side of the ticket ledger.
type Ledger interface {
	Count() int
	Entries(limit int) ([]ledger.Entry, error)
}

// Config holds all dependencies for a [Server].
type Config struct {
	Receptionist *conversation.Receptionist
	Sessions     *conversation.Store
	Ledger       Ledger
	Metrics      *observe.Metrics
	Health       *health.Handler

	// MetricsHandler serves /metrics. The route is omitted when nil.
	MetricsHandler http.Handler

	// Company and ModelLabel are shown in the page header and sidebar.
	Company    string
	ModelLabel string

	UnitValue int
	Target    int

	// SecureCookies marks the session cookie Secure (set when serving TLS).
	SecureCookies bool
	SessionTTL    time.Duration
}

// Server renders pages and dispatches chat turns. All handlers are safe for
// concurrent use.
type Server struct {
	rcpt     *conversation.Receptionist
	sessions *conversation.Store
	ledger   Ledger
	metrics  *observe.Metrics
	health   *health.Handler
	scrape   http.Handler

	modelLabel string
	secure     bool
	cookieTTL  time.Duration

	mu        sync.RWMutex
	company   string
	unitValue int
	target    int
}

// New creates a [Server] from cfg.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = conversation.DefaultSessionTTL
	}
	return &Server{
		rcpt:       cfg.Receptionist,
		sessions:   cfg.Sessions,
		ledger:     cfg.Ledger,
		metrics:    cfg.Metrics,
		health:     cfg.Health,
		scrape:     cfg.MetricsHandler,
		modelLabel: cfg.ModelLabel,
		secure:     cfg.SecureCookies,
		cookieTTL:  cfg.SessionTTL,
		company:    cfg.Company,
		unitValue:  cfg.UnitValue,
		target:     cfg.Target,
	}
}

// SetDashboard updates the dashboard parameters used by later renders.
func (s *Server) SetDashboard(unitValue, target int) {
	s.mu.Lock()
	s.unitValue, s.target = unitValue, target
	s.mu.Unlock()
}

// SetCompany updates the company name shown in the page header.
func (s *Server) SetCompany(name string) {
	s.mu.Lock()
	s.company = name
	s.mu.Unlock()
}

// Snapshot computes the dashboard from the current ledger count.
func (s *Server) Snapshot() dashboard.Snapshot {
	s.mu.RLock()
	unit, target := s.unitValue, s.target
	s.mu.RUnlock()
	return dashboard.Compute(s.ledger.Count(), unit, target)
}

// Handler returns the complete route tree wrapped in the observe middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/leads", s.handleLeads)
	s.health.Register(mux)
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape)
	}
	return observe.Middleware(s.metrics)(mux)
}

// session resolves the caller's session from the cookie, creating one when
// missing or expired. The cookie is re-issued on every call so its lifetime
// slides with the server-side idle timeout.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.GetOrCreate(id)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID(),
		Path:     "/",
		MaxAge:   int(s.cookieTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if created {
		observe.SessionLogger(r.Context(), sess.ID()).Debug("web: new session")
	}
	return sess
}

func (s *Server) companyName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.company == "" {
		return conversation.DefaultPersona.Company
	}
	return s.company
}

func logRenderError(r *http.Request, err error) {
	observe.Logger(r.Context()).LogAttrs(r.Context(), slog.LevelError, "web: render failed",
		slog.String("path", r.URL.Path),
		slog.String("err", err.Error()),
	)
}
