// Package notify sends the "new lead" email. Every call opens its own
// implicit-TLS SMTP session, authenticates, sends one plaintext message to the
// configured account and closes the session.
//
// Delivery is best effort: [Notifier.Notify] reports only success or failure.
// The cause of a failure is logged, never returned.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

// Defaults applied by [NewSMTP] for zero-valued [SMTPConfig] fields.
const (
	DefaultHost    = "smtp.gmail.com"
	DefaultPort    = 465
	DefaultSubject = "GLOBAL REVENUE ALERT: NEW LEAD"
	DefaultBody    = `Hello,

A new lead has been locked by the receptionist.

DATA: {{.Payload}}

Captured: {{.Time.Format "2006-01-02 15:04"}}
`
)

// sendTimeout bounds the whole SMTP exchange of one notification.
const sendTimeout = 30 * time.Second

// Notifier delivers a lead notification.
type Notifier interface {
	// Notify sends payload and reports whether delivery succeeded.
	Notify(ctx context.Context, payload string) bool
}

// Nop is a Notifier that never sends anything and always reports false.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string) bool { return false }

// SMTPConfig configures an [SMTPNotifier].
type SMTPConfig struct {
	// Host is the SMTP server host name. Also used as the TLS server name.
	Host string

	// Port is the implicit-TLS (SMTPS) port.
	Port int

	// Account is both sender and recipient of every notification and the
	// SMTP user name.
	Account string

	// Password is the account's app password.
	Password string

	// Subject is the fixed subject line.
	Subject string

	// BodyTemplate is a text/template rendered with a [Message] value.
	BodyTemplate string
}

// Message is the data the body template is rendered with.
type Message struct {
	Payload string
	Time    time.Time
}

// DialFunc opens the transport connection to addr.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// SMTPNotifier implements Notifier over SMTPS.
type SMTPNotifier struct {
	cfg  SMTPConfig
	body *template.Template
	dial DialFunc
	now  func() time.Time
}

// Option configures an [SMTPNotifier].
type Option func(*SMTPNotifier)

// WithDialer replaces the TLS dialer. The returned connection is used as is,
// so tests can hand back a plaintext connection to a fake server on localhost.
func WithDialer(d DialFunc) Option {
	return func(n *SMTPNotifier) { n.dial = d }
}

// WithClock overrides the time source used for the Date header and body.
func WithClock(now func() time.Time) Option {
	return func(n *SMTPNotifier) { n.now = now }
}

// ParseBodyTemplate parses a notification body template. An empty string
// selects [DefaultBody].
func ParseBodyTemplate(s string) (*template.Template, error) {
	if s == "" {
		s = DefaultBody
	}
	t, err := template.New("body").Option("missingkey=error").Parse(s)
	if err != nil {
		return nil, fmt.Errorf("notify: parse body template: %w", err)
	}
	return t, nil
}

// NewSMTP validates cfg, fills defaults and returns a ready notifier.
func NewSMTP(cfg SMTPConfig, opts ...Option) (*SMTPNotifier, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("notify: account must not be empty")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	body, err := ParseBodyTemplate(cfg.BodyTemplate)
	if err != nil {
		return nil, err
	}

	n := &SMTPNotifier{cfg: cfg, body: body, now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Notify implements Notifier. Any failure (dial, TLS, auth, envelope, data)
// collapses to false.
func (n *SMTPNotifier) Notify(ctx context.Context, payload string) bool {
	if err := n.send(ctx, payload); err != nil {
		slog.Warn("notify: lead notification not delivered",
			"host", n.cfg.Host,
			"port", n.cfg.Port,
			"err", err,
		)
		return false
	}
	slog.Info("notify: lead notification delivered", "to", n.cfg.Account)
	return true
}

func (n *SMTPNotifier) send(ctx context.Context, payload string) error {
	msg, err := n.newMsg(payload)
	if err != nil {
		return err
	}
	client, err := n.newClient()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	return nil
}

// newClient builds a one-shot client: implicit TLS, PLAIN auth and no
// STARTTLS negotiation.
func (n *SMTPNotifier) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Account),
		mail.WithPassword(n.cfg.Password),
		mail.WithTimeout(sendTimeout),
	}
	if n.dial != nil {
		dial := n.dial
		opts = append(opts, mail.WithDialContextFunc(func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dial(ctx, addr)
		}))
	}
	c, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return c, nil
}

// newMsg renders the notification for payload. From and To are both the
// configured account.
func (n *SMTPNotifier) newMsg(payload string) (*mail.Msg, error) {
	now := n.now()

	var body bytes.Buffer
	if err := n.body.Execute(&body, Message{Payload: payload, Time: now}); err != nil {
		return nil, fmt.Errorf("notify: render body: %w", err)
	}

	m := mail.NewMsg()
	if err := m.From(n.cfg.Account); err != nil {
		return nil, fmt.Errorf("notify: from: %w", err)
	}
	if err := m.To(n.cfg.Account); err != nil {
		return nil, fmt.Errorf("notify: to: %w", err)
	}
	m.Subject(n.cfg.Subject)
	m.SetDateWithValue(now)
	m.SetBodyString(mail.TypeTextPlain, strings.ReplaceAll(body.String(), "\r\n", "\n"))
	return m, nil
}

// BuildMessage renders the full RFC 5322 message for payload as it would be
// sent.
func (n *SMTPNotifier) BuildMessage(payload string) ([]byte, error) {
	m, err := n.newMsg(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("notify: write message: %w", err)
	}
	return buf.Bytes(), nil
}
