package notify_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/notify"
)

// fakeSMTP is a minimal plaintext SMTP server that accepts one session and
// records the envelope and data it received. The client is dialed as
// "localhost" so PLAIN auth is allowed without TLS.
type fakeSMTP struct {
	ln         net.Listener
	rejectAuth bool

	mu   sync.Mutex
	from string
	rcpt string
	data string
	auth string
	done chan struct{}
}

func newFakeSMTP(t *testing.T, rejectAuth bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTP{ln: ln, rejectAuth: rejectAuth, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeSMTP) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	write := func(line string) { conn.Write([]byte(line + "\r\n")) }
	write("220 localhost ESMTP fake")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			write("250-localhost")
			write("250 AUTH PLAIN")
		case strings.HasPrefix(cmd, "AUTH"):
			s.mu.Lock()
			s.auth = line
			s.mu.Unlock()
			if s.rejectAuth {
				write("535 5.7.8 authentication failed")
				continue
			}
			write("235 2.7.0 accepted")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = line[len("MAIL FROM:"):]
			s.mu.Unlock()
			write("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = line[len("RCPT TO:"):]
			s.mu.Unlock()
			write("250 ok")
		case cmd == "DATA":
			write("354 end with <CRLF>.<CRLF>")
			var sb strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" {
					break
				}
				sb.WriteString(dl)
			}
			s.mu.Lock()
			s.data = sb.String()
			s.mu.Unlock()
			write("250 queued")
		case cmd == "NOOP", cmd == "RSET":
			write("250 ok")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("502 not implemented")
		}
	}
}

func plainDialer(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func fixedNow() time.Time { return time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC) }

func TestNotify_DeliversToSameAccount(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t, false)

	n, err := notify.NewSMTP(notify.SMTPConfig{
		Host:     "localhost",
		Port:     srv.port(),
		Account:  "owner@example.com",
		Password: "app-password",
	}, notify.WithDialer(plainDialer), notify.WithClock(fixedNow))
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}

	if ok := n.Notify(context.Background(), "Alice | Broken heater | 555-1234"); !ok {
		t.Fatal("Notify returned false, want true")
	}
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "<owner@example.com>" {
		t.Errorf("MAIL FROM = %q", srv.from)
	}
	if srv.rcpt != "<owner@example.com>" {
		t.Errorf("RCPT TO = %q", srv.rcpt)
	}
	if !strings.HasPrefix(srv.auth, "AUTH PLAIN") {
		t.Errorf("auth line = %q, want AUTH PLAIN", srv.auth)
	}
	if !strings.Contains(srv.data, "Subject: "+notify.DefaultSubject) {
		t.Errorf("data missing subject:\n%s", srv.data)
	}
	if !strings.Contains(srv.data, "DATA: Alice | Broken heater | 555-1234") {
		t.Errorf("data missing payload:\n%s", srv.data)
	}
	if !strings.Contains(srv.data, "Captured: 2026-05-01 08:30") {
		t.Errorf("data missing capture time:\n%s", srv.data)
	}
}

func TestNotify_CustomBodyTemplate(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t, false)

	n, err := notify.NewSMTP(notify.SMTPConfig{
		Host:         "localhost",
		Port:         srv.port(),
		Account:      "owner@example.com",
		Subject:      "Lead",
		BodyTemplate: "Call back: {{.Payload}}\n",
	}, notify.WithDialer(plainDialer), notify.WithClock(fixedNow))
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	if !n.Notify(context.Background(), "Carol | Boiler | 555-9") {
		t.Fatal("Notify returned false, want true")
	}
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !strings.Contains(srv.data, "Call back: Carol | Boiler | 555-9") {
		t.Errorf("data missing custom body:\n%s", srv.data)
	}
	if strings.Contains(srv.data, "DATA:") {
		t.Errorf("default body rendered despite custom template:\n%s", srv.data)
	}
}

func TestParseBodyTemplate(t *testing.T) {
	t.Parallel()
	if _, err := notify.ParseBodyTemplate(""); err != nil {
		t.Errorf("empty template: %v", err)
	}
	if _, err := notify.ParseBodyTemplate("{{.Payload}}"); err != nil {
		t.Errorf("valid template: %v", err)
	}
	if _, err := notify.ParseBodyTemplate("{{.Payload"); err == nil {
		t.Error("expected error for unterminated action")
	}
}

func TestNotify_AuthFailureIsFalse(t *testing.T) {
	t.Parallel()
	srv := newFakeSMTP(t, true)

	n, err := notify.NewSMTP(notify.SMTPConfig{
		Host:     "localhost",
		Port:     srv.port(),
		Account:  "owner@example.com",
		Password: "wrong",
	}, notify.WithDialer(plainDialer))
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	if n.Notify(context.Background(), "Alice | x | y") {
		t.Fatal("Notify returned true despite auth failure")
	}
}

func TestNotify_DialFailureIsFalse(t *testing.T) {
	t.Parallel()
	// Grab a free port and close it again so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	n, err := notify.NewSMTP(notify.SMTPConfig{
		Host:    "127.0.0.1",
		Port:    port,
		Account: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	if n.Notify(context.Background(), "payload") {
		t.Fatal("Notify returned true with no server listening")
	}
}

func TestNewSMTP_Validation(t *testing.T) {
	t.Parallel()
	if _, err := notify.NewSMTP(notify.SMTPConfig{}); err == nil {
		t.Error("expected error for missing account")
	}
	if _, err := notify.NewSMTP(notify.SMTPConfig{Account: "a@b.c", BodyTemplate: "{{.Broken"}); err == nil {
		t.Error("expected error for invalid body template")
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	n, err := notify.NewSMTP(notify.SMTPConfig{
		Account:      "owner@example.com",
		Subject:      "New lead",
		BodyTemplate: "Lead: {{.Payload}}\nAt {{.Time.Format \"15:04\"}}\n",
	}, notify.WithClock(fixedNow))
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	msg, err := n.BuildMessage("Bob | Leak | 555")
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	s := string(msg)
	for _, want := range []string{
		"From: <owner@example.com>\r\n",
		"To: <owner@example.com>\r\n",
		"Subject: New lead\r\n",
		"Content-Type: text/plain",
		"Lead: Bob | Leak | 555\r\n",
		"At 08:30\r\n",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q:\n%s", want, s)
		}
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	var n notify.Notifier = notify.Nop{}
	if n.Notify(context.Background(), "x") {
		t.Error("Nop.Notify returned true")
	}
}
