package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/frontdesk/internal/conversation"
	"github.com/MrWong99/frontdesk/internal/dashboard"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
)

type countingNotifier struct{ calls atomic.Int32 }

func (n *countingNotifier) Notify(context.Context, string) bool {
	n.calls.Add(1)
	return true
}

type testEnv struct {
	srv      *httptest.Server
	web      *Server
	provider *mock.Provider
	ledger   *ledger.FileLedger
	notifier *countingNotifier
	sessions *conversation.Store
	client   *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	env := &testEnv{
		provider: &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hello, how can I help?"}},
		ledger:   ledger.New(filepath.Join(t.TempDir(), "service_tickets.txt")),
		notifier: &countingNotifier{},
		sessions: conversation.NewStore(conversation.WithStoreMetrics(m)),
	}
	rcpt, err := conversation.NewReceptionist(env.provider, env.ledger, env.notifier, conversation.WithMetrics(m))
	if err != nil {
		t.Fatalf("NewReceptionist: %v", err)
	}
	env.web = New(Config{
		Receptionist: rcpt,
		Sessions:     env.sessions,
		Ledger:       env.ledger,
		Metrics:      m,
		Health:       health.New(health.LedgerCheck(env.ledger), health.ProviderCheck(env.provider)),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		Company:    "Acme Plumbing",
		ModelLabel: "gemini-2.0-flash",
		UnitValue:  200,
		Target:     100,
	})
	env.srv = httptest.NewServer(env.web.Handler())
	t.Cleanup(env.srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	env.client = &http.Client{Jar: jar}
	return env
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestIndex_RendersPageAndSetsCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{"Acme Plumbing", "Tickets Locked", "$0 Potential", "gemini-2.0-flash"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	u, _ := url.Parse(env.srv.URL)
	if len(env.client.Jar.Cookies(u)) == 0 {
		t.Error("session cookie not set")
	}
	if got := env.sessions.Len(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestIndex_RefreshesSessionCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	first, _ := env.get(t, "/")
	second, _ := env.get(t, "/")

	var issued, refreshed *http.Cookie
	for _, c := range first.Cookies() {
		if c.Name == SessionCookie {
			issued = c
		}
	}
	for _, c := range second.Cookies() {
		if c.Name == SessionCookie {
			refreshed = c
		}
	}
	if issued == nil {
		t.Fatal("first response did not set the session cookie")
	}
	if refreshed == nil {
		t.Fatal("second response did not refresh the session cookie")
	}
	if refreshed.Value != issued.Value {
		t.Errorf("refreshed cookie = %q, want same session %q", refreshed.Value, issued.Value)
	}
	if want := int(conversation.DefaultSessionTTL / time.Second); refreshed.MaxAge != want {
		t.Errorf("MaxAge = %d, want %d", refreshed.MaxAge, want)
	}
	if got := env.sessions.Len(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestIndex_ProgressRoundsToNearestPercent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	for i := range 29 {
		if err := env.ledger.Append(fmt.Sprintf("Caller %d | Leak | 555-%04d", i, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	_, body := env.get(t, "/")
	if !strings.Contains(body, `value="29"`) {
		t.Errorf("progress bar not at 29%%:\n%s", body)
	}
}

func TestChat_PostRedirectGet(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.post(t, "/chat", url.Values{"message": {"Hi there"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after redirect = %d", resp.StatusCode)
	}
	if resp.Request.Method != http.MethodGet || resp.Request.URL.Path != "/" {
		t.Errorf("final request = %s %s, want GET /", resp.Request.Method, resp.Request.URL.Path)
	}
	if !strings.Contains(body, "Hi there") || !strings.Contains(body, "Hello, how can I help?") {
		t.Errorf("page should show both turns:\n%s", body)
	}
	if env.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", env.sessions.Len())
	}
}

func TestChat_HTMLEscaped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, body := env.post(t, "/chat", url.Values{"message": {"<script>alert(1)</script>"}})
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("user input rendered unescaped")
	}
}

func TestChat_LeadUpdatesDashboardAndToast(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.provider.CompleteResponse = &llm.CompletionResponse{Content: "Got it. DATA_LOCKED: Alice | Broken heater | 555-1234"}

	_, body := env.post(t, "/chat", url.Values{"message": {"555-1234"}})
	if !strings.Contains(body, "$200 Potential") {
		t.Errorf("dashboard not updated:\n%s", body)
	}
	if !strings.Contains(body, conversation.ToastNotified) {
		t.Error("success toast missing")
	}
	if env.ledger.Count() != 1 || env.notifier.calls.Load() != 1 {
		t.Errorf("ledger=%d notify=%d, want 1 and 1", env.ledger.Count(), env.notifier.calls.Load())
	}

	// The toast is shown once.
	if _, body := env.get(t, "/"); strings.Contains(body, conversation.ToastNotified) {
		t.Error("toast should not persist across renders")
	}
}

func TestChat_ModelErrorShowsBanner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.provider.CompleteErr = errors.New("upstream unavailable")

	_, body := env.post(t, "/chat", url.Values{"message": {"hello"}})
	if !strings.Contains(body, "upstream unavailable") {
		t.Errorf("error banner missing:\n%s", body)
	}
	if !strings.Contains(body, "hello") {
		t.Error("user turn should remain visible")
	}
}

func TestChat_EmptyMessageSkipsModel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.post(t, "/chat", url.Values{"message": {"   "}})
	if n := len(env.provider.Calls()); n != 0 {
		t.Errorf("model calls = %d, want 0", n)
	}
}

func TestReset_ClearsTurns(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.post(t, "/chat", url.Values{"message": {"remember me"}})

	_, body := env.post(t, "/reset", nil)
	if strings.Contains(body, "remember me") {
		t.Error("turns should be cleared after reset")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.post(t, "/chat", url.Values{"message": {"private note"}})

	other := &http.Client{}
	resp, err := other.Get(env.srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "private note") {
		t.Error("a second browser must not see another session's turns")
	}
}

func TestAPIDashboard(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	for range 3 {
		if err := env.ledger.Append("x | y | z"); err != nil {
			t.Fatal(err)
		}
	}

	_, body := env.get(t, "/api/dashboard")
	var snap dashboard.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Leads != 3 || snap.Potential != 600 || snap.Progress != 0.03 {
		t.Errorf("snapshot = %+v", snap)
	}

	env.web.SetDashboard(500, 3)
	_, body = env.get(t, "/api/dashboard")
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Potential != 1500 || snap.Progress != 1.0 {
		t.Errorf("after SetDashboard snapshot = %+v", snap)
	}
}

func TestAPILeads(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	for _, p := range []string{"a | 1 | 111", "b | 2 | 222", "c | 3 | 333"} {
		if err := env.ledger.Append(p); err != nil {
			t.Fatal(err)
		}
	}

	resp, body := env.get(t, "/api/leads?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got leadsResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 3 || len(got.Entries) != 2 {
		t.Fatalf("response = %+v", got)
	}
	if got.Entries[0].Payload != "c | 3 | 333" {
		t.Errorf("newest entry = %q, want c | 3 | 333", got.Entries[0].Payload)
	}

	if resp, _ := env.get(t, "/api/leads?limit=zero"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestAPILeads_EmptyLedger(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, body := env.get(t, "/api/leads")
	if !strings.Contains(body, `"entries":[]`) {
		t.Errorf("empty ledger should return an empty list, got %s", body)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if resp, _ := env.get(t, path); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
	if resp, _ := env.get(t, "/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketChat(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.provider.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(last, "555") {
			return &llm.CompletionResponse{Content: "DATA_LOCKED: Bob | Leak | 555-0000"}, nil
		}
		return &llm.CompletionResponse{Content: "What's your number?"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	exchange := func(text string) outFrame {
		t.Helper()
		data, _ := json.Marshal(inFrame{Text: text})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("Write: %v", err)
		}
		_, reply, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var out outFrame
		if err := json.Unmarshal(reply, &out); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return out
	}

	first := exchange("I have a leak")
	if first.Reply != "What's your number?" || first.LeadCaptured {
		t.Errorf("first frame = %+v", first)
	}

	second := exchange("555-0000")
	if !second.LeadCaptured || !second.Notified {
		t.Errorf("second frame = %+v, want captured and notified", second)
	}
	if second.Dashboard.Leads != 1 || second.Dashboard.Potential != 200 {
		t.Errorf("dashboard = %+v", second.Dashboard)
	}

	empty := exchange("  ")
	if empty.Error == "" {
		t.Error("empty message should produce an error frame")
	}

	conn.Close(websocket.StatusNormalClosure, "bye")
}

func TestWebSocket_ModelError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.provider.CompleteErr = errors.New("rate limited")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"text":"hi"}`)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var out outFrame
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Error, "rate limited") || out.Reply != "" {
		t.Errorf("frame = %+v, want error and no reply", out)
	}
}
