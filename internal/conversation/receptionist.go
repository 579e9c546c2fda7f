package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/frontdesk/internal/lead"
	"github.com/MrWong99/frontdesk/internal/notify"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// ToastNotified is the success toast shown after a lead notification went out.
const ToastNotified = "Revenue alert sent."

// ErrEmptyPrompt is returned by [Receptionist.HandleTurn] for blank input.
var ErrEmptyPrompt = errors.New("conversation: empty prompt")

// Ledger is the subset of the ticket ledger the receptionist writes to.
type Ledger interface {
	Append(payload string) error
}

// Result describes the outcome of one handled turn.
type Result struct {
	Reply        string
	LeadCaptured bool
	Notified     bool
	// Payload is the trimmed text following the sentinel, as stored.
	Payload string
	// Lead is the parsed payload. Zero when the payload is malformed.
	Lead lead.Lead
}

// Receptionist runs the chat loop for all sessions. It is safe for
// concurrent use; turns within one session are serialised.
type Receptionist struct {
	provider     llm.Provider
	providerName string
	ledger       Ledger
	notifier     notify.Notifier
	metrics      *observe.Metrics
	historyTurns int
	temperature  float64
	maxTokens    int
	now          func() time.Time

	mu          sync.RWMutex
	instruction string
}

// Option configures a [Receptionist].
type Option func(*Receptionist)

// WithMetrics records turn metrics on m. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Receptionist) { r.metrics = m }
}

// WithHistoryTurns sends up to n prior turns as context with each prompt.
// Zero sends only the current prompt.
func WithHistoryTurns(n int) Option {
	return func(r *Receptionist) {
		if n > 0 {
			r.historyTurns = n
		}
	}
}

// WithSampling sets the temperature and completion token cap sent with every
// request. Zero values leave the provider defaults in place.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(r *Receptionist) {
		r.temperature = temperature
		r.maxTokens = maxTokens
	}
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(r *Receptionist) { r.providerName = name }
}

// WithInstruction sets the system instruction sent with every prompt.
func WithInstruction(s string) Option {
	return func(r *Receptionist) { r.instruction = s }
}

// NewReceptionist wires the model, ledger and notifier together. A nil
// notifier is replaced with [notify.Nop].
func NewReceptionist(provider llm.Provider, ledger Ledger, notifier notify.Notifier, opts ...Option) (*Receptionist, error) {
	if provider == nil {
		return nil, errors.New("conversation: provider must not be nil")
	}
	if ledger == nil {
		return nil, errors.New("conversation: ledger must not be nil")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	r := &Receptionist{
		provider:     provider,
		providerName: "llm",
		ledger:       ledger,
		notifier:     notifier,
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.instruction == "" {
		instr, err := BuildInstruction("", Persona{})
		if err != nil {
			return nil, err
		}
		r.instruction = instr
	}
	return r, nil
}

// Instruction returns the current system instruction.
func (r *Receptionist) Instruction() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instruction
}

// SetInstruction replaces the system instruction for subsequent turns.
func (r *Receptionist) SetInstruction(s string) {
	r.mu.Lock()
	r.instruction = s
	r.mu.Unlock()
}

// HandleTurn appends text as a user turn, asks the model for a reply and
// appends it as an assistant turn. A reply carrying [lead.Sentinel] is
// appended to the ledger and then announced through the notifier.
//
// When the model call fails the session keeps the user turn, gets no
// assistant turn, and carries a visible error; the ledger is not touched.
func (r *Receptionist) HandleTurn(ctx context.Context, sess *Session, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyPrompt
	}

	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "conversation.HandleTurn",
		trace.WithAttributes(attribute.String("session.id", sess.ID())),
	)
	defer span.End()
	log := observe.SessionLogger(ctx, sess.ID())

	sess.append(Turn{Role: RoleUser, Text: text})

	reply, err := r.generate(ctx, sess.history(r.historyTurns), text)
	if err != nil {
		observe.FailSpan(span, err)
		sess.setError(fmt.Sprintf("Model request failed: %v", err))
		log.Warn("conversation: model call failed", "err", err)
		return Result{}, err
	}
	sess.append(Turn{Role: RoleAssistant, Text: reply})

	res := Result{Reply: reply}
	payload, err := lead.Extract(reply)
	if err != nil {
		return res, nil
	}

	if err := r.ledger.Append(payload); err != nil {
		observe.FailSpan(span, err)
		sess.setError("The lead could not be recorded.")
		log.Error("conversation: append lead", "err", err)
		return res, fmt.Errorf("conversation: append lead: %w", err)
	}
	res.LeadCaptured = true
	res.Payload = payload
	r.metrics.LeadsCaptured.Add(ctx, 1)

	if l, perr := lead.Parse(payload); perr != nil {
		r.metrics.LeadsMalformed.Add(ctx, 1)
		log.Warn("conversation: malformed lead payload", "payload", payload, "err", perr)
	} else {
		res.Lead = l
	}
	log.Info("conversation: lead captured", "payload", payload)

	res.Notified = r.notifier.Notify(ctx, payload)
	span.SetAttributes(
		attribute.Bool("lead.captured", true),
		attribute.Bool("lead.notified", res.Notified),
	)
	switch {
	case res.Notified:
		sess.setToast(ToastNotified)
		r.metrics.RecordNotification(ctx, observe.StatusSent)
	case isNop(r.notifier):
		r.metrics.RecordNotification(ctx, observe.StatusDisabled)
	default:
		r.metrics.RecordNotification(ctx, observe.StatusFailed)
	}
	return res, nil
}

// Reset clears the session's turns. The ledger is unaffected.
func (r *Receptionist) Reset(sess *Session) {
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()
	sess.Reset()
}

// generate sends prompt with the system instruction and optional prior
// turns, returning the reply text.
func (r *Receptionist) generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	msgs := make([]types.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, types.Message{Role: string(t.Role), Content: t.Text})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: prompt})

	start := r.now()
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: r.Instruction(),
		Messages:     msgs,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	r.metrics.LLMDuration.Record(ctx, r.now().Sub(start).Seconds())
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, r.providerName, "llm", "error")
		r.metrics.RecordProviderError(ctx, r.providerName, "llm")
		return "", fmt.Errorf("conversation: generate: %w", err)
	}
	r.metrics.RecordProviderRequest(ctx, r.providerName, "llm", "ok")
	if resp == nil {
		return "", errors.New("conversation: generate: empty response")
	}
	log := observe.Logger(ctx)
	log.Debug("conversation: completion",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	if resp.Truncated {
		log.Warn("conversation: reply cut off at token limit",
			"max_tokens", r.maxTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
	}
	return resp.Content, nil
}

func isNop(n notify.Notifier) bool {
	switch n.(type) {
	case notify.Nop, *notify.Nop:
		return true
	}
	return false
}
