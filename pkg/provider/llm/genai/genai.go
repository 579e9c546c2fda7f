// Package genai provides an LLM provider backed by Google's official
// google.golang.org/genai SDK talking to the Gemini API.
//
// It is the default backend: one client is created per process and reused for
// every conversation turn.
package genai

import (
	"context"
	"fmt"

	gg "google.golang.org/genai"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Provider implements llm.Provider using the Gemini API.
type Provider struct {
	client *gg.Client
	model  string
}

type config struct {
	baseURL string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint (useful for proxies and tests).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// New constructs a Gemini provider. An empty model selects [DefaultModel].
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &gg.ClientConfig{
		APIKey:  apiKey,
		Backend: gg.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = gg.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := gg.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, err := buildContents(req.Messages)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("genai: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return nil, fmt.Errorf("genai: prompt blocked: %s", fb.BlockReason)
		}
		return nil, fmt.Errorf("genai: empty candidates in response")
	}

	out := &llm.CompletionResponse{
		Content:   resp.Text(),
		Truncated: resp.Candidates[0].FinishReason == gg.FinishReasonMaxTokens,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return llm.CapabilitiesFor(p.model)
}

// buildConfig maps the request's tuning knobs and system prompt onto the
// GenerateContentConfig. Returns nil when nothing needs configuring.
func buildConfig(req llm.CompletionRequest) *gg.GenerateContentConfig {
	if req.SystemPrompt == "" && req.Temperature == 0 && req.MaxTokens <= 0 {
		return nil
	}
	cfg := &gg.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = gg.NewContentFromText(req.SystemPrompt, gg.RoleUser)
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

// buildContents converts the conversation into Gemini contents. Gemini has no
// assistant role; assistant turns are sent as "model". System messages inside
// the history are rejected because the system prompt travels in the config.
func buildContents(msgs []types.Message) ([]*gg.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("genai: request has no messages")
	}
	contents := make([]*gg.Content, 0, len(msgs))
	for _, m := range msgs {
		var role gg.Role
		switch m.Role {
		case types.RoleUser:
			role = gg.RoleUser
		case types.RoleAssistant:
			role = gg.RoleModel
		default:
			return nil, fmt.Errorf("genai: unsupported message role %q", m.Role)
		}
		contents = append(contents, gg.NewContentFromText(m.Content, role))
	}
	return contents, nil
}
