package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/util"
	"github.com/hupe1980/roundtable/logging"
)

// Responder produces sanitized model text for a prompt. It never fails:
// provider problems are reported as text. gateway.Gateway implements it.
type Responder interface {
	Respond(ctx context.Context, prompt string) string
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, prompt string) string

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, prompt string) string { return f(ctx, prompt) }

// GenericAgentOptions configures a GenericAgent.
type GenericAgentOptions struct {
	Logger logging.Logger
}

// GenericAgent answers every message with model output shaped by its role
// template and replies to the sender.
type GenericAgent struct {
	*BaseAgent
	responder Responder
	template  RoleTemplate
}

// NewGenericAgent creates an agent for cfg.Role using tmpl.
func NewGenericAgent(cfg core.AgentConfig, responder Responder, tmpl RoleTemplate, optFns ...func(o *GenericAgentOptions)) (*GenericAgent, error) {
	opts := GenericAgentOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if responder == nil {
		return nil, fmt.Errorf("agent %s: responder is required", cfg.ID)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.ID, err)
	}

	return &GenericAgent{
		BaseAgent: NewBaseAgent(cfg, opts.Logger),
		responder: responder,
		template:  tmpl,
	}, nil
}

// Template returns the role template the agent runs with.
func (a *GenericAgent) Template() RoleTemplate { return a.template }

// React renders the prompt, asks the responder and records memory before
// replying to the sender with the sanitized text.
func (a *GenericAgent) React(ctx context.Context, msg core.Message) ([]core.Outbound, error) {
	data := PromptData{
		Role:   a.Role(),
		Sender: msg.From.String(),
		Input:  msg.Content,
		Memory: a.MemoryString(),
	}

	prompt, err := util.RenderTemplate(a.template.Prompt, data)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.ID(), err)
	}

	data.Response = a.responder.Respond(ctx, prompt)

	entries := make([]string, 0, len(a.template.Record))
	for _, rec := range a.template.Record {
		entry, err := util.RenderTemplate(rec, data)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.ID(), err)
		}
		entries = append(entries, entry)
	}
	a.Remember(ctx, entries...)

	a.Logger().Debug("Agent reacted", "agent", a.ID(), "from", msg.From, "response_len", len(data.Response))

	return core.Reply(msg.From, data.Response), nil
}

// NewFactory returns a core.AgentFactory building GenericAgents for any role,
// using the matching template from templates or FallbackTemplate.
func NewFactory(responder Responder, templates Templates, optFns ...func(o *GenericAgentOptions)) core.AgentFactory {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return func(cfg core.AgentConfig) (core.Agent, error) {
		return NewGenericAgent(cfg, responder, templates.Lookup(cfg.Role), optFns...)
	}
}
