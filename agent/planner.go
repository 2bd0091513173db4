package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/util"
	"github.com/hupe1980/roundtable/logging"
)

// PlannerState is the planner's position in its per-run state machine.
type PlannerState int

const (
	// StateIdle is the zero value of an unconstructed planner.
	StateIdle PlannerState = iota
	// StateAwaitingUser waits for the first message from core.UserID.
	StateAwaitingUser
	// StateSpawned is terminal for the spawn decision; the planner only
	// routes stage traffic from here on.
	StateSpawned
)

// String implements fmt.Stringer.
func (s PlannerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUser:
		return "awaiting_user"
	case StateSpawned:
		return "spawned"
	default:
		return "unknown"
	}
}

// Stage is one step of the planner's pipeline. Instruction is the message
// template sent to the stage's agent, rendered with Input set to the goal for
// the first stage and to the previous stage's reply otherwise.
//
// Document marks the stage whose accepted reply is the session's document.
// When no stage is marked, the last stage produces it.
type Stage struct {
	Role        string `yaml:"role" json:"role"`
	Instruction string `yaml:"instruction" json:"instruction"`
	Document    bool   `yaml:"document,omitempty" json:"document,omitempty"`
}

// ReviewPipeline returns the research, write and review stages.
func ReviewPipeline() []Stage {
	return []Stage{
		{Role: RoleResearcher, Instruction: "Please research: {{.Input}}"},
		{Role: RoleWriter, Instruction: "Use this research to structure a response: {{.Input}}", Document: true},
		{Role: RoleReviewer, Instruction: "Review this document for accuracy: {{.Input}}"},
	}
}

// BasicPipeline returns the research and write stages.
func BasicPipeline() []Stage { return ReviewPipeline()[:2] }

// BounceText is the corrective instruction sent back to off-topic authors.
func BounceText(goal string) string {
	return "Your response is off-topic. Refocus on the main goal: " + goal
}

// PlannerOptions configures a PlannerAgent.
type PlannerOptions struct {
	// Review enables reviewing and routing of stage replies. Without review
	// the planner only spawns and instructs the first stage.
	Review bool
	// Stages defaults to ReviewPipeline with review and BasicPipeline without.
	Stages []Stage
	// Policy decides which stage replies are bounced.
	Policy OffTopicPolicy
	// OnBounce is called for every bounced reply.
	OnBounce func(author core.AgentID)
	Logger   logging.Logger
}

// PlannerAgent owns the session goal and coordinates the stage agents.
type PlannerAgent struct {
	*BaseAgent
	spawner core.Spawner
	opts    PlannerOptions
	matcher *OffTopicMatcher

	mu       sync.Mutex
	state    PlannerState
	goal     string
	stageOf  map[core.AgentID]int
	members  []core.AgentID
	final    bool
	docStage int
	document string
}

// NewPlannerAgent creates the planner. cfg.ID is normally core.PlannerID.
func NewPlannerAgent(cfg core.AgentConfig, spawner core.Spawner, optFns ...func(o *PlannerOptions)) (*PlannerAgent, error) {
	opts := PlannerOptions{
		Review: true,
		Policy: DefaultOffTopicPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if spawner == nil {
		return nil, errors.New("planner: spawner is required")
	}
	if len(opts.Stages) == 0 {
		if opts.Review {
			opts.Stages = ReviewPipeline()
		} else {
			opts.Stages = BasicPipeline()
		}
	}
	for i, st := range opts.Stages {
		if st.Role == "" {
			return nil, fmt.Errorf("planner: stage %d has no role", i)
		}
		if err := util.Check(st.Instruction); err != nil {
			return nil, fmt.Errorf("planner: stage %d instruction: %w", i, err)
		}
	}
	if cfg.Role == "" {
		cfg.Role = "Planner"
	}

	docStage := len(opts.Stages) - 1
	for i, st := range opts.Stages {
		if st.Document {
			docStage = i
		}
	}

	return &PlannerAgent{
		BaseAgent: NewBaseAgent(cfg, opts.Logger),
		spawner:   spawner,
		opts:      opts,
		matcher:   opts.Policy.Matcher(),
		state:     StateAwaitingUser,
		stageOf:   map[core.AgentID]int{},
		docStage:  docStage,
	}, nil
}

// State returns the current state.
func (p *PlannerAgent) State() PlannerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Goal returns the goal received from the user, if any.
func (p *PlannerAgent) Goal() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.goal
}

// Members returns the spawned stage agents in pipeline order.
func (p *PlannerAgent) Members() []core.AgentID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.AgentID(nil), p.members...)
}

// Finished reports whether the last stage delivered an accepted reply.
func (p *PlannerAgent) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.final
}

// Document returns the latest accepted reply of the document stage, or ""
// when that stage has not delivered one.
func (p *PlannerAgent) Document() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.document
}

// React implements core.Agent.
func (p *PlannerAgent) React(ctx context.Context, msg core.Message) ([]core.Outbound, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.From == core.UserID {
		if p.state != StateAwaitingUser {
			p.Logger().Debug("Ignoring repeated user message", "state", p.state.String())
			return nil, nil
		}
		return p.plan(ctx, msg.Content)
	}

	if !p.opts.Review || p.state != StateSpawned || p.final {
		return nil, nil
	}
	return p.route(ctx, msg)
}

func (p *PlannerAgent) plan(ctx context.Context, goal string) ([]core.Outbound, error) {
	p.goal = goal
	p.Remember(ctx, "User goal: "+goal)

	// the decision is final even if a spawn fails, so a retry cannot spawn twice
	p.state = StateSpawned

	for i, st := range p.opts.Stages {
		id, err := p.spawner.Spawn(ctx, st.Role)
		if err != nil {
			return nil, fmt.Errorf("planner: spawn %s: %w", st.Role, err)
		}
		p.stageOf[id] = i
		p.members = append(p.members, id)
		p.Logger().Info("Spawned agent", "agent", id, "role", st.Role)
	}

	text, err := util.RenderTemplate(p.opts.Stages[0].Instruction, PromptData{Input: goal})
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return core.Reply(p.members[0], text), nil
}

func (p *PlannerAgent) route(ctx context.Context, msg core.Message) ([]core.Outbound, error) {
	idx, ok := p.stageOf[msg.From]
	if !ok {
		p.Logger().Debug("Ignoring message from non-member", "from", msg.From)
		return nil, nil
	}

	if p.matcher.IsOffTopic(msg.Content) {
		p.Logger().Info("Bouncing off-topic reply", "agent", msg.From)
		if p.opts.OnBounce != nil {
			p.opts.OnBounce(msg.From)
		}
		return core.Reply(msg.From, BounceText(p.goal)), nil
	}

	if idx == p.docStage {
		p.document = msg.Content
	}

	if idx == len(p.members)-1 {
		p.final = true
		p.Remember(ctx, "Final: "+msg.Content)
		return nil, nil
	}

	next := idx + 1
	text, err := util.RenderTemplate(p.opts.Stages[next].Instruction, PromptData{Input: msg.Content})
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return core.Reply(p.members[next], text), nil
}

// NewPlannerFactory returns a planner constructor with fixed options, in the
// shape the engine expects for building the session planner.
func NewPlannerFactory(optFns ...func(o *PlannerOptions)) func(cfg core.AgentConfig, spawner core.Spawner) (core.Agent, error) {
	return func(cfg core.AgentConfig, spawner core.Spawner) (core.Agent, error) {
		p, err := NewPlannerAgent(cfg, spawner, optFns...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
