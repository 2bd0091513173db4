package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

func newPlanner(t *testing.T, sp core.Spawner, optFns ...func(o *PlannerOptions)) *PlannerAgent {
	t.Helper()
	p, err := NewPlannerAgent(core.AgentConfig{ID: core.PlannerID}, sp, optFns...)
	require.NoError(t, err)
	return p
}

func TestPlanner_SpawnsExactlyOnce(t *testing.T) {
	sp := newStubSpawner()
	p := newPlanner(t, sp)
	assert.Equal(t, StateAwaitingUser, p.State())

	out, err := p.React(context.Background(), msg(core.UserID, core.PlannerID, "explain tidal locking"))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Researcher_1", "Please research: explain tidal locking"), out)
	assert.Equal(t, StateSpawned, p.State())

	for i := 0; i < 5; i++ {
		out, err := p.React(context.Background(), msg(core.UserID, core.PlannerID, "another goal"))
		require.NoError(t, err)
		assert.Empty(t, out)
	}

	assert.Equal(t, []string{RoleResearcher, RoleWriter, RoleReviewer}, sp.roles)
	assert.Equal(t, []core.AgentID{"Researcher_1", "Writer_2", "Reviewer_3"}, p.Members())
	assert.Equal(t, []string{"User goal: explain tidal locking"}, p.Memory())
	assert.Equal(t, "explain tidal locking", p.Goal())
}

func TestPlanner_RoutesAcceptedReplies(t *testing.T) {
	p := newPlanner(t, newStubSpawner())
	ctx := context.Background()
	_, err := p.React(ctx, msg(core.UserID, core.PlannerID, "goal"))
	require.NoError(t, err)

	out, err := p.React(ctx, msg("Researcher_1", core.PlannerID, "facts"))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Writer_2", "Use this research to structure a response: facts"), out)

	out, err = p.React(ctx, msg("Writer_2", core.PlannerID, "draft"))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Reviewer_3", "Review this document for accuracy: draft"), out)

	out, err = p.React(ctx, msg("Reviewer_3", core.PlannerID, "looks right"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, p.Finished())
	assert.Equal(t, []string{"User goal: goal", "Final: looks right"}, p.Memory())

	// the pipeline has ended
	out, err = p.React(ctx, msg("Writer_2", core.PlannerID, "late draft"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPlanner_DocumentIsTheWritersAcceptedDraft(t *testing.T) {
	p := newPlanner(t, newStubSpawner())
	ctx := context.Background()
	_, err := p.React(ctx, msg(core.UserID, core.PlannerID, "goal"))
	require.NoError(t, err)

	_, err = p.React(ctx, msg("Researcher_1", core.PlannerID, "facts"))
	require.NoError(t, err)
	assert.Empty(t, p.Document())

	// bounced drafts never become the document
	_, err = p.React(ctx, msg("Writer_2", core.PlannerID, "imagine a story"))
	require.NoError(t, err)
	assert.Empty(t, p.Document())

	_, err = p.React(ctx, msg("Writer_2", core.PlannerID, "draft"))
	require.NoError(t, err)
	_, err = p.React(ctx, msg("Reviewer_3", core.PlannerID, "looks right"))
	require.NoError(t, err)
	assert.Equal(t, "draft", p.Document())
}

func TestPlanner_BouncesOffTopic(t *testing.T) {
	var bounced []core.AgentID
	p := newPlanner(t, newStubSpawner(), func(o *PlannerOptions) {
		o.OnBounce = func(a core.AgentID) { bounced = append(bounced, a) }
	})
	ctx := context.Background()
	_, err := p.React(ctx, msg(core.UserID, core.PlannerID, "explain tides"))
	require.NoError(t, err)

	long := strings.Repeat("word ", 151)
	out, err := p.React(ctx, msg("Researcher_1", core.PlannerID, long))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Researcher_1", "Your response is off-topic. Refocus on the main goal: explain tides"), out)

	out, err = p.React(ctx, msg("Writer_2", core.PlannerID, "Imagine a moon"))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Writer_2", BounceText("explain tides")), out)

	assert.Equal(t, []core.AgentID{"Researcher_1", "Writer_2"}, bounced)
	assert.False(t, p.Finished())
}

func TestPlanner_WithoutReviewIgnoresStageTraffic(t *testing.T) {
	sp := newStubSpawner()
	p := newPlanner(t, sp, func(o *PlannerOptions) { o.Review = false })
	ctx := context.Background()

	_, err := p.React(ctx, msg(core.UserID, core.PlannerID, "goal"))
	require.NoError(t, err)
	assert.Equal(t, []string{RoleResearcher, RoleWriter}, sp.roles)

	out, err := p.React(ctx, msg("Researcher_1", core.PlannerID, "facts"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPlanner_IgnoresNonMembers(t *testing.T) {
	p := newPlanner(t, newStubSpawner())
	ctx := context.Background()

	out, err := p.React(ctx, msg("Stranger_9", core.PlannerID, "hello"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, StateAwaitingUser, p.State())

	_, err = p.React(ctx, msg(core.UserID, core.PlannerID, "goal"))
	require.NoError(t, err)
	out, err = p.React(ctx, msg("Stranger_9", core.PlannerID, "hello"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPlanner_SpawnFailureIsFinal(t *testing.T) {
	sp := newStubSpawner()
	sp.err = errors.New("registry closed")
	p := newPlanner(t, sp)

	_, err := p.React(context.Background(), msg(core.UserID, core.PlannerID, "goal"))
	require.Error(t, err)
	assert.Equal(t, StateSpawned, p.State())

	sp.err = nil
	out, err := p.React(context.Background(), msg(core.UserID, core.PlannerID, "goal"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, sp.roles)
}

func TestPlanner_CustomStages(t *testing.T) {
	sp := newStubSpawner()
	p := newPlanner(t, sp, func(o *PlannerOptions) {
		o.Stages = []Stage{
			{Role: "Analyst", Instruction: "Analyse: {{.Input}}"},
			{Role: "Editor", Instruction: "Edit: {{.Input}}"},
		}
	})
	ctx := context.Background()

	out, err := p.React(ctx, msg(core.UserID, core.PlannerID, "q"))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Analyst_1", "Analyse: q"), out)

	out, err = p.React(ctx, msg("Analyst_1", core.PlannerID, "a"))
	require.NoError(t, err)
	assert.Equal(t, core.Reply("Editor_2", "Edit: a"), out)
}

func TestNewPlannerAgent_Validation(t *testing.T) {
	_, err := NewPlannerAgent(core.AgentConfig{ID: core.PlannerID}, nil)
	assert.Error(t, err)

	_, err = NewPlannerAgent(core.AgentConfig{ID: core.PlannerID}, newStubSpawner(), func(o *PlannerOptions) {
		o.Stages = []Stage{{Instruction: "x"}}
	})
	assert.Error(t, err)
}
