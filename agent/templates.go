package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/roundtable/internal/util"
)

// Role names used by the default pipeline.
const (
	RoleResearcher = "Researcher"
	RoleWriter     = "Writer"
	RoleReviewer   = "Reviewer"
)

// RoleTemplate describes how a GenericAgent with a given role behaves.
//
// Prompt is rendered with text/template over PromptData. Record lists the
// memory entries stored after every reaction, each rendered over the same data
// with Response set.
type RoleTemplate struct {
	Role   string   `yaml:"role" json:"role"`
	Prompt string   `yaml:"prompt" json:"prompt"`
	Record []string `yaml:"record" json:"record"`
}

// PromptData is the data available to prompt and record templates.
type PromptData struct {
	Role     string
	Sender   string
	Input    string
	Memory   string
	Response string
}

// Validate checks the templates for syntax errors.
func (t RoleTemplate) Validate() error {
	if err := util.Check(t.Prompt); err != nil {
		return fmt.Errorf("role %q prompt: %w", t.Role, err)
	}
	for i, rec := range t.Record {
		if err := util.Check(rec); err != nil {
			return fmt.Errorf("role %q record %d: %w", t.Role, i, err)
		}
	}
	return nil
}

// ResearcherTemplate gathers facts without speculation.
var ResearcherTemplate = RoleTemplate{
	Role: RoleResearcher,
	Prompt: "You are a researcher. Do NOT create a story or speculate.\n" +
		"Summarize key facts about: {{.Input}}. Limit to 100 words.",
	Record: []string{"Research: {{.Response}}"},
}

// WriterTemplate structures research into a short document.
var WriterTemplate = RoleTemplate{
	Role: RoleWriter,
	Prompt: "You are a technical writer. Do NOT add new information or expand beyond the research given.\n" +
		"Structure the response clearly. Limit response to 150 words.\n" +
		"Research data:\n{{.Input}}",
	Record: []string{"Draft: {{.Response}}"},
}

// ReviewerTemplate checks a document against the reviewer's memory.
var ReviewerTemplate = RoleTemplate{
	Role:   RoleReviewer,
	Prompt: "Your memory:\n{{.Memory}}\nReview this document for errors:\n{{.Input}}",
	Record: []string{"Review: {{.Response}}"},
}

// FallbackTemplate is used for every role without a dedicated template.
var FallbackTemplate = RoleTemplate{
	Prompt: "You are a helpful AI with the role: {{.Role}}.\n" +
		"Use your expertise in this role to respond appropriately.\n\n" +
		"User says: {{.Input}}\nYour response:",
	Record: []string{"Received: {{.Input}}", "Response: {{.Response}}"},
}

// Templates maps role names to templates. Lookups are case-insensitive.
type Templates map[string]RoleTemplate

// DefaultTemplates returns the researcher, writer and reviewer templates.
func DefaultTemplates() Templates {
	return Templates{}.
		With(ResearcherTemplate).
		With(WriterTemplate).
		With(ReviewerTemplate)
}

// With returns a copy of ts including t, replacing any template for t.Role.
func (ts Templates) With(t RoleTemplate) Templates {
	out := make(Templates, len(ts)+1)
	for k, v := range ts {
		out[k] = v
	}
	out[strings.ToLower(t.Role)] = t
	return out
}

// Lookup returns the template for role, or FallbackTemplate bound to role.
func (ts Templates) Lookup(role string) RoleTemplate {
	if t, ok := ts[strings.ToLower(role)]; ok {
		return t
	}
	t := FallbackTemplate
	t.Role = role
	return t
}
