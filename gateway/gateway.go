// Package gateway wraps a model.Model into the never-failing text generation
// service agents use. Provider failures become error text, hidden reasoning
// spans are stripped, and an optional limiter caps calls per session.
package gateway

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/model"
)

var thinkSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Sanitize removes every <think>...</think> span, including spans exposed by
// removing an inner one, and trims surrounding whitespace. It is idempotent.
func Sanitize(text string) string {
	for thinkSpan.MatchString(text) {
		text = thinkSpan.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Options configures a Gateway.
type Options struct {
	Logger logging.Logger
	// Limiter caps the number of generations. Nil means unlimited.
	Limiter *core.CallLimiter
	// OnGenerate observes every provider call, e.g. for metrics.
	OnGenerate func(info model.Info, dur time.Duration, err error)
}

// Gateway is safe for concurrent use if the wrapped model is.
type Gateway struct {
	model model.Model
	opts  Options
}

// New creates a gateway over m.
func New(m model.Model, optFns ...func(o *Options)) *Gateway {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Gateway{model: m, opts: opts}
}

// Model returns the wrapped model.
func (g *Gateway) Model() model.Model { return g.model }

// WithLimiter returns a copy of the gateway counting calls against l.
func (g *Gateway) WithLimiter(l *core.CallLimiter) *Gateway {
	cp := *g
	cp.opts.Limiter = l
	return &cp
}

// Generate calls the model and never fails. HTTP status failures are
// rendered as "Error: <status> - <body>", every other failure as
// "Error: <err>".
func (g *Gateway) Generate(ctx context.Context, prompt string) string {
	if g.opts.Limiter != nil {
		if err := g.opts.Limiter.Increment(); err != nil {
			g.opts.Logger.Warn("Generation limit reached", "error", err.Error())
			return "Error: " + err.Error()
		}
	}

	info := g.model.Info()
	start := time.Now()
	text, err := g.model.Generate(ctx, prompt)
	dur := time.Since(start)

	logging.LogGeneration(g.opts.Logger, info.Name, dur, err)
	if g.opts.OnGenerate != nil {
		g.opts.OnGenerate(info, dur, err)
	}

	if err != nil {
		return ErrorText(err)
	}
	return text
}

// Respond is Sanitize(Generate(ctx, prompt)). It implements agent.Responder.
func (g *Gateway) Respond(ctx context.Context, prompt string) string {
	return Sanitize(g.Generate(ctx, prompt))
}

// ErrorText renders a generation error as reply text.
func ErrorText(err error) string {
	if se, ok := model.AsStatusError(err); ok {
		return fmt.Sprintf("Error: %d - %s", se.StatusCode, se.Body)
	}
	return "Error: " + err.Error()
}
