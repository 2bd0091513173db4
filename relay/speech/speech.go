// Package speech speaks every sent message with a voice assigned to its
// sender. Playback runs on a single worker goroutine behind a bounded queue,
// so observing a message never blocks the dispatch loop.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os/exec"
	"strings"
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/engine"
	"github.com/hupe1980/roundtable/logging"
)

// EnglishVoices lists the American and British English voices of the
// Kokoro text-to-speech model.
var EnglishVoices = []string{
	// American English (female)
	"af_heart", "af_alloy", "af_aoede", "af_bella", "af_jessica",
	"af_kore", "af_nicole", "af_nova", "af_river", "af_sarah", "af_sky",
	// American English (male)
	"am_adam", "am_echo", "am_eric", "am_fenrir", "am_liam",
	"am_michael", "am_onyx", "am_puck", "am_santa",
	// British English (female)
	"bf_alice", "bf_emma", "bf_isabella", "bf_lily",
	// British English (male)
	"bm_daniel", "bm_fable", "bm_george", "bm_lewis",
}

// Speaker turns text into audible speech with the given voice.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) error
}

// SpeakerFunc adapts a function to the Speaker interface.
type SpeakerFunc func(ctx context.Context, text, voice string) error

// Speak implements Speaker.
func (f SpeakerFunc) Speak(ctx context.Context, text, voice string) error { return f(ctx, text, voice) }

// Options configures a Relay.
type Options struct {
	// Voices to pick from. Defaults to EnglishVoices.
	Voices []string
	// QueueSize bounds pending utterances; further ones are dropped.
	QueueSize int
	// Pick returns an index in [0, n). Defaults to a uniform random pick.
	Pick   func(n int) int
	Logger logging.Logger
}

type utterance struct {
	from  core.AgentID
	text  string
	voice string
}

// Relay assigns voices to agents and speaks their messages.
type Relay struct {
	speaker Speaker
	voices  []string
	pick    func(n int) int
	logger  logging.Logger

	mu       sync.Mutex
	assigned map[core.AgentID]string
	queue    chan utterance
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a relay and starts its playback worker.
func New(speaker Speaker, optFns ...func(o *Options)) (*Relay, error) {
	opts := Options{
		Voices:    EnglishVoices,
		QueueSize: 32,
		Pick:      rand.IntN,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if speaker == nil {
		return nil, fmt.Errorf("speech: speaker is required")
	}
	if len(opts.Voices) == 0 {
		return nil, fmt.Errorf("speech: at least one voice is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		speaker:  speaker,
		voices:   append([]string(nil), opts.Voices...),
		pick:     opts.Pick,
		logger:   logging.OrNoOp(opts.Logger),
		assigned: make(map[core.AgentID]string),
		queue:    make(chan utterance, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.work()
	return r, nil
}

// Assign gives id a random voice unless it already has one and returns the
// agent's voice.
func (r *Relay) Assign(id core.AgentID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignLocked(id)
}

func (r *Relay) assignLocked(id core.AgentID) string {
	if v, ok := r.assigned[id]; ok {
		return v
	}
	v := r.voices[r.pick(len(r.voices))]
	r.assigned[id] = v
	r.logger.Debug("Assigned voice", "agent", id, "voice", v)
	return v
}

// Voice returns the voice assigned to id.
func (r *Relay) Voice(id core.AgentID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.assigned[id]
	return v, ok
}

// Observe implements core.Observer. Messages from core.UserID are never
// spoken; any other sender gets a voice on its first message.
func (r *Relay) Observe(msg core.Message) {
	if msg.From == core.UserID || strings.TrimSpace(msg.Content) == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	u := utterance{from: msg.From, text: msg.Content, voice: r.assignLocked(msg.From)}
	select {
	case r.queue <- u:
	default:
		r.logger.Debug("Speech queue full, dropping utterance", "agent", msg.From)
	}
}

// SpawnHook returns an engine hook assigning voices to spawned agents.
func (r *Relay) SpawnHook() engine.Hook {
	return engine.NewFunctionHook(engine.HookOnSpawn, func(_ context.Context, hc *engine.HookContext) error {
		r.Assign(hc.AgentID)
		return nil
	})
}

func (r *Relay) work() {
	defer close(r.done)
	for u := range r.queue {
		if err := r.speaker.Speak(r.ctx, u.text, u.voice); err != nil {
			r.logger.Warn("Speech failed", "agent", u.from, "voice", u.voice, "error", err)
		}
	}
}

// Close stops accepting utterances and waits until queued ones were spoken.
// Cancel ctx to abort pending playback.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-r.done
		return ctx.Err()
	}
}

// CommandSpeaker speaks by running an external text-to-speech program. The
// placeholders {voice} and {text} in Args are replaced per utterance; when
// no argument contains {text}, the text is written to the program's stdin.
type CommandSpeaker struct {
	Command string
	Args    []string
}

// Speak implements Speaker.
func (s CommandSpeaker) Speak(ctx context.Context, text, voice string) error {
	repl := strings.NewReplacer("{voice}", voice, "{text}", text)

	args := make([]string, len(s.Args))
	textInArgs := false
	for i, a := range s.Args {
		if strings.Contains(a, "{text}") {
			textInArgs = true
		}
		args[i] = repl.Replace(a)
	}

	cmd := exec.CommandContext(ctx, s.Command, args...)
	if !textInArgs {
		cmd.Stdin = strings.NewReader(text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w: %s", s.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
