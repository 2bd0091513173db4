package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/engine"
)

var (
	_ core.Observer = (*Relay)(nil)
	_ Speaker       = CommandSpeaker{}
)

type spoken struct{ text, voice string }

type recordingSpeaker struct {
	mu    sync.Mutex
	said  []spoken
	fail  bool
	gate  chan struct{}
	began chan struct{}
}

func (s *recordingSpeaker) Speak(_ context.Context, text, voice string) error {
	if s.began != nil {
		s.began <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, spoken{text, voice})
	if s.fail {
		return errors.New("no audio device")
	}
	return nil
}

func (s *recordingSpeaker) Said() []spoken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spoken(nil), s.said...)
}

func first(int) int { return 0 }

func TestRelay_AssignsVoicesAndSkipsUser(t *testing.T) {
	sp := &recordingSpeaker{}
	next := 0
	r, err := New(sp, func(o *Options) {
		o.Voices = []string{"af_heart", "bm_george"}
		o.Pick = func(n int) int { next++; return (next - 1) % n }
	})
	require.NoError(t, err)

	r.Observe(core.NewMessage(core.UserID, core.PlannerID, "goal"))
	r.Observe(core.NewMessage(core.PlannerID, "Researcher_1", "Please research: x"))
	r.Observe(core.NewMessage("Researcher_1", core.PlannerID, "facts"))
	r.Observe(core.NewMessage(core.PlannerID, "Writer_2", "draft it"))
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, []spoken{
		{"Please research: x", "af_heart"},
		{"facts", "bm_george"},
		{"draft it", "af_heart"},
	}, sp.Said())

	_, ok := r.Voice(core.UserID)
	assert.False(t, ok)
}

func TestRelay_SpawnHookAssignsVoice(t *testing.T) {
	r, err := New(&recordingSpeaker{}, func(o *Options) { o.Pick = first })
	require.NoError(t, err)
	defer r.Close(context.Background())

	hook := r.SpawnHook()
	assert.Equal(t, engine.HookOnSpawn, hook.Type())
	require.NoError(t, hook.Execute(context.Background(), &engine.HookContext{Type: engine.HookOnSpawn, AgentID: "Writer_2"}))

	v, ok := r.Voice("Writer_2")
	assert.True(t, ok)
	assert.Equal(t, EnglishVoices[0], v)
}

func TestRelay_DropsWhenQueueFull(t *testing.T) {
	sp := &recordingSpeaker{gate: make(chan struct{}), began: make(chan struct{}, 3)}
	r, err := New(sp, func(o *Options) {
		o.QueueSize = 1
		o.Pick = first
	})
	require.NoError(t, err)

	r.Observe(core.NewMessage("A_1", core.PlannerID, "one"))
	select {
	case <-sp.began:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not start speaking")
	}

	done := make(chan struct{})
	go func() {
		r.Observe(core.NewMessage("A_1", core.PlannerID, "two"))
		r.Observe(core.NewMessage("A_1", core.PlannerID, "three"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Observe blocked on a full queue")
	}

	close(sp.gate)
	require.NoError(t, r.Close(context.Background()))

	var texts []string
	for _, s := range sp.Said() {
		texts = append(texts, s.text)
	}
	assert.Equal(t, []string{"one", "two"}, texts)
}

func TestRelay_SpeakerErrorsAreSwallowed(t *testing.T) {
	sp := &recordingSpeaker{fail: true}
	r, err := New(sp)
	require.NoError(t, err)

	r.Observe(core.NewMessage("A_1", "B_2", "one"))
	r.Observe(core.NewMessage("A_1", "B_2", "two"))
	require.NoError(t, r.Close(context.Background()))

	assert.Len(t, sp.Said(), 2)
}

func TestRelay_ObserveAfterCloseIsIgnored(t *testing.T) {
	sp := &recordingSpeaker{}
	r, err := New(sp)
	require.NoError(t, err)
	require.NoError(t, r.Close(context.Background()))

	assert.NotPanics(t, func() { r.Observe(core.NewMessage("A_1", "B_2", "late")) })
	assert.Empty(t, sp.Said())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&recordingSpeaker{}, func(o *Options) { o.Voices = nil })
	assert.Error(t, err)
}

func TestCommandSpeaker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()

	t.Run("text on stdin", func(t *testing.T) {
		out := filepath.Join(dir, "stdin.txt")
		sp := CommandSpeaker{Command: "sh", Args: []string{"-c", "cat > " + out}}
		require.NoError(t, sp.Speak(context.Background(), "hello there", "af_heart"))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "hello there", string(data))
	})

	t.Run("placeholders", func(t *testing.T) {
		out := filepath.Join(dir, "args.txt")
		sp := CommandSpeaker{Command: "sh", Args: []string{"-c", `printf '%s|%s' "$1" "$2" > ` + out, "sh", "{voice}", "{text}"}}
		require.NoError(t, sp.Speak(context.Background(), "hi", "bm_lewis"))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "bm_lewis|hi", string(data))
	})

	t.Run("failure", func(t *testing.T) {
		sp := CommandSpeaker{Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}}
		err := sp.Speak(context.Background(), "x", "v")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})
}
