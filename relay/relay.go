// Package relay contains observers that forward mailbox traffic out of the
// process. Sub-packages hold the websocket hub (ws) and the speech relay
// (speech); this package holds the transport-independent pieces.
package relay

import (
	"slices"
	"sync"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// NewLogObserver returns an observer writing every sent message to logger
// at info level.
func NewLogObserver(logger logging.Logger) core.Observer {
	logger = logging.OrNoOp(logger)
	return core.ObserverFunc(func(msg core.Message) {
		logger.Info("Message sent", "id", msg.ID, "from", msg.From, "to", msg.To, "content", msg.Content)
	})
}

// Fanout notifies a dynamic set of observers. Observers can be added and
// removed while messages flow, which lets long-lived consumers (a websocket
// hub, a speech relay) attach to sessions that come and go.
type Fanout struct {
	mu        sync.RWMutex
	next      int
	observers map[int]core.Observer
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{observers: make(map[int]core.Observer)}
}

// Add registers obs and returns a function removing it again.
func (f *Fanout) Add(obs core.Observer) (remove func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.observers[id] = obs
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers, id)
	}
}

// Len returns the number of registered observers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.observers)
}

// Observe implements core.Observer. Observers are notified in registration
// order; a panicking observer does not keep the others from being notified.
func (f *Fanout) Observe(msg core.Message) {
	f.mu.RLock()
	ids := make([]int, 0, len(f.observers))
	for id := range f.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	observers := make([]core.Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, f.observers[id])
	}
	f.mu.RUnlock()

	var panicked any
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil && panicked == nil {
					panicked = r
				}
			}()
			obs.Observe(msg)
		}()
	}
	if panicked != nil {
		// the mailbox recovers and logs it
		panic(panicked)
	}
}
