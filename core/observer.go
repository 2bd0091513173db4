package core

// Observer receives every message sent through a mailbox. Observers are
// notified synchronously from Send and must return promptly; a panicking
// observer is recovered by the mailbox and never fails the send.
type Observer interface {
	Observe(msg Message)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(msg Message)

// Observe implements Observer.
func (f ObserverFunc) Observe(msg Message) { f(msg) }
