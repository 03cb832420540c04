package wsclient

import (
	"sync"
	"time"
)

// DefaultTypingWindow is how long after the last keystroke the implicit
// "stopped typing" fires. The server is a stateless relay, so the sender
// owns the timeout.
const DefaultTypingWindow = 1500 * time.Millisecond

// typingNotifier debounces keystroke activity into at most one
// typing(true) per burst, followed by exactly one typing(false) once the
// window elapses with no further input.
type typingNotifier struct {
	mu     sync.Mutex
	window time.Duration
	send   func(peerID string, isTyping bool)
	timers map[string]*time.Timer
}

func newTypingNotifier(window time.Duration, send func(peerID string, isTyping bool)) *typingNotifier {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &typingNotifier{
		window: window,
		send:   send,
		timers: make(map[string]*time.Timer),
	}
}

// Input records one keystroke toward peerID. The first keystroke of a
// burst emits typing(true); every keystroke pushes the stop timer out.
func (t *typingNotifier) Input(peerID string) {
	t.mu.Lock()
	timer, active := t.timers[peerID]
	if active {
		timer.Reset(t.window)
		t.mu.Unlock()
		return
	}
	t.timers[peerID] = time.AfterFunc(t.window, func() {
		t.expire(peerID)
	})
	t.mu.Unlock()

	t.send(peerID, true)
}

func (t *typingNotifier) expire(peerID string) {
	t.mu.Lock()
	delete(t.timers, peerID)
	t.mu.Unlock()

	t.send(peerID, false)
}

// Stop cancels a burst early, emitting typing(false) immediately. Used
// when the user sends the message or leaves the conversation.
func (t *typingNotifier) Stop(peerID string) {
	t.mu.Lock()
	timer, active := t.timers[peerID]
	if active {
		timer.Stop()
		delete(t.timers, peerID)
	}
	t.mu.Unlock()

	if active {
		t.send(peerID, false)
	}
}
