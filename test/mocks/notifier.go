package mocks

import (
	"sync"
	"time"

	"whatsam/internal/domain/entity"
)

// RecordingNotifier captures emitted events so tests can assert on
// webhook traffic without a backend.
type RecordingNotifier struct {
	mu       sync.Mutex
	sessions []entity.SessionStatusEvent
	messages []entity.MessageStatusEvent
	signal   chan struct{}
}

// NewRecordingNotifier creates an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{signal: make(chan struct{}, 128)}
}

func (n *RecordingNotifier) NotifySessionStatus(event entity.SessionStatusEvent) {
	n.mu.Lock()
	n.sessions = append(n.sessions, event)
	n.mu.Unlock()
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

func (n *RecordingNotifier) NotifyMessageStatus(event entity.MessageStatusEvent) {
	n.mu.Lock()
	n.messages = append(n.messages, event)
	n.mu.Unlock()
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// SessionEvents returns a copy of the captured session events.
func (n *RecordingNotifier) SessionEvents() []entity.SessionStatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]entity.SessionStatusEvent, len(n.sessions))
	copy(out, n.sessions)
	return out
}

// CountType returns how many events of the given type were captured.
func (n *RecordingNotifier) CountType(t entity.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, evt := range n.sessions {
		if evt.Type == t {
			count++
		}
	}
	return count
}

// WaitFor blocks until an event of the given type for the session shows
// up, or the timeout passes. Returns the first match.
func (n *RecordingNotifier) WaitFor(sessionID string, t entity.EventType, timeout time.Duration) (entity.SessionStatusEvent, bool) {
	deadline := time.After(timeout)
	for {
		n.mu.Lock()
		for _, evt := range n.sessions {
			if evt.SessionID == sessionID && evt.Type == t {
				n.mu.Unlock()
				return evt, true
			}
		}
		n.mu.Unlock()

		select {
		case <-deadline:
			return entity.SessionStatusEvent{}, false
		case <-n.signal:
		case <-time.After(10 * time.Millisecond):
		}
	}
}
