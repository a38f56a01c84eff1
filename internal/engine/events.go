package engine

import "sync"

// Event is a sync lifecycle notification for UIs and status surfaces.
type Event interface{ isEvent() }

// EventStarted fires when a replay pass begins.
type EventStarted struct {
	Items int
}

// EventCompleted fires when a replay pass ends.
type EventCompleted struct {
	Processed int
	Failed    int
	Conflicts int
}

// EventConflicts fires when a pass resolved conflicts by forcing local
// values, so the UI can surface what was overwritten.
type EventConflicts struct {
	Count int
}

// EventError fires when a pass aborts before processing its batch.
type EventError struct {
	Err error
}

func (EventStarted) isEvent()   {}
func (EventCompleted) isEvent() {}
func (EventConflicts) isEvent() {}
func (EventError) isEvent()     {}

// Notifier fans events out to subscribers. Publishing never blocks: a slow
// subscriber misses events rather than stalling the engine.
type Notifier struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewNotifier returns an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a listener.
func (n *Notifier) Subscribe() <-chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Event, 16)
	n.subs = append(n.subs, ch)
	return ch
}

func (n *Notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}
