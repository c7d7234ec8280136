package library

import (
	"fmt"
	"sync"
)

// EventKind identifies a notification channel.
type EventKind int

const (
	EventBorrowed EventKind = iota
	EventReturned
	EventLowStock
)

func (k EventKind) String() string {
	switch k {
	case EventBorrowed:
		return "borrowed"
	case EventReturned:
		return "returned"
	case EventLowStock:
		return "low-stock"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func parseEventKind(s string) (EventKind, error) {
	switch s {
	case "borrowed":
		return EventBorrowed, nil
	case "returned":
		return EventReturned, nil
	case "low-stock":
		return EventLowStock, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Listener receives the formatted notification message.
type Listener func(message string)

// Notifier keeps the listeners registered for each event kind.
// Listeners run synchronously on the publishing goroutine, in the order they
// were subscribed. A panicking listener propagates to the publisher.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[EventKind][]Listener
}

func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[EventKind][]Listener)}
}

// Subscribe registers l for kind.
func (n *Notifier) Subscribe(kind EventKind, l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[kind] = append(n.listeners[kind], l)
}

// Publish delivers message to every listener of kind.
func (n *Notifier) Publish(kind EventKind, message string) {
	n.mu.RLock()
	ls := n.listeners[kind]
	n.mu.RUnlock()

	for _, l := range ls {
		l(message)
	}
}
