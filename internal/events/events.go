package events

import (
	"sync"
	"time"
)

// OutcomeKind classifies the result of one assignment attempt.
type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeFailed  OutcomeKind = "failed"
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome is the structured record of one template assignment attempt. The
// generator only produces these records; reporting is left to subscribers.
type Outcome struct {
	CycleID    string
	TemplateID int64
	Organizer  string
	Kind       OutcomeKind
	Reason     string
	Start      time.Time
	EventID    string
	At         time.Time
}

// OutcomeHandler reacts to an outcome record.
type OutcomeHandler func(o Outcome)

// Bus provides in-process pub/sub for outcome records.
type Bus struct {
	subscribers []OutcomeHandler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every published outcome.
func (b *Bus) Subscribe(h OutcomeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, h)
}

// Publish notifies subscribers of the outcome. Handlers run synchronously;
// the caller decides the concurrency model.
func (b *Bus) Publish(o Outcome) {
	b.mu.RLock()
	handlers := append([]OutcomeHandler(nil), b.subscribers...)
	b.mu.RUnlock()

	if o.At.IsZero() {
		o.At = time.Now()
	}

	for _, h := range handlers {
		h(o)
	}
}
