package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher is what the training pipeline needs from the event bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, v interface{}) error
}

// Event wraps the payload with metadata
type Event struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Nop drops every event. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) error { return nil }

// Memory keeps published events in process, for tests and the CLI.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, subject string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{
		ID:        uuid.NewString(),
		Subject:   subject,
		Data:      payload,
		Timestamp: time.Now(),
	})
	return nil
}

// Events returns a copy of the events published on subject.
func (m *Memory) Events(subject string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}
