package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// PostgresStore persists events in the domain_events table.
type PostgresStore struct {
	DB db.DBTX
}

// InsertDomainEvent implements EventStore.
func (s PostgresStore) InsertDomainEvent(ctx context.Context, ev Event) (Event, error) {
	const q = `INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id::text, topic, aggregate_id, payload, occurred_at`
	var out Event
	var payload []byte
	err := s.DB.QueryRow(ctx, q, ev.Topic, ev.AggregateID, []byte(ev.Payload)).
		Scan(&out.ID, &out.Topic, &out.AggregateID, &payload, &out.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	out.Payload = payload
	return out, nil
}

// MemoryStore keeps events in process.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

// NewMemoryStore returns an empty event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// InsertDomainEvent implements EventStore.
func (s *MemoryStore) InsertDomainEvent(_ context.Context, ev Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = uuid.NewString()
	ev.OccurredAt = s.now()
	s.events = append(s.events, ev)
	return ev, nil
}

// Events returns the recorded events, optionally filtered by topic.
func (s *MemoryStore) Events(topic string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if topic == "" || ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}
