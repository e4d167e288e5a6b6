// Package raceevents fans race updates out to everyone watching a race.
//
// Subscribers get events best-effort: a slow subscriber drops events rather
// than blocking publishers, and clients recover by re-reading the race.
package raceevents

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	TypeCreated   = "race_created"
	TypeJoined    = "participant_joined"
	TypeStarted   = "race_started"
	TypeCompleted = "game_completed"
	TypeFinished  = "participant_finished"
	TypeRaceDone  = "race_completed"
	TypeDeleted   = "race_deleted"
)

// Event is one race update. Seq is the id of the persisted event row, so
// clients can resume polling from it.
type Event struct {
	Seq     uint            `json:"seq"`
	RaceID  string          `json:"raceId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Broker delivers events per race id.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of events for raceID and a function that
	// ends the subscription and closes the channel.
	Subscribe(ctx context.Context, raceID string) (<-chan Event, func(), error)
	Close() error
}

const subscriberBuffer = 16

// MemoryBroker delivers events inside one process.
type MemoryBroker struct {
	mu     sync.Mutex
	groups map[string]map[chan Event]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{groups: make(map[string]map[chan Event]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.groups[event.RaceID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, raceID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}, nil
	}
	group := b.groups[raceID]
	if group == nil {
		group = make(map[chan Event]struct{})
		b.groups[raceID] = group
	}
	group[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.groups[raceID][ch]; !ok {
				return
			}
			delete(b.groups[raceID], ch)
			if len(b.groups[raceID]) == 0 {
				delete(b.groups, raceID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers returns how many subscriptions raceID has.
func (b *MemoryBroker) Subscribers(raceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups[raceID])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for raceID, group := range b.groups {
		for ch := range group {
			close(ch)
		}
		delete(b.groups, raceID)
	}
	return nil
}
