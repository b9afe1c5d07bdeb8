package identity

import (
	"context"
	"sync"

	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/google/uuid"
)

type EventKind string

const (
	EventProfileUpdated EventKind = "profile_updated"
	EventSignedOut      EventKind = "signed_out"
	EventDeleted        EventKind = "deleted"
)

// Event describes a change to a principal. For EventSignedOut an empty
// TokenHash means every session of the user.
type Event struct {
	Kind      EventKind
	UserID    uuid.UUID
	TokenHash string
	Principal *models.Principal
}

type Subscription struct {
	ID     string
	UserID uuid.UUID
	Events chan Event
}

// Broker fans identity events out to the subscriptions of the affected user.
type Broker struct {
	subs       map[string]*Subscription
	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan Event
	done       chan struct{}
	mu         sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{
		subs:       make(map[string]*Subscription),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// Run dispatches until ctx is cancelled. All open subscriptions are closed on return.
func (b *Broker) Run(ctx context.Context) {
	defer func() {
		b.mu.Lock()
		for id, sub := range b.subs {
			delete(b.subs, id)
			close(sub.Events)
		}
		b.mu.Unlock()
		close(b.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-b.register:
			b.mu.Lock()
			b.subs[sub.ID] = sub
			b.mu.Unlock()

		case sub := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.subs[sub.ID]; ok {
				delete(b.subs, sub.ID)
				close(sub.Events)
			}
			b.mu.Unlock()

		case ev := <-b.broadcast:
			b.mu.RLock()
			for _, sub := range b.subs {
				if sub.UserID != ev.UserID {
					continue
				}
				select {
				case sub.Events <- ev:
				default:
					// Subscriber buffer full, skip
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Subscribe returns nil once the broker has stopped.
func (b *Broker) Subscribe(userID uuid.UUID) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		UserID: userID,
		Events: make(chan Event, 16),
	}
	select {
	case b.register <- sub:
		return sub
	case <-b.done:
		return nil
	}
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	select {
	case b.unregister <- sub:
	case <-b.done:
	}
}

func (b *Broker) Publish(ev Event) {
	select {
	case b.broadcast <- ev:
	case <-b.done:
	}
}

func (b *Broker) subscriberCount(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if sub.UserID == userID {
			n++
		}
	}
	return n
}
