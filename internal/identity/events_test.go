package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, cancel
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroker_DeliversOnlyToMatchingUser(t *testing.T) {
	b, _ := startBroker(t)
	alice, bob := uuid.New(), uuid.New()

	subA := b.Subscribe(alice)
	subB := b.Subscribe(bob)
	require.NotNil(t, subA)
	require.NotNil(t, subB)

	b.Publish(Event{Kind: EventSignedOut, UserID: alice})

	ev := receive(t, subA.Events)
	assert.Equal(t, EventSignedOut, ev.Kind)

	select {
	case <-subB.Events:
		t.Fatal("bob should not receive alice's event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b, _ := startBroker(t)
	userID := uuid.New()

	sub := b.Subscribe(userID)
	require.NotNil(t, sub)
	assert.Eventually(t, func() bool { return b.subscriberCount(userID) == 1 }, time.Second, 5*time.Millisecond)

	b.Unsubscribe(sub)

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Equal(t, 0, b.subscriberCount(userID))
}

func TestBroker_StopClosesSubscriptions(t *testing.T) {
	b, cancel := startBroker(t)

	sub := b.Subscribe(uuid.New())
	require.NotNil(t, sub)

	cancel()

	_, ok := <-sub.Events
	assert.False(t, ok)

	assert.Nil(t, b.Subscribe(uuid.New()))
	b.Unsubscribe(sub)
	b.Publish(Event{Kind: EventDeleted})
}

func TestBroker_UnsubscribeNil(t *testing.T) {
	b, _ := startBroker(t)
	assert.NotPanics(t, func() { b.Unsubscribe(nil) })
}
