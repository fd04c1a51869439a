package runtime

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"group-chat/domain/event"
)

func membershipEvent(groupID uuid.UUID, userID string) event.MembershipChanged {
	return event.MembershipChanged{
		Group:  groupID,
		UserID: userID,
		Change: event.ChangeJoined,
		At:     time.Now().UTC(),
	}
}

func TestBus_PublishOrderPerChannel(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelError), 16)
	groupID := uuid.New()

	sub := bus.Subscribe(groupID, "viewer-1")

	// When three events are published on the channel
	bus.Publish(membershipEvent(groupID, "u1"))
	bus.Publish(membershipEvent(groupID, "u2"))
	bus.Publish(membershipEvent(groupID, "u3"))

	// Then the subscriber observes them in publish order
	for _, want := range []string{"u1", "u2", "u3"} {
		got := <-sub.Events()
		req.Equal(want, got.(event.MembershipChanged).UserID)
	}
}

func TestBus_NoReplayForLateSubscriber(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelError), 16)
	groupID := uuid.New()

	// Given an event published before anyone subscribed
	bus.Publish(membershipEvent(groupID, "u1"))

	// When a subscriber attaches afterwards
	sub := bus.Subscribe(groupID, "viewer-1")

	// Then it never observes the earlier event
	req.Empty(sub.Events())
}

func TestBus_ChannelsAreIsolated(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelError), 16)
	groupA := uuid.New()
	groupB := uuid.New()

	subA := bus.Subscribe(groupA, "viewer-1")
	subB := bus.Subscribe(groupB, "viewer-1")

	bus.Publish(membershipEvent(groupA, "u1"))

	req.Len(subA.Events(), 1)
	req.Empty(subB.Events())
}

func TestBus_DropOnFullNeverBlocksPublisher(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelError), 1)
	groupID := uuid.New()

	sub := bus.Subscribe(groupID, "slow-viewer")

	// When more events are published than the queue holds, the
	// publisher returns immediately and the overflow is dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(membershipEvent(groupID, "u1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber queue")
	}
	req.Len(sub.Events(), 1)
}

func TestBus_Unsubscribe(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelError), 16)
	groupID := uuid.New()

	sub := bus.Subscribe(groupID, "viewer-1")
	bus.Unsubscribe(groupID, "viewer-1")

	// Publishing after the detach must not panic or deliver
	bus.Publish(membershipEvent(groupID, "u1"))

	// And the subscriber's queue is closed
	_, open := <-sub.Events()
	req.False(open)
}

func TestBus_ResubscribeReplacesPreviousAttachment(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelError), 16)
	groupID := uuid.New()

	first := bus.Subscribe(groupID, "viewer-1")
	second := bus.Subscribe(groupID, "viewer-1")

	bus.Publish(membershipEvent(groupID, "u1"))

	// The replaced attachment is closed, the new one receives
	_, open := <-first.Events()
	req.False(open)
	req.Len(second.Events(), 1)
}
