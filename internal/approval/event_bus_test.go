package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(&EventBusConfig{BufferSize: 4})

	ch, cancel := bus.Subscribe("wf-1")
	require.NotNil(t, ch)
	defer cancel()

	bus.Publish(WorkflowEvent{WorkflowID: "wf-1", Status: StatusApproved})

	select {
	case evt := <-ch:
		require.Equal(t, "wf-1", evt.WorkflowID)
		require.Equal(t, StatusApproved, evt.Status)
		require.False(t, evt.OccurredAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}

func TestEventBusIsolatesWorkflows(t *testing.T) {
	bus := NewEventBus(nil)

	ch, cancel := bus.Subscribe("wf-a")
	defer cancel()

	bus.Publish(WorkflowEvent{WorkflowID: "wf-b", Status: StatusRejected})

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusCancelClosesChannel(t *testing.T) {
	bus := NewEventBus(nil)

	ch, cancel := bus.Subscribe("wf-1")
	cancel()

	_, open := <-ch
	require.False(t, open)

	// 取消后再发布不应 panic
	bus.Publish(WorkflowEvent{WorkflowID: "wf-1"})
}

func TestEventBusDropsWhenBufferFull(t *testing.T) {
	bus := NewEventBus(&EventBusConfig{BufferSize: 1})

	ch, cancel := bus.Subscribe("wf-1")
	defer cancel()

	bus.Publish(WorkflowEvent{WorkflowID: "wf-1", ApprovalRequestID: "first"})
	bus.Publish(WorkflowEvent{WorkflowID: "wf-1", ApprovalRequestID: "dropped"})

	evt := <-ch
	require.Equal(t, "first", evt.ApprovalRequestID)

	select {
	case evt := <-ch:
		t.Fatalf("expected second event dropped, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
