package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(NewStageStartedEvent(1, "analysis", 3))

	select {
	case ev := <-ch:
		if ev.EventType() != TypeStageStarted {
			t.Errorf("EventType() = %s, want %s", ev.EventType(), TypeStageStarted)
		}
		if ev.ProjectID() != 1 {
			t.Errorf("ProjectID() = %d, want 1", ev.ProjectID())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_TypeFilter(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe(TypeStageFailed)
	bus.Publish(NewStageStartedEvent(1, "analysis", 3))
	bus.Publish(NewStageFailedEvent(1, "analysis", "all sub-tasks failed"))

	select {
	case ev := <-ch:
		if ev.EventType() != TypeStageFailed {
			t.Errorf("filtered subscriber got %s", ev.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	_ = bus.Subscribe()
	for i := 0; i < 10; i++ {
		bus.Publish(NewTestOutcomeEvent(1, int64(i), "passed", uint64(i)))
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected dropped events with full buffer")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	// Channel must be closed after unsubscribe.
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(NewProjectResetEvent(1))
}

func TestBus_CloseIdempotent(t *testing.T) {
	bus := New(10)
	bus.Close()
	bus.Close()
	bus.Publish(NewProjectCreatedEvent(1, "demo"))
}
