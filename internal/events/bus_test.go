package events

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishToTopic(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 8)
	progressCh := bus.Subscribe(TopicProgress, 8)

	bus.Publish(TopicTask, TaskReadyEvent{ID: "T1"})

	ev := recv(t, taskCh)
	if ev.EventType() != EventTypeTaskReady || ev.TaskID() != "T1" {
		t.Errorf("received %v", ev)
	}

	select {
	case ev := <-progressCh:
		t.Errorf("progress subscriber received task event %v", ev)
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(8)
	bus.Publish(TopicTask, TaskReadyEvent{ID: "T1"})
	bus.Publish(TopicProgress, ProgressEvent{Total: 3})

	first := recv(t, all)
	second := recv(t, all)
	if first.EventType() != EventTypeTaskReady {
		t.Errorf("first event = %q", first.EventType())
	}
	if second.EventType() != EventTypeProgress {
		t.Errorf("second event = %q", second.EventType())
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)
	// Fill the buffer and keep publishing; the publisher must not stall.
	for i := 0; i < 10; i++ {
		bus.Publish(TopicTask, TaskReadyEvent{ID: "T1"})
	}

	ev := recv(t, ch)
	if ev.TaskID() != "T1" {
		t.Errorf("received %v", ev)
	}
	select {
	case ev, ok := <-ch:
		if ok {
			t.Errorf("buffer of one held a second event: %v", ev)
		}
	default:
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 1)

	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel not closed")
	}

	// Publishing after close is a no-op, and late subscribers get a closed
	// channel straight back.
	bus.Publish(TopicTask, TaskReadyEvent{ID: "T1"})
	late := bus.Subscribe(TopicTask, 1)
	if _, ok := <-late; ok {
		t.Error("late subscriber channel not closed")
	}
}
