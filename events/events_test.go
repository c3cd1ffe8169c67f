package events

import (
	"testing"
	"time"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	id, eventChan := eventBus.Subscribe()

	if count := eventBus.GetTotalSubscriptions(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}

	event := NewSlotVerified(42, [32]byte{1}, 3, 10*time.Millisecond)

	// Publish event in goroutine to avoid blocking
	go func() {
		eventBus.Publish(event)
	}()

	// Wait for event
	select {
	case receivedEvent := <-eventChan:
		if receivedEvent.Type() != EventSlotVerified {
			t.Errorf("Expected SlotVerified, got %s", receivedEvent.Type())
		}
		if receivedEvent.Slot() != 42 {
			t.Errorf("Expected slot 42, got %d", receivedEvent.Slot())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Test unsubscribe
	if !eventBus.Unsubscribe(id) {
		t.Error("Expected unsubscribe to succeed")
	}

	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestReplayEvents(t *testing.T) {
	started := NewRunStarted("run-1", 10, 100)
	if started.Type() != EventRunStarted {
		t.Errorf("Expected RunStarted, got %s", started.Type())
	}
	if started.Slot() != 10 || started.TargetSlot() != 100 {
		t.Errorf("Unexpected run bounds: %d..%d", started.Slot(), started.TargetSlot())
	}

	txIdx := 7
	div := NewDivergenceFound(55, [32]byte{0xaa}, [32]byte{0xbb}, &txIdx)
	if div.Type() != EventDivergenceFound {
		t.Errorf("Expected DivergenceFound, got %s", div.Type())
	}
	if div.TxIndex() == nil || *div.TxIndex() != 7 {
		t.Errorf("Expected tx index 7, got %v", div.TxIndex())
	}

	fault := NewExecutionFault(56, 2, "tx-hash", "insufficient balance")
	if fault.Reason() != "insufficient balance" {
		t.Errorf("Expected reason 'insufficient balance', got %s", fault.Reason())
	}

	saved := NewCheckpointSaved(60, "/tmp/snapshot-full-60.json", "full")
	if saved.Type() != EventCheckpointSaved || saved.Kind() != "full" {
		t.Errorf("Unexpected checkpoint event: %s %s", saved.Type(), saved.Kind())
	}

	finished := NewRunFinished("run-1", "succeeded", 100, time.Second)
	if finished.Status() != "succeeded" || finished.Slot() != 100 {
		t.Errorf("Unexpected finish event: %s at %d", finished.Status(), finished.Slot())
	}
}

func TestMultipleSubscribers(t *testing.T) {
	eventBus := NewEventBus()

	id1, eventChan1 := eventBus.Subscribe()
	id2, eventChan2 := eventBus.Subscribe()

	if count := eventBus.GetTotalSubscriptions(); count != 2 {
		t.Errorf("Expected 2 subscribers, got %d", count)
	}

	event := NewSlotSkipped(13)
	eventBus.Publish(event)

	// Both subscribers should receive the event
	for i, ch := range []chan ReplayEvent{eventChan1, eventChan2} {
		select {
		case receivedEvent := <-ch:
			if receivedEvent.Slot() != 13 {
				t.Errorf("Expected slot 13, got %d", receivedEvent.Slot())
			}
		case <-time.After(1 * time.Second):
			t.Errorf("Timeout waiting for event on channel %d", i+1)
		}
	}

	eventBus.Unsubscribe(id1)
	eventBus.Unsubscribe(id2)

	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestPublishSkipsFullChannel(t *testing.T) {
	eventBus := NewEventBus()
	id, ch := eventBus.Subscribe()
	defer eventBus.Unsubscribe(id)

	// Fill the buffer without draining; publishes beyond capacity must
	// not block the publisher.
	for i := 0; i < cap(ch)+10; i++ {
		eventBus.Publish(NewSlotVerified(uint64(i), [32]byte{}, 0, 0))
	}

	if len(ch) != cap(ch) {
		t.Errorf("Expected a full channel of %d events, got %d", cap(ch), len(ch))
	}
}

func TestLosslessSubscriberReceivesEveryEvent(t *testing.T) {
	eventBus := NewEventBus()
	id, ch := eventBus.SubscribeLossless()

	const total = 500 // well past the channel buffer

	received := make(chan int)
	go func() {
		count := 0
		for range ch {
			count++
		}
		received <- count
	}()

	for i := 0; i < total; i++ {
		eventBus.Publish(NewSlotVerified(uint64(i), [32]byte{}, 1, 0))
	}
	eventBus.Unsubscribe(id)

	select {
	case count := <-received:
		if count != total {
			t.Errorf("Expected %d events delivered, got %d", total, count)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout draining lossless subscriber")
	}
}
