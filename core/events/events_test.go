package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testLogger returns a disabled logger for tests
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type recordingObserver struct {
	mu        sync.Mutex
	published map[string]int
	failed    map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{published: map[string]int{}, failed: map[string]int{}}
}

func (o *recordingObserver) EventPublished(name string, subscribers int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[name]++
}

func (o *recordingObserver) HandlerFailed(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[name]++
}

// TestNewBus verifies that NewBus creates a properly initialized Bus
func TestNewBus(t *testing.T) {
	bus := NewBus(testLogger())

	if bus == nil {
		t.Fatal("NewBus returned nil")
	}
	if bus.handlers == nil {
		t.Error("handlers map not initialized")
	}
	if len(bus.handlers) != 0 {
		t.Error("handlers map should be empty on creation")
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	// Must not panic.
	bus.Publish(context.Background(), "files", FileSelectedPayload{FileID: "f1"})
	bus.Publish(context.Background(), "files", nil)
}

// TestPublish_OrderAndSynchrony covers the file:selected scenario: every
// subscriber runs exactly once, in order, before Publish returns.
func TestPublish_OrderAndSynchrony(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus := NewBus(testLogger(), WithClock(func() time.Time { return ts }))

	var calls []int
	for i := 1; i <= 3; i++ {
		i := i
		Subscribe(bus, func(ctx context.Context, ev Event[FileSelectedPayload]) error {
			calls = append(calls, i)
			if ev.Payload.FileID != "f1" || ev.Payload.FileName != "a.pdf" {
				t.Errorf("unexpected payload %+v", ev.Payload)
			}
			if ev.Name != FileSelected {
				t.Errorf("event name = %s, want %s", ev.Name, FileSelected)
			}
			if ev.Source != "files-tab" {
				t.Errorf("source = %q", ev.Source)
			}
			if !ev.Timestamp.Equal(ts) {
				t.Errorf("timestamp = %v, want %v", ev.Timestamp, ts)
			}
			return nil
		})
	}

	bus.Publish(context.Background(), "files-tab", FileSelectedPayload{
		FileID:    "f1",
		FileName:  "a.pdf",
		Timestamp: ts,
	})

	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	for i, got := range calls {
		if got != i+1 {
			t.Errorf("call %d = handler %d, want handler %d", i, got, i+1)
		}
	}
}

func TestPublish_OnlyMatchingEvent(t *testing.T) {
	bus := NewBus(testLogger())

	called := false
	Subscribe(bus, func(ctx context.Context, ev Event[FileOpenedPayload]) error {
		called = true
		return nil
	})

	bus.Publish(context.Background(), "x", FileSelectedPayload{FileID: "f1"})

	if called {
		t.Error("file:opened handler called for file:selected")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(testLogger())

	calls := 0
	unsub := Subscribe(bus, func(ctx context.Context, ev Event[SearchSubmittedPayload]) error {
		calls++
		return nil
	})

	unsub()
	bus.Publish(context.Background(), "search", SearchSubmittedPayload{Query: "q"})

	if calls != 0 {
		t.Errorf("handler invoked %d times after unsubscribe", calls)
	}
	if bus.HasSubscribers(SearchSubmitted) {
		t.Error("HasSubscribers should be false after unsubscribe")
	}

	// Second call is a no-op.
	unsub()
}

func TestUnsubscribe_LeavesSiblings(t *testing.T) {
	bus := NewBus(testLogger())

	var calls []string
	unsubA := Subscribe(bus, func(ctx context.Context, ev Event[HubSelectedPayload]) error {
		calls = append(calls, "a")
		return nil
	})
	Subscribe(bus, func(ctx context.Context, ev Event[HubSelectedPayload]) error {
		calls = append(calls, "b")
		return nil
	})

	unsubA()
	unsubA()
	bus.Publish(context.Background(), "hub", HubSelectedPayload{HubID: "h1"})

	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want [b]", calls)
	}
	if n := bus.SubscriberCount(HubSelected); n != 1 {
		t.Errorf("SubscriberCount = %d, want 1", n)
	}
}

func TestPublish_HandlerFailureIsolated(t *testing.T) {
	obs := newRecordingObserver()
	bus := NewBus(testLogger(), WithObserver(obs))

	var calls []string
	Subscribe(bus, func(ctx context.Context, ev Event[NotificationShowPayload]) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	Subscribe(bus, func(ctx context.Context, ev Event[NotificationShowPayload]) error {
		calls = append(calls, "second")
		panic("handler exploded")
	})
	Subscribe(bus, func(ctx context.Context, ev Event[NotificationShowPayload]) error {
		calls = append(calls, "third")
		return nil
	})

	bus.Publish(context.Background(), "shell", NotificationShowPayload{Message: "hi", Severity: SeverityInfo})

	want := []string{"first", "second", "third"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
	if obs.failed[string(NotificationShow)] != 2 {
		t.Errorf("failed count = %d, want 2", obs.failed[string(NotificationShow)])
	}
	if obs.published[string(NotificationShow)] != 1 {
		t.Errorf("published count = %d, want 1", obs.published[string(NotificationShow)])
	}
}

func TestPublish_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus(testLogger())

	var second Unsubscribe
	secondCalled := false
	Subscribe(bus, func(ctx context.Context, ev Event[FilterRemovedPayload]) error {
		second()
		return nil
	})
	second = Subscribe(bus, func(ctx context.Context, ev Event[FilterRemovedPayload]) error {
		secondCalled = true
		return nil
	})

	bus.Publish(context.Background(), "filters", FilterRemovedPayload{FilterID: "f"})

	if secondCalled {
		t.Error("handler unsubscribed earlier in the same publish should not run")
	}
}

func TestPublish_SubscribeFromHandler(t *testing.T) {
	bus := NewBus(testLogger())

	lateCalls := 0
	Subscribe(bus, func(ctx context.Context, ev Event[TabActivatedPayload]) error {
		Subscribe(bus, func(ctx context.Context, ev Event[TabActivatedPayload]) error {
			lateCalls++
			return nil
		})
		return nil
	})

	bus.Publish(context.Background(), "shell", TabActivatedPayload{TabID: "files"})
	if lateCalls != 0 {
		t.Errorf("subscriber added during publish ran in the same publish")
	}

	bus.Publish(context.Background(), "shell", TabActivatedPayload{TabID: "files"})
	if lateCalls != 1 {
		t.Errorf("lateCalls = %d, want 1", lateCalls)
	}
}

func TestSubscribeToMultiple(t *testing.T) {
	bus := NewBus(testLogger())

	var got []Name
	unsub := bus.SubscribeToMultiple(
		On(func(ctx context.Context, ev Event[SelectionChangedPayload]) error {
			got = append(got, ev.Name)
			return nil
		}),
		On(func(ctx context.Context, ev Event[SelectionClearedPayload]) error {
			got = append(got, ev.Name)
			return nil
		}),
	)

	bus.Publish(context.Background(), "grid", SelectionChangedPayload{SelectedIDs: []string{"a"}})
	bus.Publish(context.Background(), "grid", SelectionClearedPayload{PreviousCount: 1})

	if len(got) != 2 || got[0] != SelectionChanged || got[1] != SelectionCleared {
		t.Fatalf("got %v", got)
	}

	unsub()
	unsub()
	bus.Publish(context.Background(), "grid", SelectionChangedPayload{})
	bus.Publish(context.Background(), "grid", SelectionClearedPayload{})

	if len(got) != 2 {
		t.Errorf("handlers still active after combined unsubscribe: %v", got)
	}
	if bus.HasSubscribers(SelectionChanged) || bus.HasSubscribers(SelectionCleared) {
		t.Error("subscriptions leaked")
	}
}

func TestBindingName(t *testing.T) {
	b := On(func(ctx context.Context, ev Event[BulkActionCompletedPayload]) error { return nil })
	if b.Name() != BulkActionCompleted {
		t.Errorf("Name() = %s", b.Name())
	}
}

func TestPublish_Concurrent(t *testing.T) {
	bus := NewBus(testLogger())

	var mu sync.Mutex
	count := 0
	Subscribe(bus, func(ctx context.Context, ev Event[FileUploadedPayload]) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), "upload", FileUploadedPayload{FileID: "x"})
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}
