package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/finstack/docflow/internal/domain/event"
)

func testEvent() *event.Event {
	return event.NewEvent(event.TypeDocumentTransitioned, 1, map[string]interface{}{
		"action": "SUBMIT",
	})
}

func TestDispatchRunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeDocumentTransitioned, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeDocumentTransitioned, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	if err := d.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handlers ran out of order: %v", order)
	}
}

func TestDispatchSkipsOtherEventTypes(t *testing.T) {
	d := NewDispatcher()
	called := false

	d.SubscribeNamed(event.TypeDocumentOverdue, "overdue-only", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	if err := d.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("handler ran for an unrelated event type")
	}
}

func TestDispatchReturnsHandlerError(t *testing.T) {
	d := NewDispatcher()
	wantErr := errors.New("delivery failed")
	var secondRan bool

	d.SubscribeNamed(event.TypeDocumentTransitioned, "failing", func(ctx context.Context, evt *event.Event) error {
		return wantErr
	})
	d.SubscribeNamed(event.TypeDocumentTransitioned, "after", func(ctx context.Context, evt *event.Event) error {
		secondRan = true
		return nil
	})

	err := d.Dispatch(context.Background(), testEvent())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped handler error, got %v", err)
	}
	if secondRan {
		t.Error("dispatch continued past a failing handler")
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	d := NewDispatcher()

	d.SubscribeNamed(event.TypeDocumentTransitioned, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("handler bug")
	})

	err := d.Dispatch(context.Background(), testEvent())
	if err == nil {
		t.Fatal("expected an error from a panicking handler")
	}
}

func TestDispatchAsyncCompletesBeforeClose(t *testing.T) {
	d := NewDispatcher()

	var mu sync.Mutex
	count := 0
	d.SubscribeNamed(event.TypeDocumentTransitioned, "counter", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		d.DispatchAsync(context.Background(), testEvent())
	}

	// Close waits for all in-flight async handlers
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("expected 10 handled events, got %d", count)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	d := NewDispatcher()
	handled := false
	d.SubscribeNamed(event.TypeDocumentTransitioned, "late", func(ctx context.Context, evt *event.Event) error {
		handled = true
		return nil
	})

	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.Dispatch(context.Background(), testEvent()); err == nil {
		t.Error("expected error dispatching on a closed dispatcher")
	}

	d.DispatchAsync(context.Background(), testEvent())
	if handled {
		t.Error("async dispatch ran after close")
	}

	if err := d.Close(); err == nil {
		t.Error("expected error closing twice")
	}
}
