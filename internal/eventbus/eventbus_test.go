// ABOUTME: Tests for the typed event bus
// ABOUTME: Covers subscribe, publish, unsubscribe, and concurrent access

package eventbus

import (
	"sync"
	"testing"
)

func TestBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := New[string]()
	var received string

	bus.Subscribe(func(s string) {
		received = s
	})

	bus.Publish("hello")

	if received != "hello" {
		t.Errorf("received = %q, want %q", received, "hello")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	t.Parallel()

	bus := New[int]()
	var sum int
	var mu sync.Mutex

	for range 3 {
		bus.Subscribe(func(n int) {
			mu.Lock()
			sum += n
			mu.Unlock()
		})
	}

	bus.Publish(10)

	mu.Lock()
	defer mu.Unlock()
	if sum != 30 {
		t.Errorf("sum = %d, want 30", sum)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	t.Parallel()

	bus := New[string]()
	called := false

	unsub := bus.Subscribe(func(_ string) {
		called = true
	})

	unsub()
	bus.Publish("test")

	if called {
		t.Error("handler should not be called after unsubscribe")
	}
}

func TestBus_Count(t *testing.T) {
	t.Parallel()

	bus := New[int]()

	unsub1 := bus.Subscribe(func(_ int) {})
	bus.Subscribe(func(_ int) {})

	if bus.Count() != 2 {
		t.Errorf("Count() = %d, want 2", bus.Count())
	}

	unsub1()
	if bus.Count() != 1 {
		t.Errorf("Count() = %d, want 1", bus.Count())
	}
}

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	bus := New[string]()
	var order []int
	for i := range 5 {
		bus.Subscribe(func(string) { order = append(order, i) })
	}

	bus.Publish("x")

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	t.Parallel()

	bus := New[int]()
	unsub := bus.Subscribe(func(int) {})
	bus.Subscribe(func(int) {})

	unsub()
	unsub()
	if bus.Count() != 1 {
		t.Errorf("Count() = %d, want 1", bus.Count())
	}
}

func TestBus_ChanDropsWhenFull(t *testing.T) {
	t.Parallel()

	bus := New[int]()
	ch, unsub := bus.Chan(1)

	bus.Publish(1)
	bus.Publish(2)

	if got := <-ch; got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected buffered event %d", v)
	default:
	}

	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}
	bus.Publish(3)
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := New[int]()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(func(int) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(1)
		}()
	}
	wg.Wait()
}
