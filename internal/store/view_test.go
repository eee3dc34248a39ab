package store

import (
	"context"
	"sync"
	"testing"

	"github.com/pfrederiksen/calendar-events/internal/event"
	"github.com/pfrederiksen/calendar-events/internal/kv"
)

func TestView_ReflectsStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())
	v := s.View()

	if v.Len() != 0 || len(v.Events()) != 0 {
		t.Fatal("view of empty store is not empty")
	}

	a, _ := s.Add(ctx, standup())
	if v.Len() != 1 {
		t.Errorf("view Len() = %d, want 1", v.Len())
	}
	if got, ok := v.Get(a.ID); !ok || got.Name != "Standup" {
		t.Errorf("view Get() = %+v, %v", got, ok)
	}

	s.Delete(ctx, a.ID) // nolint:errcheck
	if len(v.Events()) != 0 {
		t.Error("view still shows deleted event")
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())

	var mu sync.Mutex
	var seen [][]event.CalendarEvent
	cancel := s.View().Subscribe(func(events []event.CalendarEvent) {
		mu.Lock()
		seen = append(seen, events)
		mu.Unlock()
	})

	a, _ := s.Add(ctx, standup())
	red := "red"
	s.Update(ctx, a.ID, event.Patch{Color: &red})      // nolint:errcheck
	s.Update(ctx, "missing", event.Patch{Color: &red}) // nolint:errcheck
	s.Delete(ctx, "missing")                           // nolint:errcheck
	s.Delete(ctx, a.ID)                                // nolint:errcheck

	mu.Lock()
	got := len(seen)
	mu.Unlock()
	if got != 3 {
		t.Fatalf("got %d notifications, want 3 (add, update, delete)", got)
	}
	if len(seen[0]) != 1 || seen[1][0].Color != "red" || len(seen[2]) != 0 {
		t.Errorf("unexpected notification contents: %+v", seen)
	}

	cancel()
	cancel()
	s.Add(ctx, standup()) // nolint:errcheck
	if len(seen) != 3 {
		t.Error("cancelled subscriber still notified")
	}
}

func TestSubscribe_CanReadStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())

	var lens []int
	s.Subscribe(func([]event.CalendarEvent) {
		lens = append(lens, s.Len())
	})

	s.Add(ctx, standup()) // nolint:errcheck
	if len(lens) != 1 || lens[0] != 1 {
		t.Errorf("subscriber saw lens %v, want [1]", lens)
	}
}

func TestSubscribe_NotCalledOnFailure(t *testing.T) {
	ctx := context.Background()
	backend := &flakyKV{Store: kv.NewMemory(), failSet: true}
	s := newTestStore(t, backend)

	called := false
	s.Subscribe(func([]event.CalendarEvent) { called = true })

	if _, err := s.Add(ctx, standup()); err == nil {
		t.Fatal("expected Add() to fail")
	}
	if called {
		t.Error("subscriber notified of a failed change")
	}
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(ctx, standup()) // nolint:errcheck
		}()
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("Len() = %d, want 20", s.Len())
	}
	reloaded := newTestStore(t, s.backend)
	if reloaded.Len() != 20 {
		t.Errorf("reloaded Len() = %d, want 20", reloaded.Len())
	}
}
