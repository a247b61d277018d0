package mediastream

import (
	"reflect"
	"testing"
)

func TestDispatchScheduler_CoalescesIntoOneWakeUp(t *testing.T) {
	q := &manualQueue{}
	var got []EventType
	d := newDispatchScheduler(q, func(ev Event) { got = append(got, ev.Type) })

	d.enqueue(Event{Type: EventAddTrack})
	d.enqueue(Event{Type: EventActive})
	d.enqueue(Event{Type: EventRemoveTrack})

	if n := len(q.tasks); n != 1 {
		t.Fatalf("posted wake-ups = %d, want 1", n)
	}
	if len(got) != 0 {
		t.Fatalf("delivered before the wake-up: %v", got)
	}

	q.step()
	want := []EventType{EventAddTrack, EventActive, EventRemoveTrack}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
	if d.pendingCount() != 0 {
		t.Errorf("pendingCount() = %d, want 0", d.pendingCount())
	}
}

func TestDispatchScheduler_EnqueueDuringDeliveryWaitsForNextPass(t *testing.T) {
	q := &manualQueue{}
	var got []EventType
	var d *dispatchScheduler
	d = newDispatchScheduler(q, func(ev Event) {
		got = append(got, ev.Type)
		if ev.Type == EventAddTrack {
			d.enqueue(Event{Type: EventInactive})
		}
	})

	d.enqueue(Event{Type: EventAddTrack})
	d.enqueue(Event{Type: EventActive})

	q.step()
	if want := []EventType{EventAddTrack, EventActive}; !reflect.DeepEqual(got, want) {
		t.Fatalf("first pass = %v, want %v", got, want)
	}
	if d.pendingCount() != 1 {
		t.Fatalf("pendingCount() = %d, want 1", d.pendingCount())
	}

	q.step()
	if want := []EventType{EventAddTrack, EventActive, EventInactive}; !reflect.DeepEqual(got, want) {
		t.Errorf("second pass = %v, want %v", got, want)
	}
}

func TestDispatchScheduler_Cancel(t *testing.T) {
	q := &manualQueue{}
	delivered := 0
	d := newDispatchScheduler(q, func(Event) { delivered++ })

	d.enqueue(Event{Type: EventActive})
	d.cancel()
	d.enqueue(Event{Type: EventInactive})
	q.drain()

	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
	if d.pendingCount() != 0 {
		t.Errorf("pendingCount() = %d, want 0", d.pendingCount())
	}
	if len(q.tasks) != 0 {
		t.Errorf("queued tasks = %d, want 0", len(q.tasks))
	}
}

func TestDispatchScheduler_ReschedulesAfterFire(t *testing.T) {
	q := &manualQueue{}
	delivered := 0
	d := newDispatchScheduler(q, func(Event) { delivered++ })

	d.enqueue(Event{Type: EventActive})
	q.step()
	d.enqueue(Event{Type: EventInactive})

	if n := len(q.tasks); n != 1 {
		t.Fatalf("posted wake-ups = %d, want 1", n)
	}
	q.step()
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}
