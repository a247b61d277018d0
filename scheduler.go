package mediastream

// dispatchScheduler defers stream events to the next tick of the owning
// queue. Everything enqueued before the tick is delivered together; events
// enqueued during delivery wait for the following tick.
type dispatchScheduler struct {
	queue     TaskQueue
	deliver   func(Event)
	pending   []Event
	scheduled bool
	closed    bool
}

func newDispatchScheduler(queue TaskQueue, deliver func(Event)) *dispatchScheduler {
	return &dispatchScheduler{queue: queue, deliver: deliver}
}

func (d *dispatchScheduler) enqueue(ev Event) {
	if d.closed {
		return
	}
	d.pending = append(d.pending, ev)
	if d.scheduled {
		return
	}
	d.scheduled = true
	d.queue.Post(d.fire)
}

func (d *dispatchScheduler) fire() {
	if d.closed {
		return
	}
	d.scheduled = false
	events := d.pending
	d.pending = nil

	for _, ev := range events {
		// a listener may close the stream mid-batch
		if d.closed {
			return
		}
		d.deliver(ev)
	}
}

// cancel drops pending events. A wake-up already posted becomes a no-op.
func (d *dispatchScheduler) cancel() {
	d.closed = true
	d.pending = nil
	d.scheduled = false
}

func (d *dispatchScheduler) pendingCount() int { return len(d.pending) }
