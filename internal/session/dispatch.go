package session

import "sync"

// dispatcher is the single ordered queue for outbound collaborator calls.
// Everything posted from under the registry lock runs later, in post order,
// on one goroutine, so show/hide and click/save pairs are never reordered
// and no collaborator is invoked while the lock is held. The queue is
// unbounded: a posted call may itself re-acquire the registry lock, so Post
// must never block the poster.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			close(d.done)
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
	}
}

// Post enqueues fn. Posts after Close are dropped.
func (d *dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
	d.mu.Unlock()
}

// Close drains the queue and stops the goroutine. Must not be called while
// holding the registry lock: queued calls may need it to finish.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}
