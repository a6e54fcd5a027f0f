package stream

import "sync"

// dispatcher runs queued callbacks one at a time, in order. A worker
// goroutine exists only while the queue is non-empty, so an idle client
// holds no goroutine. Enqueue never blocks, so it is safe to call while
// holding the client lock or from inside a callback.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.queue = append(d.queue, fn)
	if !d.running {
		d.running = true
		go d.run()
	}
}

// stop drops later callbacks. Already queued ones still run.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

func (d *dispatcher) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.running
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		if len(batch) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}
