package vcache

import (
	"log/slog"
	"sync"
)

// notifier is the per-store publish/subscribe channel. Publishing appends to
// an unbounded queue drained by a single delivery goroutine, so emitters are
// never blocked by subscriber code and delivery always happens after the
// triggering call has yielded control.
type notifier[N comparable, O any, H comparable] struct {
	logger *slog.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	subs       map[EventKind]map[uint64]*subscriber[N, O, H]
	nextID     uint64
	queue      []Event[N, O, H]
	delivering bool
	closed     bool

	stopped chan struct{}
}

type subscriber[N comparable, O any, H comparable] struct {
	fn   Handler[N, O, H]
	once bool
}

func newNotifier[N comparable, O any, H comparable](logger *slog.Logger) *notifier[N, O, H] {
	n := &notifier[N, O, H]{
		logger:  logger,
		subs:    make(map[EventKind]map[uint64]*subscriber[N, O, H]),
		stopped: make(chan struct{}),
	}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

// subscribe registers a handler for one event kind. The returned cancel
// func removes it; cancelling twice is harmless.
func (n *notifier[N, O, H]) subscribe(kind EventKind, fn Handler[N, O, H], once bool) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	if n.subs[kind] == nil {
		n.subs[kind] = make(map[uint64]*subscriber[N, O, H])
	}
	n.subs[kind][id] = &subscriber[N, O, H]{fn: fn, once: once}

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[kind], id)
	}
}

// publish enqueues an event for asynchronous delivery. Events published
// after close are dropped.
func (n *notifier[N, O, H]) publish(ev Event[N, O, H]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, ev)
	n.cond.Broadcast()
}

// flush blocks until every event queued so far has been delivered.
func (n *notifier[N, O, H]) flush() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.queue) > 0 || n.delivering {
		n.cond.Wait()
	}
}

// close drains the queue and stops the delivery goroutine.
func (n *notifier[N, O, H]) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.stopped
		return
	}
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.stopped
}

func (n *notifier[N, O, H]) run() {
	defer close(n.stopped)

	n.mu.Lock()
	for {
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}

		ev := n.queue[0]
		n.queue = n.queue[1:]

		// Snapshot handlers for this kind; one-shots are removed
		// before delivery so they can never fire twice.
		var handlers []Handler[N, O, H]
		for id, sub := range n.subs[ev.Kind] {
			handlers = append(handlers, sub.fn)
			if sub.once {
				delete(n.subs[ev.Kind], id)
			}
		}

		n.delivering = true
		n.mu.Unlock()

		for _, fn := range handlers {
			n.deliver(fn, ev)
		}

		n.mu.Lock()
		n.delivering = false
		if len(n.queue) == 0 {
			n.cond.Broadcast()
		}
	}
}

// deliver invokes one handler, discarding anything it panics with.
// Subscriber failures must never reach store logic.
func (n *notifier[N, O, H]) deliver(fn Handler[N, O, H], ev Event[N, O, H]) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("event handler panicked", "kind", string(ev.Kind), "panic", r)
		}
	}()
	fn(ev)
}
