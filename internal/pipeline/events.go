package pipeline

import (
	"sync"

	"github.com/bdougie/anomalyvision/internal/models"
)

// EventKind identifies what changed in the controller
type EventKind string

const (
	EventStage     EventKind = "stage"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventReset     EventKind = "reset"
)

// Event is delivered to observers in the order the controller produced it
type Event struct {
	Run      uint64
	Kind     EventKind
	Stage    Stage
	Progress int
	Result   *models.AnalysisResult
	Failure  *Failure
}

// Terminal reports whether the event ends its run
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed || e.Kind == EventReset
}

// Observer receives controller events on the dispatcher goroutine
type Observer func(Event)

type subscriber struct {
	id int
	fn Observer
}

// dispatcher queues events without blocking the producer and hands them to
// observers from a single goroutine, so observers never run under the
// controller lock and always see events in order.
type dispatcher struct {
	mu        sync.Mutex
	queue     []Event
	observers []subscriber
	nextID    int
	closed    bool
	wake      chan struct{}
	done      chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) subscribe(fn Observer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.observers = append(d.observers, subscriber{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.observers {
			if s.id == id {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

func (d *dispatcher) push(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		batch := d.queue
		d.queue = nil
		observers := append([]subscriber(nil), d.observers...)
		d.mu.Unlock()

		for _, e := range batch {
			for _, s := range observers {
				s.fn(e)
			}
		}
	}
}

// close delivers whatever is queued and stops the loop
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
