package event

import "sync"

type Type string

// Events
const (
	CaseStarted    Type = "case_started"
	CaseCompleted  Type = "case_completed"
	SuiteCompleted Type = "suite_completed"
)

type Totals struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

type Event struct {
	Type   Type    `json:"type"`
	CaseID int     `json:"case_id,omitempty"`
	Passed bool    `json:"passed,omitempty"`
	Totals *Totals `json:"totals,omitempty"`
}

func Started(id int) Event {
	return Event{Type: CaseStarted, CaseID: id}
}

func Completed(id int, passed bool) Event {
	return Event{Type: CaseCompleted, CaseID: id, Passed: passed}
}

func Finished(total, passed, failed int) Event {
	return Event{Type: SuiteCompleted, Totals: &Totals{Total: total, Passed: passed, Failed: failed}}
}

type subscription struct {
	id int
	fn func(Event)
}

// Bus delivers events to its subscribers synchronously, in subscription
// order, on the publishing goroutine.
type Bus struct {
	lock   sync.RWMutex
	subs   []subscription
	nextID int
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it again.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) Publish(e Event) {
	b.lock.RLock()
	subs := b.subs
	b.lock.RUnlock()
	for _, s := range subs {
		s.fn(e)
	}
}

// Queue is a subscription that buffers every event until it is taken. It
// never drops events, however far the reader falls behind.
type Queue struct {
	lock    sync.Mutex
	pending []Event
	ready   chan struct{}
	stopped bool
}

// Queue subscribes a new queue. The returned function unsubscribes it;
// events already queued can still be taken afterwards.
func (b *Bus) Queue() (*Queue, func()) {
	q := &Queue{ready: make(chan struct{}, 1)}
	unsubscribe := b.Subscribe(q.push)
	return q, func() {
		unsubscribe()
		q.lock.Lock()
		q.stopped = true
		q.lock.Unlock()
	}
}

func (q *Queue) push(e Event) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.stopped {
		return
	}
	q.pending = append(q.pending, e)
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready receives a value whenever events were queued since the last Take.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Take returns the queued events in publish order and empties the queue.
func (q *Queue) Take() []Event {
	q.lock.Lock()
	defer q.lock.Unlock()
	events := q.pending
	q.pending = nil
	return events
}
