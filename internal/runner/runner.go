package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/rneatherway/gh-apitest/internal/event"
	"github.com/rneatherway/gh-apitest/internal/exchange"
	"github.com/rneatherway/gh-apitest/internal/request"
)

var (
	ErrRunning       = errors.New("a run is already in progress")
	ErrUnknownCase   = errors.New("no test case with that id")
	ErrDuplicateCase = errors.New("duplicate test case id")
	ErrClosed        = errors.New("runner is closed")
)

// Exchanger is the part of *exchange.Exchanger the Runner depends on.
type Exchanger interface {
	Exchange(ctx context.Context, spec request.Spec) (<-chan exchange.Result, error)
	Abort()
}

const idleCursor = -1

// Runner drives its cases through an Exchanger one at a time. All state is
// owned by a single goroutine; the exported methods hand work to it and wait
// for the outcome.
//
// Events are published on that goroutine, so bus subscribers must not call
// back into the Runner.
type Runner struct {
	exchanger Exchanger
	bus       *event.Bus
	log       *log.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	cmds    chan func()
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	cases    []*Case
	cursor   int
	running  bool
	single   bool
	inflight <-chan exchange.Result
	idle     chan struct{}
}

func New(exchanger Exchanger, bus *event.Bus, logger *log.Logger) *Runner {
	if bus == nil {
		bus = event.NewBus()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	idle := make(chan struct{})
	close(idle)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		exchanger: exchanger,
		bus:       bus,
		log:       logger,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan func()),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		cursor:    idleCursor,
		idle:      idle,
	}
	go r.loop()
	return r
}

func (r *Runner) Events() *event.Bus {
	return r.bus
}

func (r *Runner) loop() {
	defer close(r.stopped)
	for {
		select {
		case <-r.quit:
			r.exchanger.Abort()
			r.cancel()
			r.inflight = nil
			if r.running {
				r.running = false
				close(r.idle)
			}
			return
		case fn := <-r.cmds:
			fn()
		case res, ok := <-r.inflight:
			r.inflight = nil
			if !ok {
				// Someone else superseded our exchange.
				res = exchange.Result{
					StatusCode: exchange.StatusTransportError,
					Err:        errors.New("exchange aborted"),
				}
			}
			if r.settle(res) {
				r.dispatch()
			}
		}
	}
}

func (r *Runner) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.cmds <- func() { reply <- fn() }:
		return <-reply
	case <-r.stopped:
		return ErrClosed
	}
}

// Close stops the runner, aborting any exchange in flight.
func (r *Runner) Close() error {
	r.once.Do(func() { close(r.quit) })
	<-r.stopped
	return nil
}

// AddCase appends c to the suite. Result fields of c are cleared.
func (r *Runner) AddCase(c Case) error {
	return r.do(func() error {
		if r.index(c.ID) >= 0 {
			return fmt.Errorf("%w: %d", ErrDuplicateCase, c.ID)
		}
		c.reset()
		r.cases = append(r.cases, &c)
		return nil
	})
}

// RunAll resets every case and runs them in insertion order.
func (r *Runner) RunAll() error {
	return r.do(func() error {
		if r.running {
			return ErrRunning
		}
		for _, c := range r.cases {
			c.reset()
		}
		if len(r.cases) == 0 {
			r.log.Printf("runner: empty suite")
			r.bus.Publish(event.Finished(0, 0, 0))
			return nil
		}

		r.log.Printf("runner: run all cases=%d", len(r.cases))
		r.begin(false)
		r.cursor = 0
		r.dispatch()
		return nil
	})
}

// RunOne runs a single case. The other cases are left untouched and no
// suite event is published.
func (r *Runner) RunOne(id int) error {
	return r.do(func() error {
		if r.running {
			return ErrRunning
		}
		i := r.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %d", ErrUnknownCase, id)
		}

		r.log.Printf("runner: run one id=%d", id)
		r.cases[i].reset()
		r.begin(true)
		r.cursor = i
		r.dispatch()
		return nil
	})
}

// ClearTests aborts any run in progress and discards all cases.
func (r *Runner) ClearTests() error {
	return r.do(func() error {
		r.exchanger.Abort()
		r.inflight = nil
		r.cases = nil
		r.cursor = idleCursor
		if r.running {
			r.log.Printf("runner: run cancelled")
			r.running = false
			close(r.idle)
		}
		return nil
	})
}

// Wait blocks until no run is in progress.
func (r *Runner) Wait(ctx context.Context) error {
	var idle chan struct{}
	err := r.do(func() error {
		idle = r.idle
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a run is in progress. A closed runner is never
// running.
func (r *Runner) Running() bool {
	var running bool
	r.do(func() error {
		running = r.running
		return nil
	})
	return running
}

// Cases returns a snapshot of the suite in run order. A closed runner has
// no cases and returns nil; use Case to tell a closed runner from an empty
// one.
func (r *Runner) Cases() []Case {
	var cases []Case
	r.do(func() error {
		cases = make([]Case, 0, len(r.cases))
		for _, c := range r.cases {
			cases = append(cases, *c)
		}
		return nil
	})
	return cases
}

func (r *Runner) Case(id int) (Case, error) {
	var c Case
	err := r.do(func() error {
		i := r.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %d", ErrUnknownCase, id)
		}
		c = *r.cases[i]
		return nil
	})
	return c, err
}

func (r *Runner) index(id int) int {
	for i, c := range r.cases {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (r *Runner) begin(single bool) {
	r.running = true
	r.single = single
	r.idle = make(chan struct{})
}

// dispatch starts the case at the cursor. A case that cannot be dispatched
// is settled on the spot and the walk moves on.
func (r *Runner) dispatch() {
	for {
		if r.cursor < 0 || r.cursor >= len(r.cases) {
			r.finishSuite()
			return
		}

		c := r.cases[r.cursor]
		c.Status = Running
		r.log.Printf("runner: case start id=%d name=%q method=%s url=%s", c.ID, c.Name, c.Request.Method, c.Request.URL)
		r.bus.Publish(event.Started(c.ID))

		ch, err := r.exchanger.Exchange(r.ctx, c.Request)
		if err == nil {
			r.inflight = ch
			return
		}

		res := exchange.Result{StatusCode: exchange.StatusTransportError, Err: err}
		if !r.settle(res) {
			return
		}
	}
}

// settle records res against the case at the cursor and reports whether the
// next case should be dispatched.
func (r *Runner) settle(res exchange.Result) bool {
	c := r.cases[r.cursor]
	c.record(res)
	r.log.Printf("runner: case done id=%d status=%s http_status=%d elapsed_ms=%d reason=%q",
		c.ID, c.Status, c.ActualStatus, c.ResponseTime.Milliseconds(), c.Reason)
	r.bus.Publish(event.Completed(c.ID, c.Status == Passed))

	if r.single {
		r.running = false
		r.cursor = idleCursor
		close(r.idle)
		return false
	}

	r.cursor++
	return true
}

func (r *Runner) finishSuite() {
	passed, failed := 0, 0
	for _, c := range r.cases {
		switch c.Status {
		case Passed:
			passed++
		case Failed:
			failed++
		}
	}

	r.running = false
	r.cursor = idleCursor
	r.log.Printf("runner: completed total=%d passed=%d failed=%d", len(r.cases), passed, failed)
	r.bus.Publish(event.Finished(len(r.cases), passed, failed))
	close(r.idle)
}
