package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rneatherway/gh-apitest/internal/event"
	"github.com/rneatherway/gh-apitest/internal/exchange"
	"github.com/rneatherway/gh-apitest/internal/httpclient"
	"github.com/rneatherway/gh-apitest/internal/request"
)

// fakeExchanger answers each URL with a scripted result after an optional
// delay, and tracks how many exchanges overlap.
type fakeExchanger struct {
	mu          sync.Mutex
	results     map[string]exchange.Result
	delays      map[string]time.Duration
	gate        chan struct{}
	inflight    int
	maxInflight int
	calls       []string
	aborts      int
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{
		results: map[string]exchange.Result{},
		delays:  map[string]time.Duration{},
	}
}

func (f *fakeExchanger) Exchange(ctx context.Context, spec request.Spec) (<-chan exchange.Result, error) {
	if spec.URL == "" {
		return nil, request.ErrEmptyURL
	}

	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.calls = append(f.calls, spec.URL)
	res, ok := f.results[spec.URL]
	if !ok {
		res = exchange.Result{StatusCode: http.StatusOK, Body: "ok"}
	}
	delay := f.delays[spec.URL]
	gate := f.gate
	f.mu.Unlock()

	ch := make(chan exchange.Result, 1)
	go func() {
		if gate != nil {
			<-gate
		}
		time.Sleep(delay)
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
		ch <- res
		close(ch)
	}()
	return ch, nil
}

func (f *fakeExchanger) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(bus *event.Bus) *recorder {
	rec := &recorder{}
	bus.Subscribe(func(e event.Event) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, e)
	})
	return rec
}

func (rec *recorder) all() []event.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]event.Event(nil), rec.events...)
}

func newRunner(t *testing.T, ex Exchanger) (*Runner, *recorder) {
	bus := event.NewBus()
	rec := record(bus)
	r := New(ex, bus, nil)
	t.Cleanup(func() { r.Close() })
	return r, rec
}

func wait(t *testing.T, r *Runner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func testCase(id int, url string) Case {
	return Case{ID: id, Name: url, Request: request.New("GET", url, "", "")}
}

func TestRunAllEmptySuite(t *testing.T) {
	r, rec := newRunner(t, newFakeExchanger())

	require.NoError(t, r.RunAll())
	wait(t, r)

	assert.Equal(t, []event.Event{event.Finished(0, 0, 0)}, rec.all())
	assert.False(t, r.Running())
}

func TestSerialExclusivity(t *testing.T) {
	ex := newFakeExchanger()
	ex.gate = make(chan struct{})
	r, rec := newRunner(t, ex)

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.AddCase(testCase(i, "http://api.test/"+string(rune('a'+i)))))
	}

	require.NoError(t, r.RunAll())
	require.Eventually(t, func() bool { return ex.callCount() == 1 }, time.Second, time.Millisecond)

	before := r.Cases()
	eventsBefore := len(rec.all())
	assert.ErrorIs(t, r.RunAll(), ErrRunning)
	assert.ErrorIs(t, r.RunOne(2), ErrRunning)
	assert.Equal(t, before, r.Cases())
	assert.Len(t, rec.all(), eventsBefore)
	assert.Equal(t, Running, before[0].Status)

	close(ex.gate)
	wait(t, r)

	assert.Equal(t, 1, ex.maxInflight)
	assert.Equal(t, 3, ex.callCount())
}

func TestOrderPreservedRegardlessOfLatency(t *testing.T) {
	ex := newFakeExchanger()
	ex.delays["http://api.test/c1"] = 30 * time.Millisecond
	ex.delays["http://api.test/c2"] = 0
	ex.delays["http://api.test/c3"] = 10 * time.Millisecond
	r, rec := newRunner(t, ex)

	require.NoError(t, r.AddCase(testCase(1, "http://api.test/c1")))
	require.NoError(t, r.AddCase(testCase(2, "http://api.test/c2")))
	require.NoError(t, r.AddCase(testCase(3, "http://api.test/c3")))

	require.NoError(t, r.RunAll())
	wait(t, r)

	assert.Equal(t, []event.Event{
		event.Started(1), event.Completed(1, true),
		event.Started(2), event.Completed(2, true),
		event.Started(3), event.Completed(3, true),
		event.Finished(3, 3, 0),
	}, rec.all())
}

func TestResetOnRerun(t *testing.T) {
	ex := newFakeExchanger()
	ex.results["http://api.test/a"] = exchange.Result{StatusCode: 201, Body: "first", Headers: "X: 1", Elapsed: 5 * time.Millisecond}
	r, _ := newRunner(t, ex)
	require.NoError(t, r.AddCase(testCase(1, "http://api.test/a")))

	require.NoError(t, r.RunAll())
	wait(t, r)
	c, err := r.Case(1)
	require.NoError(t, err)
	assert.Equal(t, 201, c.ActualStatus)
	assert.Equal(t, "first", c.ActualBody)

	ex.mu.Lock()
	ex.gate = make(chan struct{})
	ex.mu.Unlock()

	require.NoError(t, r.RunAll())
	c, err = r.Case(1)
	require.NoError(t, err)
	assert.Equal(t, Running, c.Status)
	assert.Zero(t, c.ActualStatus)
	assert.Empty(t, c.ActualBody)
	assert.Empty(t, c.ActualHeaders)
	assert.Empty(t, c.Error)
	assert.Zero(t, c.ResponseTime)

	close(ex.gate)
	wait(t, r)
}

func TestExpectedStatusMismatchFails(t *testing.T) {
	ex := newFakeExchanger()
	ex.results["http://api.test/missing"] = exchange.Result{StatusCode: 404, Body: "not found"}
	r, _ := newRunner(t, ex)

	tc := testCase(1, "http://api.test/missing")
	tc.ExpectedStatus = ParseExpectedStatus("200")
	require.NoError(t, r.AddCase(tc))
	require.NoError(t, r.RunAll())
	wait(t, r)

	c, err := r.Case(1)
	require.NoError(t, err)
	assert.Equal(t, Failed, c.Status)
	assert.Equal(t, 404, c.ActualStatus)
	assert.Empty(t, c.Error)
	assert.Equal(t, "expected status 200 but received 404", c.Reason)
}

func TestNoExpectationsPassOnAnyResponse(t *testing.T) {
	ex := newFakeExchanger()
	ex.results["http://api.test/error"] = exchange.Result{StatusCode: 500, Body: "boom"}
	r, _ := newRunner(t, ex)

	require.NoError(t, r.AddCase(testCase(1, "http://api.test/error")))
	require.NoError(t, r.RunAll())
	wait(t, r)

	c, err := r.Case(1)
	require.NoError(t, err)
	assert.Equal(t, Passed, c.Status)
}

func TestTransportFailureShortCircuits(t *testing.T) {
	ex := newFakeExchanger()
	ex.results["http://down.test"] = exchange.Result{
		StatusCode: exchange.StatusTransportError,
		Body:       "Network Error: connection refused",
		Err:        errors.New("connection refused"),
	}
	r, _ := newRunner(t, ex)

	tc := testCase(1, "http://down.test")
	tc.ExpectedStatus = 200
	tc.ExpectedSubstring = "ok"
	require.NoError(t, r.AddCase(tc))
	require.NoError(t, r.RunAll())
	wait(t, r)

	c, err := r.Case(1)
	require.NoError(t, err)
	assert.Equal(t, Failed, c.Status)
	assert.Equal(t, "connection refused", c.Error)
	assert.Equal(t, exchange.StatusTransportError, c.ActualStatus)
}

func TestEmptyURLFailsAndSuiteContinues(t *testing.T) {
	r, rec := newRunner(t, newFakeExchanger())

	require.NoError(t, r.AddCase(testCase(1, "")))
	require.NoError(t, r.AddCase(testCase(2, "")))
	require.NoError(t, r.AddCase(testCase(3, "http://api.test")))
	require.NoError(t, r.RunAll())
	wait(t, r)

	c, err := r.Case(1)
	require.NoError(t, err)
	assert.Equal(t, Failed, c.Status)
	assert.Equal(t, "empty URL", c.Error)

	events := rec.all()
	assert.Equal(t, event.Finished(3, 1, 2), events[len(events)-1])
}

func TestAggregateTotals(t *testing.T) {
	ex := newFakeExchanger()
	ex.results["http://api.test/bad"] = exchange.Result{StatusCode: 400}
	r, rec := newRunner(t, ex)

	for i, url := range []string{"http://api.test/ok", "http://api.test/bad", "http://api.test/ok2", "http://api.test/bad"} {
		tc := testCase(i+1, url)
		tc.ExpectedStatus = 200
		require.NoError(t, r.AddCase(tc))
	}
	require.NoError(t, r.RunAll())
	wait(t, r)

	events := rec.all()
	assert.Equal(t, event.Finished(4, 2, 2), events[len(events)-1])
}

func TestRunOneDoesNotChainOrReportSuite(t *testing.T) {
	ex := newFakeExchanger()
	r, rec := newRunner(t, ex)
	require.NoError(t, r.AddCase(testCase(1, "http://api.test/1")))
	require.NoError(t, r.AddCase(testCase(2, "http://api.test/2")))
	require.NoError(t, r.AddCase(testCase(3, "http://api.test/3")))

	require.NoError(t, r.RunOne(2))
	wait(t, r)

	assert.Equal(t, []event.Event{event.Started(2), event.Completed(2, true)}, rec.all())
	assert.Equal(t, []string{"http://api.test/2"}, ex.calls)

	cases := r.Cases()
	assert.Equal(t, NotRun, cases[0].Status)
	assert.Equal(t, Passed, cases[1].Status)
	assert.Equal(t, NotRun, cases[2].Status)
	assert.False(t, r.Running())
}

func TestRunOneUnknownID(t *testing.T) {
	r, rec := newRunner(t, newFakeExchanger())
	require.NoError(t, r.AddCase(testCase(1, "http://api.test")))

	assert.ErrorIs(t, r.RunOne(42), ErrUnknownCase)
	assert.Empty(t, rec.all())
	assert.False(t, r.Running())
}

func TestDuplicateCaseID(t *testing.T) {
	r, _ := newRunner(t, newFakeExchanger())
	require.NoError(t, r.AddCase(testCase(1, "http://api.test/a")))
	assert.ErrorIs(t, r.AddCase(testCase(1, "http://api.test/b")), ErrDuplicateCase)
	assert.Len(t, r.Cases(), 1)
}

func TestClearTestsDuringRun(t *testing.T) {
	ex := newFakeExchanger()
	ex.gate = make(chan struct{})
	r, rec := newRunner(t, ex)
	require.NoError(t, r.AddCase(testCase(1, "http://api.test/1")))
	require.NoError(t, r.AddCase(testCase(2, "http://api.test/2")))

	require.NoError(t, r.RunAll())
	require.Eventually(t, func() bool { return ex.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.ClearTests())
	wait(t, r)
	close(ex.gate)

	assert.Empty(t, r.Cases())
	assert.False(t, r.Running())
	assert.Equal(t, 1, ex.aborts)

	// The aborted exchange's late result must not reach the runner.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []event.Event{event.Started(1)}, rec.all())
	assert.Equal(t, 1, ex.callCount())

	require.NoError(t, r.RunAll())
	wait(t, r)
}

func TestClosedRunner(t *testing.T) {
	r := New(newFakeExchanger(), nil, nil)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.AddCase(testCase(1, "http://api.test")), ErrClosed)
	assert.ErrorIs(t, r.RunAll(), ErrClosed)
	assert.ErrorIs(t, r.Wait(context.Background()), ErrClosed)
	_, err := r.Case(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, r.Running())
	assert.Nil(t, r.Cases())
}

func TestClosedRunnerDropsItsSuite(t *testing.T) {
	r := New(newFakeExchanger(), nil, nil)
	require.NoError(t, r.AddCase(testCase(1, "http://api.test")))
	require.Len(t, r.Cases(), 1)
	require.NoError(t, r.Close())

	assert.Nil(t, r.Cases())
	assert.False(t, r.Running())
}

func TestEvaluate(t *testing.T) {
	ok := exchange.Result{StatusCode: 200, Body: "Hello World"}

	assert.True(t, Evaluate(Case{}, ok).Passed)
	assert.True(t, Evaluate(Case{ExpectedStatus: 200, ExpectedSubstring: "hello world"}, ok).Passed)
	assert.False(t, Evaluate(Case{ExpectedStatus: 201}, ok).Passed)

	v := Evaluate(Case{ExpectedSubstring: "goodbye"}, ok)
	assert.False(t, v.Passed)
	assert.Equal(t, `response body does not contain "goodbye"`, v.Reason)
}

func TestParseExpectedStatus(t *testing.T) {
	assert.Equal(t, 200, ParseExpectedStatus(" 200 "))
	assert.Equal(t, 0, ParseExpectedStatus(""))
	assert.Equal(t, 0, ParseExpectedStatus("OK"))
	assert.Equal(t, 0, ParseExpectedStatus("-1"))
}

func TestScenarioAgainstRealServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachableURL := unreachable.URL
	unreachable.Close()

	ex := exchange.New(httpclient.New(httpclient.Options{}), 5*time.Second, nil)
	r, rec := newRunner(t, ex)

	a := Case{ID: 1, Name: "a", Request: request.New("GET", server.URL+"/ok", "", ""), ExpectedStatus: 200}
	b := Case{ID: 2, Name: "b", Request: request.New("POST", server.URL+"/broken", "", "{}"), ExpectedStatus: 200}
	c := Case{ID: 3, Name: "c", Request: request.New("GET", unreachableURL, "", "")}
	require.NoError(t, r.AddCase(a))
	require.NoError(t, r.AddCase(b))
	require.NoError(t, r.AddCase(c))

	require.NoError(t, r.RunAll())
	wait(t, r)

	cases := r.Cases()
	assert.Equal(t, Passed, cases[0].Status)
	assert.Equal(t, Failed, cases[1].Status)
	assert.Equal(t, 500, cases[1].ActualStatus)
	assert.Equal(t, Failed, cases[2].Status)
	assert.NotEmpty(t, cases[2].Error)
	assert.Equal(t, exchange.StatusTransportError, cases[2].ActualStatus)

	events := rec.all()
	assert.Equal(t, event.Finished(3, 1, 2), events[len(events)-1])
}
