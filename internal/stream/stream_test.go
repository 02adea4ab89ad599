package stream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rneatherway/gh-apitest/internal/event"
)

func newServer(t *testing.T) (*event.Bus, *Handler, string) {
	t.Helper()
	bus := event.NewBus()
	h := NewHandler(bus, nil)
	server := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		server.Close()
	})
	return bus, h, "ws" + strings.TrimPrefix(server.URL, "http") + EventsPath
}

func TestWatchReceivesEventsInOrder(t *testing.T) {
	bus, h, url := newServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan []event.Event, 1)
	errs := make(chan error, 1)
	go func() {
		var events []event.Event
		err := Watch(ctx, url, func(e event.Event) bool {
			events = append(events, e)
			return e.Type != event.SuiteCompleted
		})
		got <- events
		errs <- err
	}()

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	published := []event.Event{
		event.Started(1), event.Completed(1, true),
		event.Started(2), event.Completed(2, false),
		event.Finished(2, 1, 1),
	}
	for _, e := range published {
		bus.Publish(e)
	}

	assert.Equal(t, published, <-got)
	assert.NoError(t, <-errs)
	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatchEndsWhenHandlerCloses(t *testing.T) {
	bus, h, url := newServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	count := 0
	go func() {
		errs <- Watch(ctx, url, func(event.Event) bool {
			count++
			return true
		})
	}()

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	bus.Publish(event.Started(1))
	h.Close()

	assert.NoError(t, <-errs)
	assert.Equal(t, 1, count)
}

// collect watches url until the server closes the stream.
func collect(ctx context.Context, url string) (<-chan []event.Event, <-chan error) {
	got := make(chan []event.Event, 1)
	errs := make(chan error, 1)
	go func() {
		var events []event.Event
		err := Watch(ctx, url, func(e event.Event) bool {
			events = append(events, e)
			return true
		})
		got <- events
		errs <- err
	}()
	return got, errs
}

func suiteEvents(cases int) []event.Event {
	var events []event.Event
	for i := 1; i <= cases; i++ {
		events = append(events, event.Started(i), event.Completed(i, true))
	}
	return append(events, event.Finished(cases, cases, 0))
}

func TestCloseDeliversQueuedEvents(t *testing.T) {
	for i := 0; i < 10; i++ {
		bus, h, url := newServer(t)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		got, errs := collect(ctx, url)
		require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

		published := suiteEvents(20)
		for _, e := range published {
			bus.Publish(e)
		}
		h.Close()

		assert.Equal(t, published, <-got)
		assert.NoError(t, <-errs)
		cancel()
	}
}

func TestSlowClientReceivesLongSuite(t *testing.T) {
	bus, h, url := newServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got, errs := collect(ctx, url)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	published := suiteEvents(150)
	for _, e := range published {
		bus.Publish(e)
	}
	h.Close()

	events := <-got
	require.NoError(t, <-errs)
	require.Len(t, events, len(published))
	assert.Equal(t, published, events)
	assert.Equal(t, event.SuiteCompleted, events[len(events)-1].Type)
}

func TestWatchDialError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http") + EventsPath
	server.Close()

	err := Watch(context.Background(), url, func(event.Event) bool { return true })
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	h := NewHandler(event.NewBus(), nil)
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + PingPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	bs, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Ok\n", string(bs))
}
