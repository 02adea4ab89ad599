// Package stream publishes runner events to websocket clients and reads
// them back.
package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rneatherway/gh-apitest/internal/event"
)

const (
	EventsPath = "/events"
	PingPath   = "/ping"

	writeTimeout = 5 * time.Second
)

// Handler serves the event stream of a bus. Every websocket client on
// EventsPath receives each event published after it connected, as JSON.
// Events published before Close are still delivered before the client is
// sent a going-away status.
type Handler struct {
	bus  *event.Bus
	log  *log.Logger
	mux  *http.ServeMux
	done chan struct{}
	once sync.Once

	clients atomic.Int32
}

func NewHandler(bus *event.Bus, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{
		bus:  bus,
		log:  logger,
		mux:  http.NewServeMux(),
		done: make(chan struct{}),
	}
	h.mux.HandleFunc(PingPath, ping)
	h.mux.HandleFunc(EventsPath, h.events)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Clients reports how many websocket clients are connected.
func (h *Handler) Clients() int {
	return int(h.clients.Load())
}

// Close disconnects all clients with a going-away status.
func (h *Handler) Close() {
	h.once.Do(func() { close(h.done) })
}

func ping(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("Ok\n"))
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Printf("stream: accept failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	queue, stop := h.bus.Queue()
	defer stop()
	h.clients.Add(1)
	defer h.clients.Add(-1)

	// Nothing is expected from clients; this notices when they go away.
	ctx := conn.CloseRead(r.Context())
	h.log.Printf("stream: client connected remote=%s", r.RemoteAddr)

	flush := func() bool {
		for _, e := range queue.Take() {
			if err := write(ctx, conn, e); err != nil {
				h.log.Printf("stream: write failed remote=%s err=%v", r.RemoteAddr, err)
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			h.log.Printf("stream: client gone remote=%s", r.RemoteAddr)
			return
		case <-queue.Ready():
			if !flush() {
				return
			}
		case <-h.done:
			if flush() {
				conn.Close(websocket.StatusGoingAway, "run finished")
			}
			return
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, e event.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

// Watch connects to an event stream and calls fn for every event until fn
// returns false, the server closes the stream or ctx is done.
func Watch(ctx context.Context, url string, fn func(event.Event) bool) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "")

	for {
		var e event.Event
		err := wsjson.Read(ctx, conn, &e)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			conn.Close(websocket.StatusUnsupportedData, "")
			return err
		}

		if !fn(e) {
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}
