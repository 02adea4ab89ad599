package cassette

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"sync"
)

var ErrNoMatch = errors.New("no recorded exchange matches request")

// Replayer serves responses from a cassette file without touching the
// network. Each recorded exchange is served at most once, in recorded order
// among those that match.
type Replayer struct {
	matcher func(*http.Request, Request) bool

	mu        sync.Mutex
	exchanges []Exchange
}

var _ http.RoundTripper = (*Replayer)(nil)

func NewReplayer(file string) (*Replayer, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var exchanges []Exchange
	err = json.NewDecoder(f).Decode(&exchanges)
	if err != nil {
		return nil, fmt.Errorf("decoding cassette %s: %w", file, err)
	}

	return &Replayer{
		exchanges: exchanges,
		matcher:   DefaultMatcher,
	}, nil
}

// WithMatcher replaces the function used to pair requests with recordings.
func (r *Replayer) WithMatcher(m func(*http.Request, Request) bool) *Replayer {
	r.matcher = m
	return r
}

// Remaining reports how many recorded exchanges have not been served.
func (r *Replayer) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

func (r *Replayer) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ex := range r.exchanges {
		if !r.matcher(req, ex.Request) {
			continue
		}
		r.exchanges = slices.Delete(r.exchanges, i, i+1)

		header := ex.Response.Headers.Clone()
		if header == nil {
			header = http.Header{}
		}
		return &http.Response{
			Status:     fmt.Sprintf("%d %s", ex.Response.StatusCode, http.StatusText(ex.Response.StatusCode)),
			StatusCode: ex.Response.StatusCode,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     header,
			Body:       io.NopCloser(bytes.NewReader(ex.Response.body())),
			Request:    req,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s %s", ErrNoMatch, req.Method, req.URL)
}

// DefaultMatcher pairs requests on method, URL and headers.
func DefaultMatcher(req *http.Request, stored Request) bool {
	return req.Method == stored.Method && req.URL.String() == stored.URL &&
		maps.EqualFunc(req.Header, stored.Headers, slices.Equal)
}
