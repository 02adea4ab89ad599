package cassette

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"unicode/utf8"
)

// Recorder passes requests through to inner and keeps every exchange that
// produced a response. Close writes them to file as JSON.
type Recorder struct {
	file  string
	inner http.RoundTripper

	mu        sync.Mutex
	exchanges []Exchange
}

var _ http.RoundTripper = (*Recorder)(nil)

func NewRecorder(file string, inner http.RoundTripper) *Recorder {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Recorder{file: file, inner: inner, exchanges: []Exchange{}}
}

func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		reqBody, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, err := r.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	ex := Exchange{
		Request: Request{
			URL:     req.URL.String(),
			Headers: req.Header.Clone(),
			Method:  req.Method,
			Body:    string(reqBody),
		},
		Response: Response{
			Headers:    resp.Header.Clone(),
			StatusCode: resp.StatusCode,
		},
	}

	if utf8.Valid(body) {
		ex.Response.BodyString = string(body)
	} else {
		ex.Response.BodyBytes = body
	}

	r.mu.Lock()
	r.exchanges = append(r.exchanges, ex)
	r.mu.Unlock()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// Len reports how many exchanges have been recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Create(r.file)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r.exchanges)
}
