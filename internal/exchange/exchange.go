package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rneatherway/gh-apitest/internal/httpclient"
	"github.com/rneatherway/gh-apitest/internal/request"
)

const (
	// StatusTransportError is reported as the status code when no HTTP
	// response was obtained.
	StatusTransportError = -1

	UserAgent = "gh-apitest/1.0"
)

// ErrSuperseded is returned by Do when a newer exchange replaced the one it
// was waiting for.
var ErrSuperseded = errors.New("exchange superseded by a newer request")

type Result struct {
	StatusCode int
	Body       string
	// Headers holds the response headers as "Name: Value" lines.
	Headers string
	Elapsed time.Duration
	// Err is set for transport failures only. An HTTP error status is not a
	// transport failure.
	Err error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

func (r Result) ElapsedMS() int64 {
	return r.Elapsed.Milliseconds()
}

func transportFailure(err error) Result {
	return Result{
		StatusCode: StatusTransportError,
		Body:       fmt.Sprintf("Network Error: %v", err),
		Err:        err,
	}
}

// Exchanger performs one HTTP exchange at a time. Starting a new exchange
// aborts the previous one, whose result is then never delivered.
type Exchanger struct {
	client  httpclient.HTTPClient
	timeout time.Duration
	log     *log.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// New creates an Exchanger. A zero timeout leaves the exchange bounded only
// by the context passed to Exchange.
func New(client httpclient.HTTPClient, timeout time.Duration, logger *log.Logger) *Exchanger {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Exchanger{client: client, timeout: timeout, log: logger}
}

// Exchange starts spec and returns a channel that receives its result. If a
// later call to Exchange or Abort supersedes this one, the channel is closed
// without a value.
func (e *Exchanger) Exchange(ctx context.Context, spec request.Spec) (<-chan Result, error) {
	if spec.URL == "" {
		return nil, request.ErrEmptyURL
	}

	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.log.Printf("exchange: aborting seq=%d", e.seq)
		e.cancel()
	}
	e.seq++
	seq := e.seq
	e.cancel = cancel
	e.mu.Unlock()

	out := make(chan Result, 1)
	go func() {
		defer cancel()
		defer close(out)

		e.log.Printf("exchange: dispatch seq=%d method=%s url=%s", seq, spec.Method, spec.URL)
		start := time.Now()
		res := e.roundTrip(ctx, spec)
		res.Elapsed = time.Since(start)

		e.mu.Lock()
		defer e.mu.Unlock()
		if seq != e.seq {
			e.log.Printf("exchange: discarding superseded result seq=%d", seq)
			return
		}
		e.cancel = nil
		e.log.Printf("exchange: done seq=%d status=%d elapsed_ms=%d", seq, res.StatusCode, res.ElapsedMS())
		out <- res
	}()

	return out, nil
}

// Do runs spec and waits for its result.
func (e *Exchanger) Do(ctx context.Context, spec request.Spec) (Result, error) {
	ch, err := e.Exchange(ctx, spec)
	if err != nil {
		return Result{}, err
	}
	res, ok := <-ch
	if !ok {
		return Result{}, ErrSuperseded
	}
	return res, nil
}

// Abort cancels the in-flight exchange, if any, and discards its result.
func (e *Exchanger) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.log.Printf("exchange: aborting seq=%d", e.seq)
		e.cancel()
		e.cancel = nil
	}
	e.seq++
}

func (e *Exchanger) roundTrip(ctx context.Context, spec request.Spec) Result {
	req, err := newRequest(ctx, spec)
	if err != nil {
		return transportFailure(err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return transportFailure(e.explain(ctx, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(e.explain(ctx, fmt.Errorf("reading response body: %w", err)))
	}

	return Result{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Headers:    request.FormatHeaders(resp.Header),
	}
}

func (e *Exchanger) explain(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && e.timeout > 0 {
		return fmt.Errorf("request timed out after %s: %w", e.timeout, err)
	}
	return err
}

func newRequest(ctx context.Context, spec request.Spec) (*http.Request, error) {
	var body io.Reader
	if spec.Method.HasBody() && len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, string(spec.Method), spec.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "*/*")
	for _, h := range spec.Headers {
		if strings.EqualFold(h.Name, "Host") {
			req.Host = h.Value
			continue
		}
		req.Header.Set(h.Name, h.Value)
	}
	return req, nil
}
