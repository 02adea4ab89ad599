package mocks

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// MockClient is the mock client. It satisfies both httpclient.HTTPClient and
// http.RoundTripper.
type MockClient struct {
	Next func(*http.Request) (*http.Response, error)

	mu       sync.Mutex
	requests []*http.Request
}

func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	next := m.Next
	m.mu.Unlock()
	return next(req)
}

func (m *MockClient) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Do(req)
}

// Requests returns every request seen so far, oldest first.
func (m *MockClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

func (m *MockClient) MockResponse(status int, body string, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Next = func(*http.Request) (*http.Response, error) {
		h := http.Header{}
		for k, v := range headers {
			h.Set(k, v)
		}
		return &http.Response{
			StatusCode: status,
			Header:     h,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		}, nil
	}
}

func (m *MockClient) MockError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Next = func(*http.Request) (*http.Response, error) {
		return nil, err
	}
}

// MockBlocking makes every request wait until its context is done and then
// fail with the context's error.
func (m *MockClient) MockBlocking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Next = func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
}
