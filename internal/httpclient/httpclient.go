package httpclient

import (
	"io"
	"net/http"

	"github.com/henvic/httpretty"
)

// See https://www.thegreatcodeadventure.com/mocking-http-requests-in-golang/
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// FollowRedirects makes the client chase 3xx responses instead of
	// reporting them.
	FollowRedirects bool
	// Dump, when set, receives a pretty-printed copy of every request and
	// response.
	Dump     io.Writer
	Colorize bool
}

func New(opts Options) *http.Client {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if opts.Dump != nil {
		logger := &httpretty.Logger{
			Time:           true,
			TLS:            false,
			Colors:         opts.Colorize,
			RequestHeader:  true,
			RequestBody:    true,
			ResponseHeader: true,
			ResponseBody:   true,
			Formatters:     []httpretty.Formatter{&httpretty.JSONFormatter{}},
		}
		logger.SetOutput(opts.Dump)
		transport = logger.RoundTripper(transport)
	}

	client := &http.Client{Transport: transport}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}
