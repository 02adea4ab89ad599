package request

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Method string

const (
	GET     Method = http.MethodGet
	POST    Method = http.MethodPost
	PUT     Method = http.MethodPut
	DELETE  Method = http.MethodDelete
	PATCH   Method = http.MethodPatch
	HEAD    Method = http.MethodHead
	OPTIONS Method = http.MethodOptions
)

var Methods = []Method{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS}

var ErrEmptyURL = errors.New("empty URL")

// ParseMethod maps user input onto one of the supported methods. Anything
// unrecognised is treated as GET.
func ParseMethod(s string) Method {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m
		}
	}
	return GET
}

// HasBody reports whether a request body is sent for m.
func (m Method) HasBody() bool {
	return m != GET && m != HEAD
}

type Header struct {
	Name  string
	Value string
}

// ParseHeaders reads a block of "Name: Value" lines. Lines without a colon or
// with an empty name are skipped.
func ParseHeaders(block string) []Header {
	var headers []Header
	for _, line := range strings.Split(block, "\n") {
		name, value, found := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers = append(headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}
	return headers
}

// Spec describes one HTTP exchange. It is not modified after construction.
type Spec struct {
	Method  Method
	URL     string
	Headers []Header
	Body    []byte
}

func New(method, url, headers, body string) Spec {
	return Spec{
		Method:  ParseMethod(method),
		URL:     strings.TrimSpace(url),
		Headers: ParseHeaders(headers),
		Body:    []byte(body),
	}
}

// Header returns the value of the last header called name, compared
// case-insensitively.
func (s Spec) Header(name string) (string, bool) {
	value, found := "", false
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			value, found = h.Value, true
		}
	}
	return value, found
}

// HeaderBlock is the inverse of ParseHeaders.
func (s Spec) HeaderBlock() string {
	lines := make([]string, 0, len(s.Headers))
	for _, h := range s.Headers {
		lines = append(lines, h.Name+": "+h.Value)
	}
	return strings.Join(lines, "\n")
}

// Curl renders the request as an equivalent curl command line.
func (s Spec) Curl() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "curl -X %s", s.Method)
	for _, h := range s.Headers {
		fmt.Fprintf(b, " -H %s", shellQuote(h.Name+": "+h.Value))
	}
	if s.Method.HasBody() && len(s.Body) > 0 {
		fmt.Fprintf(b, " -d %s", shellQuote(string(s.Body)))
	}
	fmt.Fprintf(b, " %s", shellQuote(s.URL))
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// FormatHeaders joins response headers into "Name: Value" lines, one per
// value, sorted by name.
func FormatHeaders(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		for _, value := range h[name] {
			lines = append(lines, name+": "+value)
		}
	}
	return strings.Join(lines, "\n")
}
