package runner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rneatherway/gh-apitest/internal/exchange"
	"github.com/rneatherway/gh-apitest/internal/request"
)

type Status int

const (
	NotRun Status = iota
	Running
	Passed
	Failed
)

func (s Status) String() string {
	switch s {
	case NotRun:
		return "not run"
	case Running:
		return "running"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Case is one named exchange plus the expectations it is checked against.
// Only the Runner writes the result fields.
type Case struct {
	ID      int
	Name    string
	Request request.Spec
	// ExpectedStatus is ignored when zero.
	ExpectedStatus int
	// ExpectedSubstring is matched case-insensitively against the response
	// body and ignored when empty.
	ExpectedSubstring string

	Status        Status
	ActualStatus  int
	ActualBody    string
	ActualHeaders string
	ResponseTime  time.Duration
	// Error holds the transport failure, if any.
	Error string
	// Reason explains why the case failed.
	Reason string
}

func (c *Case) reset() {
	c.Status = NotRun
	c.ActualStatus = 0
	c.ActualBody = ""
	c.ActualHeaders = ""
	c.ResponseTime = 0
	c.Error = ""
	c.Reason = ""
}

// ParseExpectedStatus converts user input into an expected status code.
// Empty or non-numeric input means no expectation.
func ParseExpectedStatus(s string) int {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || code <= 0 {
		return 0
	}
	return code
}

type Verdict struct {
	Passed bool
	Reason string
}

// Evaluate checks res against the expectations of c. A case without
// expectations passes on any response that made it back from the server.
func Evaluate(c Case, res exchange.Result) Verdict {
	if res.Failed() {
		return Verdict{Reason: "request failed: " + res.Err.Error()}
	}

	if c.ExpectedStatus != 0 && res.StatusCode != c.ExpectedStatus {
		return Verdict{Reason: fmt.Sprintf("expected status %d but received %d", c.ExpectedStatus, res.StatusCode)}
	}

	if c.ExpectedSubstring != "" && !strings.Contains(strings.ToLower(res.Body), strings.ToLower(c.ExpectedSubstring)) {
		return Verdict{Reason: fmt.Sprintf("response body does not contain %q", c.ExpectedSubstring)}
	}

	return Verdict{Passed: true}
}

func (c *Case) record(res exchange.Result) {
	c.ResponseTime = res.Elapsed
	c.ActualStatus = res.StatusCode
	c.ActualHeaders = res.Headers
	if res.Failed() {
		c.ActualBody = ""
		c.Error = res.Err.Error()
	} else {
		c.ActualBody = res.Body
	}

	v := Evaluate(*c, res)
	c.Reason = v.Reason
	if v.Passed {
		c.Status = Passed
	} else {
		c.Status = Failed
	}
}
