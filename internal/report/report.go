// Package report turns the cases of a finished run into summaries and
// files.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rneatherway/gh-apitest/internal/runner"
)

// SlowThreshold marks passing cases that took longer than this.
const SlowThreshold = 300 * time.Millisecond

type Summary struct {
	Total        int           `json:"total"`
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	NotRun       int           `json:"not_run"`
	Slow         int           `json:"slow"`
	ResponseTime time.Duration `json:"-"`
}

func (s Summary) OK() bool {
	return s.Failed == 0 && s.NotRun == 0
}

func Summarize(cases []runner.Case) Summary {
	s := Summary{Total: len(cases)}
	for _, c := range cases {
		switch c.Status {
		case runner.Passed:
			s.Passed++
			if c.ResponseTime > SlowThreshold {
				s.Slow++
			}
		case runner.Failed:
			s.Failed++
		default:
			s.NotRun++
		}
		s.ResponseTime += c.ResponseTime
	}
	return s
}

// Run describes one finished run.
type Run struct {
	Name     string
	RunID    string
	Started  time.Time
	Duration time.Duration
	Cases    []runner.Case
}

func (r Run) Summary() Summary {
	return Summarize(r.Cases)
}

type jsonCase struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Method           string `json:"method"`
	URL              string `json:"url"`
	Status           string `json:"status"`
	ExpectedStatus   int    `json:"expected_status,omitempty"`
	ExpectedContains string `json:"expected_contains,omitempty"`
	ActualStatus     int    `json:"actual_status"`
	ResponseTimeMS   int64  `json:"response_time_ms"`
	ResponseBytes    int    `json:"response_bytes"`
	Error            string `json:"error,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Curl             string `json:"curl"`
}

type jsonRun struct {
	Name       string     `json:"name,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Started    time.Time  `json:"started"`
	DurationMS int64      `json:"duration_ms"`
	Summary    Summary    `json:"summary"`
	Cases      []jsonCase `json:"cases"`
}

// WriteJSON writes r as an indented JSON document.
func WriteJSON(w io.Writer, r Run) error {
	out := jsonRun{
		Name:       r.Name,
		RunID:      r.RunID,
		Started:    r.Started,
		DurationMS: r.Duration.Milliseconds(),
		Summary:    r.Summary(),
		Cases:      make([]jsonCase, 0, len(r.Cases)),
	}
	for _, c := range r.Cases {
		out.Cases = append(out.Cases, jsonCase{
			ID:               c.ID,
			Name:             c.Name,
			Method:           string(c.Request.Method),
			URL:              c.Request.URL,
			Status:           c.Status.String(),
			ExpectedStatus:   c.ExpectedStatus,
			ExpectedContains: c.ExpectedSubstring,
			ActualStatus:     c.ActualStatus,
			ResponseTimeMS:   c.ResponseTime.Milliseconds(),
			ResponseBytes:    len(c.ActualBody),
			Error:            c.Error,
			Reason:           c.Reason,
			Curl:             c.Request.Curl(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
