package markdown

import (
	"fmt"
	"strings"
	"time"

	"github.com/rneatherway/gh-apitest/internal/report"
	"github.com/rneatherway/gh-apitest/internal/runner"
)

var statusIcons = map[runner.Status]string{
	runner.Passed:  ":white_check_mark:",
	runner.Failed:  ":x:",
	runner.NotRun:  ":heavy_minus_sign:",
	runner.Running: ":hourglass:",
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// FromRun renders a run as a results table followed by the details of every
// failed case.
func FromRun(r report.Run) string {
	b := &strings.Builder{}
	s := r.Summary()

	title := r.Name
	if title == "" {
		title = "API test run"
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	fmt.Fprintf(b, "**%d** cases, **%d** passed, **%d** failed at %s (%dms)\n\n",
		s.Total, s.Passed, s.Failed,
		r.Started.UTC().Format("2006-01-02 15:04 MST"),
		r.Duration.Milliseconds())

	b.WriteString("| | ID | Name | Request | Status | Time |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, c := range r.Cases {
		fmt.Fprintf(b, "| %s | %d | %s | `%s %s` | %s | %s |\n",
			statusIcons[c.Status],
			c.ID,
			escapeCell(c.Name),
			c.Request.Method,
			escapeCell(c.Request.URL),
			actualStatus(c),
			formatDuration(c.ResponseTime))
	}

	for _, c := range r.Cases {
		if c.Status != runner.Failed {
			continue
		}
		fmt.Fprintf(b, "\n> **%s** (case %d)\n>\n", c.Name, c.ID)
		reason := c.Reason
		if c.Error != "" {
			reason = c.Error
		}
		for _, line := range strings.Split(reason, "\n") {
			fmt.Fprintf(b, "> %s\n", line)
		}
		fmt.Fprintf(b, ">\n> ```\n> %s\n> ```\n", c.Request.Curl())
	}

	return b.String()
}

func actualStatus(c runner.Case) string {
	if c.Status != runner.Passed && c.Status != runner.Failed {
		return ""
	}
	if c.Error != "" {
		return "error"
	}
	return fmt.Sprint(c.ActualStatus)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func WrapInDetails(s string) string {
	return fmt.Sprintf("<details>\n  <summary>Click to expand</summary>\n\n%s\n</details>", s)
}
