package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/rneatherway/gh-apitest/internal/runner"
)

// WriteTable renders one row per case followed by the run totals.
func WriteTable(w io.Writer, r Run) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Method", "URL", "Result", "Status", "Time", "Size", "Detail"})
	table.SetAutoWrapText(false)

	for _, c := range r.Cases {
		status := ""
		if c.Status == runner.Passed || c.Status == runner.Failed {
			status = strconv.Itoa(c.ActualStatus)
		}
		table.Append([]string{
			strconv.Itoa(c.ID),
			c.Name,
			string(c.Request.Method),
			c.Request.URL,
			c.Status.String(),
			status,
			fmt.Sprintf("%dms", c.ResponseTime.Milliseconds()),
			humanize.Bytes(uint64(len(c.ActualBody))),
			detail(c),
		})
	}
	table.Render()

	s := r.Summary()
	fmt.Fprintf(w, "\n%d cases, %d passed, %d failed", s.Total, s.Passed, s.Failed)
	if s.NotRun > 0 {
		fmt.Fprintf(w, ", %d not run", s.NotRun)
	}
	fmt.Fprintf(w, " in %dms\n", r.Duration.Milliseconds())
}

func detail(c runner.Case) string {
	if c.Error != "" {
		return c.Error
	}
	return c.Reason
}
