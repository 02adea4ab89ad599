package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rneatherway/gh-apitest/internal/event"
	"github.com/rneatherway/gh-apitest/internal/stream"
)

var watchOpts struct {
	json bool
	once bool
}

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <URL>",
	Short: "Prints the events of a run started with --listen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		printEvent := eventPrinter(cmd.OutOrStdout(), watchOpts.json)
		return stream.Watch(ctx, args[0], func(e event.Event) bool {
			printEvent(e)
			return !(watchOpts.once && e.Type == event.SuiteCompleted)
		})
	},
	Example: `  gh-apitest run --listen localhost:8765 suite.yaml &
  gh-apitest watch ws://localhost:8765/events`,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOpts.json, "json", false, "Print each event as a line of JSON")
	watchCmd.Flags().BoolVar(&watchOpts.once, "once", false, "Exit after the first completed suite")
}

func eventPrinter(w io.Writer, asJSON bool) func(event.Event) {
	return func(e event.Event) {
		if asJSON {
			bs, _ := json.Marshal(e)
			fmt.Fprintln(w, string(bs))
			return
		}

		switch e.Type {
		case event.CaseStarted:
			fmt.Fprintf(w, "case %d started\n", e.CaseID)
		case event.CaseCompleted:
			result := "failed"
			if e.Passed {
				result = "passed"
			}
			fmt.Fprintf(w, "case %d %s\n", e.CaseID, result)
		case event.SuiteCompleted:
			fmt.Fprintf(w, "suite completed: %d cases, %d passed, %d failed\n",
				e.Totals.Total, e.Totals.Passed, e.Totals.Failed)
		}
	}
}
