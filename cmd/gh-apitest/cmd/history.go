package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rneatherway/gh-apitest/internal/exchange"
	"github.com/rneatherway/gh-apitest/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [flags]",
	Short: "Shows recently sent requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			return showHistory(ctx, st, historyLimit, cmd.OutOrStdout())
		})
	},
	Example: `  gh-apitest history
  gh-apitest history --limit 100
  gh-apitest history clear`,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes the request history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			return st.ClearHistory(ctx)
		})
	},
}

func init() {
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of entries to show, 0 for all")
}

func showHistory(ctx context.Context, st *store.Store, limit int, out io.Writer) error {
	entries, err := st.History(ctx, limit)
	if err != nil {
		return err
	}

	tp := newTablePrinter(out)
	for _, e := range entries {
		status := strconv.Itoa(e.StatusCode)
		if e.StatusCode == exchange.StatusTransportError {
			status = "error"
		}
		tp.AddField(humanize.Time(e.CreatedAt))
		tp.AddField(e.Method)
		tp.AddField(e.URL)
		tp.AddField(status)
		tp.AddField(fmt.Sprintf("%dms", e.ResponseTime.Milliseconds()))
		tp.AddField(humanize.Bytes(uint64(len(e.Response))))
		tp.EndRow()
	}
	return tp.Render()
}
