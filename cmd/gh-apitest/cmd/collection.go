package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cli/go-gh/pkg/config"
	"github.com/cli/go-gh/pkg/tableprinter"
	"github.com/cli/go-gh/pkg/term"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rneatherway/gh-apitest/internal/request"
	"github.com/rneatherway/gh-apitest/internal/store"
)

var collectionCmd = &cobra.Command{
	Use:   "collection <command>",
	Short: "Manages saved collections of requests",
	Long:  `Creates, renames and deletes collections, and adds saved requests to them.`,
	Example: `  gh-apitest collection list
  gh-apitest collection create "Users API" --description "user endpoints"
  gh-apitest collection add 2 GET https://api.example.com/users --name "list users"
  gh-apitest collection requests 2
  gh-apitest run -c 2`,
}

var collectionDescription string

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			return listCollections(ctx, st, cmd.OutOrStdout())
		})
	},
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <NAME>",
	Short: "Creates a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			id, err := st.CreateCollection(ctx, args[0], collectionDescription)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created collection %d\n", id)
			return nil
		})
	},
}

var collectionRenameCmd = &cobra.Command{
	Use:   "rename <ID> <NAME>",
	Short: "Renames a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			c, err := st.Collection(ctx, id)
			if err != nil {
				return err
			}
			description := c.Description
			if cmd.Flags().Changed("description") {
				description = collectionDescription
			}
			return st.UpdateCollection(ctx, id, args[1], description)
		})
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <ID>",
	Short: "Deletes a collection and all of its requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			return st.DeleteCollection(ctx, id)
		})
	},
}

var collectionRequestsCmd = &cobra.Command{
	Use:   "requests <ID>",
	Short: "Lists the requests saved in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			return listRequests(ctx, st, id, cmd.OutOrStdout())
		})
	},
}

var addOpts struct {
	name    string
	headers []string
	data    string
}

var collectionAddCmd = &cobra.Command{
	Use:   "add <ID> <METHOD> <URL>",
	Short: "Saves a request to a collection",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		method := request.ParseMethod(args[1])
		name := addOpts.name
		if name == "" {
			name = fmt.Sprintf("%s %s", method, args[2])
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			reqID, err := st.SaveRequest(ctx, store.Request{
				CollectionID: id,
				Name:         name,
				Method:       string(method),
				URL:          args[2],
				Headers:      strings.Join(addOpts.headers, "\n"),
				Body:         addOpts.data,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved request %d\n", reqID)
			return nil
		})
	},
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove <REQUEST-ID>",
	Short: "Removes a saved request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			return st.DeleteRequest(ctx, id)
		})
	},
}

func init() {
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionRenameCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	collectionCmd.AddCommand(collectionRequestsCmd)
	collectionCmd.AddCommand(collectionAddCmd)
	collectionCmd.AddCommand(collectionRemoveCmd)

	collectionCreateCmd.Flags().StringVar(&collectionDescription, "description", "", "Description of the collection")
	collectionRenameCmd.Flags().StringVar(&collectionDescription, "description", "", "New description of the collection")
	collectionAddCmd.Flags().StringVar(&addOpts.name, "name", "", "Name of the request (default METHOD URL)")
	collectionAddCmd.Flags().StringArrayVarP(&addOpts.headers, "header", "H", nil, "Add a request header (repeatable)")
	collectionAddCmd.Flags().StringVarP(&addOpts.data, "data", "d", "", "Request body")
}

func withStore(cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}
	st, err := openStore(cmd.Context(), cfg, cmd.Flags())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), st)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newTablePrinter(out io.Writer) tableprinter.TablePrinter {
	t := term.FromEnv()
	isTTY := t.IsTerminalOutput()
	width := 120
	if isTTY {
		if w, _, err := t.Size(); err == nil {
			width = w
		}
	}
	return tableprinter.New(out, isTTY, width)
}

func listCollections(ctx context.Context, st *store.Store, out io.Writer) error {
	collections, err := st.Collections(ctx)
	if err != nil {
		return err
	}

	tp := newTablePrinter(out)
	for _, c := range collections {
		reqs, err := st.Requests(ctx, c.ID)
		if err != nil {
			return err
		}
		tp.AddField(strconv.FormatInt(c.ID, 10))
		tp.AddField(c.Name)
		tp.AddField(fmt.Sprintf("%d requests", len(reqs)))
		tp.AddField(c.Description)
		tp.AddField(humanize.Time(c.UpdatedAt))
		tp.EndRow()
	}
	return tp.Render()
}

func listRequests(ctx context.Context, st *store.Store, collectionID int64, out io.Writer) error {
	reqs, err := st.Requests(ctx, collectionID)
	if err != nil {
		return err
	}

	tp := newTablePrinter(out)
	for _, r := range reqs {
		tp.AddField(strconv.FormatInt(r.ID, 10))
		tp.AddField(r.Name)
		tp.AddField(r.Method)
		tp.AddField(r.URL)
		tp.EndRow()
	}
	return tp.Render()
}
