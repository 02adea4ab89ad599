package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cli/go-gh/pkg/config"
	"github.com/cli/go-gh/pkg/jsonpretty"
	"github.com/cli/go-gh/pkg/term"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rneatherway/gh-apitest/internal/exchange"
	"github.com/rneatherway/gh-apitest/internal/httpclient"
	"github.com/rneatherway/gh-apitest/internal/request"
	"github.com/rneatherway/gh-apitest/internal/store"
	"github.com/rneatherway/gh-apitest/internal/suite"
)

var sendCmd = &cobra.Command{
	Use:   "send [flags] <METHOD> <URL>",
	Short: "Sends a single HTTP request and prints the response",
	Long:  `Sends a single HTTP request and prints the response body. The status line goes to stderr.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read()
		if err != nil {
			return err
		}

		sendOpts.method = args[0]
		sendOpts.url = args[1]
		sendOpts.timeout, err = timeoutSetting(cfg, cmd.Flags())
		if err != nil {
			return err
		}
		sendOpts.envFiles, err = envFilesSetting(cfg, cmd.Flags())
		if err != nil {
			return err
		}

		if !sendOpts.curl && (!sendOpts.noHistory || sendOpts.saveTo != 0) {
			st, err := openStore(cmd.Context(), cfg, cmd.Flags())
			if err != nil {
				return err
			}
			defer st.Close()
			sendOpts.store = st
		}

		t := term.FromEnv()
		sendOpts.colorize = t.IsColorEnabled()
		sendOpts.pretty = t.IsTerminalOutput()

		return send(cmd.Context(), sendOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
	Example: `  gh-apitest send GET https://api.example.com/users
  gh-apitest send POST https://api.example.com/users -H 'Content-Type: application/json' -d '{"name":"ada"}'
  gh-apitest send -I HEAD https://example.com
  gh-apitest send --curl PUT https://api.example.com/users/1 -d '{}'
  gh-apitest send GET https://api.example.com/users --save-to 1 --name "list users"`,
}

type sendOptions struct {
	method    string
	url       string
	headers   []string
	data      string
	envFiles  []string
	timeout   time.Duration
	follow    bool
	curl      bool
	include   bool
	noHistory bool
	saveTo    int64
	name      string
	colorize  bool
	pretty    bool

	store     *store.Store
	transport http.RoundTripper
}

var sendOpts sendOptions

func init() {
	sendCmd.Flags().StringArrayVarP(&sendOpts.headers, "header", "H", nil, "Add a request header, e.g. 'Accept: application/json' (repeatable)")
	sendCmd.Flags().StringVarP(&sendOpts.data, "data", "d", "", "Request body (ignored for GET and HEAD)")
	sendCmd.Flags().StringArray("env", nil, "Read {{NAME}} placeholder values from a dotenv file (repeatable)")
	sendCmd.Flags().String("timeout", "", "Request timeout, e.g. 10s (default 30s)")
	sendCmd.Flags().BoolVarP(&sendOpts.follow, "location", "L", false, "Follow redirects")
	sendCmd.Flags().BoolVar(&sendOpts.curl, "curl", false, "Print the equivalent curl command instead of sending")
	sendCmd.Flags().BoolVarP(&sendOpts.include, "include", "I", false, "Print the response headers before the body")
	sendCmd.Flags().BoolVar(&sendOpts.noHistory, "no-history", false, "Do not record the exchange in the history")
	sendCmd.Flags().Int64Var(&sendOpts.saveTo, "save-to", 0, "Save the request to the collection with this id")
	sendCmd.Flags().StringVar(&sendOpts.name, "name", "", "Name of the saved request (default METHOD URL)")
}

func send(ctx context.Context, opts sendOptions, out, errOut io.Writer) error {
	env, err := suite.LoadEnv(opts.envFiles...)
	if err != nil {
		return err
	}

	spec := request.New(opts.method,
		env.Expand(opts.url),
		env.Expand(strings.Join(opts.headers, "\n")),
		env.Expand(opts.data))
	if spec.URL == "" {
		return request.ErrEmptyURL
	}

	if opts.curl {
		fmt.Fprintln(out, spec.Curl())
		return nil
	}

	if opts.store != nil && opts.saveTo != 0 {
		name := opts.name
		if name == "" {
			name = fmt.Sprintf("%s %s", spec.Method, opts.url)
		}
		id, err := opts.store.SaveRequest(ctx, store.Request{
			CollectionID: opts.saveTo,
			Name:         name,
			Method:       string(spec.Method),
			URL:          opts.url,
			Headers:      strings.Join(opts.headers, "\n"),
			Body:         opts.data,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "Saved request %d to collection %d\n", id, opts.saveTo)
	}

	client := httpclient.New(httpclient.Options{
		Transport:       opts.transport,
		FollowRedirects: opts.follow,
		Dump:            dumpWriter(),
		Colorize:        opts.colorize,
	})
	res, err := exchange.New(client, opts.timeout, newLogger()).Do(ctx, spec)
	if err != nil {
		return err
	}

	if opts.store != nil && !opts.noHistory {
		_, err := opts.store.SaveHistory(ctx, store.HistoryEntry{
			Method:          string(spec.Method),
			URL:             spec.URL,
			Headers:         spec.HeaderBlock(),
			Body:            string(spec.Body),
			Response:        res.Body,
			ResponseHeaders: res.Headers,
			StatusCode:      res.StatusCode,
			ResponseTime:    res.Elapsed,
		})
		if err != nil {
			return err
		}
	}

	if res.Failed() {
		return res.Err
	}

	fmt.Fprintf(errOut, "HTTP %d %s (%dms, %s)\n",
		res.StatusCode, http.StatusText(res.StatusCode), res.ElapsedMS(), humanize.Bytes(uint64(len(res.Body))))

	if opts.include {
		fmt.Fprintf(out, "%s\n\n", res.Headers)
	}
	return writeBody(out, res, opts.pretty, opts.colorize)
}

func writeBody(out io.Writer, res exchange.Result, pretty, colorize bool) error {
	if pretty && isJSON(res.Headers) {
		err := jsonpretty.Format(out, strings.NewReader(res.Body), "  ", colorize)
		if err == nil {
			return nil
		}
	}

	if _, err := io.WriteString(out, res.Body); err != nil {
		return err
	}
	if res.Body != "" && !strings.HasSuffix(res.Body, "\n") {
		_, err := io.WriteString(out, "\n")
		return err
	}
	return nil
}

func isJSON(headers string) bool {
	scanner := bufio.NewScanner(strings.NewReader(headers))
	for scanner.Scan() {
		name, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Type") {
			return strings.Contains(strings.ToLower(value), "json")
		}
	}
	return false
}
