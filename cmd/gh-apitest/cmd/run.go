package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cli/go-gh/pkg/config"
	ghmarkdown "github.com/cli/go-gh/pkg/markdown"
	"github.com/cli/go-gh/pkg/term"
	"github.com/spf13/cobra"

	"github.com/rneatherway/gh-apitest/internal/cassette"
	"github.com/rneatherway/gh-apitest/internal/event"
	"github.com/rneatherway/gh-apitest/internal/exchange"
	"github.com/rneatherway/gh-apitest/internal/gh"
	"github.com/rneatherway/gh-apitest/internal/httpclient"
	"github.com/rneatherway/gh-apitest/internal/markdown"
	"github.com/rneatherway/gh-apitest/internal/report"
	"github.com/rneatherway/gh-apitest/internal/runner"
	"github.com/rneatherway/gh-apitest/internal/store"
	"github.com/rneatherway/gh-apitest/internal/stream"
	"github.com/rneatherway/gh-apitest/internal/suite"
)

var ErrTestsFailed = errors.New("test cases failed")

var runCmd = &cobra.Command{
	Use:   "run [flags] [<SUITE>]",
	Short: "Runs a test suite and reports the results",
	Long:  `Runs the cases of a YAML suite file, or the requests of a saved collection, one after another and reports which passed.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			runOpts.suiteFile = args[0]
		}

		runOpts.timeout, err = timeoutSetting(cfg, cmd.Flags())
		if err != nil {
			return err
		}
		runOpts.timeoutSet = cmd.Flags().Changed("timeout")
		runOpts.render = term.FromEnv().IsTerminalOutput()
		runOpts.envFiles, err = envFilesSetting(cfg, cmd.Flags())
		if err != nil {
			return err
		}

		if !runOpts.noHistory || runOpts.collectionID != 0 {
			st, err := openStore(cmd.Context(), cfg, cmd.Flags())
			if err != nil {
				return err
			}
			defer st.Close()
			runOpts.store = st
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runSuite(ctx, runOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
	Example: `  gh-apitest run suite.yaml
  gh-apitest run --env .env --env .env.local suite.yaml
  gh-apitest run --case 3 suite.yaml
  gh-apitest run -c 1 --json results.json --xlsx results.xlsx
  gh-apitest run -i https://github.com/owner/repo suite.yaml
  gh-apitest run --listen localhost:8765 suite.yaml`,
}

type runOptions struct {
	suiteFile    string
	collectionID int64
	caseID       int
	envFiles     []string
	timeout      time.Duration
	timeoutSet   bool
	follow       bool
	record       string
	replay       string
	xlsxFile     string
	jsonFile     string
	issue        string
	details      bool
	listen       string
	noHistory    bool
	markdown     bool
	render       bool

	store *store.Store
	// transport overrides http.DefaultTransport.
	transport http.RoundTripper
}

var runOpts runOptions

func init() {
	runCmd.Flags().Int64VarP(&runOpts.collectionID, "collection", "c", 0, "Run the requests of a saved collection instead of a suite file")
	runCmd.Flags().IntVar(&runOpts.caseID, "case", 0, "Run only the case with this id")
	runCmd.Flags().StringArray("env", nil, "Read {{NAME}} placeholder values from a dotenv file (repeatable)")
	runCmd.Flags().String("timeout", "", "Per request timeout, e.g. 10s (default 30s)")
	runCmd.Flags().BoolVarP(&runOpts.follow, "location", "L", false, "Follow redirects")
	runCmd.Flags().StringVar(&runOpts.record, "record", "", "Record every exchange to a cassette file")
	runCmd.Flags().StringVar(&runOpts.replay, "replay", "", "Answer requests from a cassette file instead of the network")
	runCmd.Flags().StringVar(&runOpts.xlsxFile, "xlsx", "", "Add the results as a new sheet of an Excel workbook")
	runCmd.Flags().StringVar(&runOpts.jsonFile, "json", "", "Write the results to a JSON file")
	runCmd.Flags().StringVarP(&runOpts.issue, "issue", "i", "", "The URL of a repository to post the results as a new issue, or the URL of an issue to add a comment to")
	runCmd.Flags().BoolVarP(&runOpts.details, "details", "d", false, "Wrap the markdown posted to an issue in HTML <details> tags")
	runCmd.Flags().StringVar(&runOpts.listen, "listen", "", "Serve the run's events over a websocket at this address")
	runCmd.Flags().BoolVar(&runOpts.noHistory, "no-history", false, "Do not record the exchanges in the history")
	runCmd.Flags().BoolVarP(&runOpts.markdown, "markdown", "m", false, "Print the results as markdown instead of a table")
}

func loadSuite(ctx context.Context, opts runOptions, env suite.Env) (*suite.Suite, error) {
	switch {
	case opts.suiteFile != "" && opts.collectionID != 0:
		return nil, errors.New("specify either a suite file or --collection, not both")
	case opts.suiteFile != "":
		return suite.Load(opts.suiteFile, env)
	case opts.collectionID != 0:
		if opts.store == nil {
			return nil, errors.New("no database available")
		}
		c, err := opts.store.Collection(ctx, opts.collectionID)
		if err != nil {
			return nil, err
		}
		reqs, err := opts.store.Requests(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			return nil, fmt.Errorf("collection %q has no requests", c.Name)
		}
		return suite.FromRequests(c.Name, reqs, env), nil
	default:
		return nil, errors.New("the required argument <SUITE> was not provided (or use --collection)")
	}
}

func runSuite(ctx context.Context, opts runOptions, out, errOut io.Writer) error {
	repoUrl, issueUrl, err := parseIssueTarget(opts.issue)
	if err != nil {
		return err
	}

	env, err := suite.LoadEnv(opts.envFiles...)
	if err != nil {
		return err
	}

	s, err := loadSuite(ctx, opts, env)
	if err != nil {
		return err
	}
	if opts.caseID != 0 {
		if _, ok := s.Case(opts.caseID); !ok {
			return fmt.Errorf("%w: %d", runner.ErrUnknownCase, opts.caseID)
		}
	}

	timeout := opts.timeout
	if s.Timeout != 0 && !opts.timeoutSet {
		timeout = s.Timeout
	}

	logger := newLogger()

	transport := opts.transport
	if opts.replay != "" {
		replayer, err := cassette.NewReplayer(opts.replay)
		if err != nil {
			return err
		}
		transport = replayer
	}
	if opts.record != "" {
		recorder := cassette.NewRecorder(opts.record, transport)
		defer func() {
			if err := recorder.Close(); err != nil {
				fmt.Fprintf(errOut, "could not write cassette: %v\n", err)
			}
		}()
		transport = recorder
	}

	client := httpclient.New(httpclient.Options{
		Transport:       transport,
		FollowRedirects: opts.follow,
		Dump:            dumpWriter(),
		Colorize:        term.FromEnv().IsColorEnabled(),
	})
	bus := event.NewBus()
	r := runner.New(exchange.New(client, timeout, logger), bus, logger)
	defer r.Close()

	names := map[int]string{}
	for _, c := range s.Cases {
		names[c.ID] = c.Name
		if err := r.AddCase(c); err != nil {
			return err
		}
	}

	unsubscribe := bus.Subscribe(progressPrinter(errOut, names))
	defer unsubscribe()

	if opts.listen != "" {
		shutdown, err := serveEvents(opts.listen, bus, logger, errOut)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	started := time.Now()
	if opts.caseID != 0 {
		err = r.RunOne(opts.caseID)
	} else {
		err = r.RunAll()
	}
	if err != nil {
		return err
	}

	if err := r.Wait(ctx); err != nil {
		r.ClearTests()
		return err
	}

	cases := r.Cases()
	if opts.caseID != 0 {
		c, _ := r.Case(opts.caseID)
		cases = []runner.Case{c}
	}

	run := report.Run{
		Name:     s.Name,
		RunID:    store.NewRunID(),
		Started:  started,
		Duration: time.Since(started),
		Cases:    cases,
	}

	if opts.store != nil && !opts.noHistory {
		if err := saveRunHistory(ctx, opts.store, run); err != nil {
			return err
		}
	}

	if opts.markdown {
		if err := printMarkdown(out, run, opts.render); err != nil {
			return err
		}
	} else {
		report.WriteTable(out, run)
	}

	if opts.jsonFile != "" {
		if err := writeJSONReport(opts.jsonFile, run); err != nil {
			return err
		}
	}
	if opts.xlsxFile != "" {
		sheet, err := report.WriteXLSX(opts.xlsxFile, run)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "Results saved to sheet %q of %s\n", sheet, opts.xlsxFile)
	}

	if repoUrl != "" || issueUrl != "" {
		output := markdown.FromRun(run)
		if opts.details {
			output = markdown.WrapInDetails(output)
		}
		title := "API test run"
		if s.Name != "" {
			title = fmt.Sprintf("API test run of `%s`", s.Name)
		}

		if repoUrl != "" {
			err = gh.NewIssue(repoUrl, title, output)
		} else {
			err = gh.AddComment(issueUrl, title, output)
		}
		if err != nil {
			return err
		}
	}

	if summary := run.Summary(); !summary.OK() {
		return fmt.Errorf("%w: %d of %d", ErrTestsFailed, summary.Failed+summary.NotRun, summary.Total)
	}
	return nil
}

func printMarkdown(out io.Writer, run report.Run, render bool) error {
	output := markdown.FromRun(run)
	if render {
		rendered, err := ghmarkdown.Render(output)
		if err != nil {
			return err
		}
		output = rendered
	}
	_, err := io.WriteString(out, output)
	return err
}

func progressPrinter(w io.Writer, names map[int]string) func(event.Event) {
	return func(e event.Event) {
		switch e.Type {
		case event.CaseStarted:
			fmt.Fprintf(w, "  ... [%d] %s\n", e.CaseID, names[e.CaseID])
		case event.CaseCompleted:
			mark := "FAIL"
			if e.Passed {
				mark = "ok"
			}
			fmt.Fprintf(w, "  %-4s [%d] %s\n", mark, e.CaseID, names[e.CaseID])
		}
	}
}

func saveRunHistory(ctx context.Context, st *store.Store, run report.Run) error {
	for _, c := range run.Cases {
		if c.Status != runner.Passed && c.Status != runner.Failed {
			continue
		}
		_, err := st.SaveHistory(ctx, store.HistoryEntry{
			RunID:           run.RunID,
			Method:          string(c.Request.Method),
			URL:             c.Request.URL,
			Headers:         c.Request.HeaderBlock(),
			Body:            string(c.Request.Body),
			Response:        c.ActualBody,
			ResponseHeaders: c.ActualHeaders,
			StatusCode:      c.ActualStatus,
			ResponseTime:    c.ResponseTime,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeJSONReport(path string, run report.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(f, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func serveEvents(addr string, bus *event.Bus, logger *log.Logger, errOut io.Writer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	h := stream.NewHandler(bus, logger)
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("run: event server stopped err=%v", err)
		}
	}()
	fmt.Fprintf(errOut, "Streaming events on ws://%s%s\n", ln.Addr(), stream.EventsPath)

	return func() {
		h.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func dumpWriter() io.Writer {
	if verbose {
		return os.Stderr
	}
	return nil
}
