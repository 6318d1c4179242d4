package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nao-Mk2/aws-log-browser/cmd"
	"github.com/Nao-Mk2/aws-log-browser/internal/client"
	appconfig "github.com/Nao-Mk2/aws-log-browser/internal/config"
	"github.com/Nao-Mk2/aws-log-browser/internal/inspector"
	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/paginate"
	"github.com/Nao-Mk2/aws-log-browser/internal/server"
	"github.com/Nao-Mk2/aws-log-browser/internal/store"
	"github.com/Nao-Mk2/aws-log-browser/internal/util"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: aws-log-browser [flags] [serve|groups|streams <group>|search]")
	fmt.Fprintln(os.Stderr, "  serve    run the HTTP/WebSocket browser (default)")
	fmt.Fprintln(os.Stderr, "  groups   list log groups")
	fmt.Fprintln(os.Stderr, "  streams  list streams of a group, most recent first")
	fmt.Fprintln(os.Stderr, "  search   search --groups g1,g2 [--filter-pattern p] [--stream s] [--start RFC3339] [--end RFC3339]")
	fmt.Fprintln(os.Stderr, "Environment: LOG_GROUP_NAMES, LOG_BROWSER_CONFIG, AWS_REGION, AWS_PROFILE; AWS credentials from default sources.")
	os.Exit(2)
}

func main() {
	opts := cmd.CollectOptions()
	if msg, code := opts.Validate(); code != 0 {
		if msg == "" {
			usage()
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(code)
	}

	cfg, err := appconfig.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	opts.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	cw, err := client.NewCloudWatchClient(ctx, opts.BuildCloudWatchOptions()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create CloudWatch client: %v\n", err)
		os.Exit(1)
	}
	backend := client.NewBackend(cw, cfg.AWS.GroupPrefix)

	switch opts.Command {
	case cmd.CommandServe:
		serve(ctx, cfg, backend)
	case cmd.CommandGroups:
		groups, err := paginate.FetchAll(ctx, backend.ListGroups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list groups error: %v\n", err)
			os.Exit(1)
		}
		printNames(opts, groups, model.GroupName)
	case cmd.CommandStreams:
		group := opts.StreamsGroup()
		streams, err := paginate.FetchAll(ctx, func(ctx context.Context, token *string) (model.Page[model.LogStream], error) {
			return backend.ListStreams(ctx, group, token)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "list streams error: %v\n", err)
			os.Exit(1)
		}
		printNames(opts, streams, model.StreamName)
	case cmd.CommandSearch:
		search(ctx, opts, cfg, backend)
	}
}

func serve(ctx context.Context, cfg appconfig.Config, backend *client.Backend) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open export store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	srv := server.New(&server.Config{
		Backend:        backend,
		Store:          st,
		Debounce:       cfg.Debounce(),
		SearchLimit:    cfg.SearchLimit,
		RowSize:        cfg.Window.RowSize,
		Overscan:       cfg.Window.Overscan,
		Extent:         cfg.Window.Extent,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
	})

	// Prime the catalog; a failure is visible in the session and can be retried.
	loadCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	if err := srv.Coordinator().LoadGroups(loadCtx); err != nil {
		log.Printf("initial group load failed: %v", err)
	}
	cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Listen) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	case s := <-sig:
		log.Printf("Received %s, shutting down", s)
		if err := srv.Stop(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}

func printNames[T any](opts *cmd.Options, items []T, name func(T) string) {
	if opts.PrettyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	w := bufio.NewWriter(os.Stdout)
	for _, it := range items {
		fmt.Fprintln(w, name(it))
	}
	_ = w.Flush()
}

func search(ctx context.Context, opts *cmd.Options, cfg appconfig.Config, backend *client.Backend) {
	groups := cmd.ParseGroupsCSV(opts.GroupsCSV)

	// Resolve search window: RFC3339 flags or last 24h by default
	start, end, err := cmd.ResolveTimeWindow(opts.StartRFC3339, opts.EndRFC3339, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid time window: %v\n", err)
		os.Exit(2)
	}
	criteria := model.SearchCriteria{
		StreamName:    opts.Stream,
		FilterPattern: opts.FilterPattern,
		StartTime:     &start,
		EndTime:       &end,
		Limit:         cfg.SearchLimit,
	}

	insp := inspector.New(backend, groups)
	insp.SetWorkers(opts.Concurrency)
	records, err := insp.Search(ctx, criteria)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		windowMsg := "in the last 24h."
		if opts.StartRFC3339 != "" || opts.EndRFC3339 != "" {
			windowMsg = fmt.Sprintf("between %s and %s.", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
		}
		fmt.Printf("No logs found for the given pattern `%s` %s\n", opts.FilterPattern, windowMsg)
		return
	}

	if opts.Extract == "" {
		if opts.PrettyJSON {
			encodeRecords(records, true)
			return
		}
		w := bufio.NewWriter(os.Stdout)
		for _, r := range records {
			ts := r.Timestamp.UTC().Format(time.RFC3339)
			fmt.Fprintf(w, "%s %s/%s %s\n", ts, r.LogGroup, r.LogStream, r.Message)
		}
		_ = w.Flush()
		return
	}

	extractName, extractPath, err := opts.ParseExtractSpec()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	events := inspector.Events(records)

	if opts.NextFilter == "" {
		extracted, ok, err := util.ExtractFirstValue(events, extractPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "extract error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no extractable value found from initial logs")
			os.Exit(3)
		}
		if err := json.NewEncoder(os.Stdout).Encode(map[string]string{"value": extracted}); err != nil {
			fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	nextPattern, _, ok, err := util.NextPattern(events, extractName, extractPath, opts.NextFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "next-filter build error: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "no extractable value found from initial logs")
		os.Exit(3)
	}

	criteria.FilterPattern = nextPattern
	nextRecords, err := insp.Search(ctx, criteria)
	if err != nil {
		fmt.Fprintf(os.Stderr, "second search error: %v\n", err)
		os.Exit(1)
	}
	encodeRecords(nextRecords, opts.PrettyJSON)
}

func encodeRecords(records []inspector.LogRecord, pretty bool) {
	if records == nil {
		records = []inspector.LogRecord{}
	}
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}
}
