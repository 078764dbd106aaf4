package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"

	"github.com/infoboard/infoboard/cmd/common"
	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/config"
	"github.com/infoboard/infoboard/pkg/tabular"
)

// showSpinner reports whether progress should be drawn on stderr.
var showSpinner = func() bool {
	f, ok := stderr.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func fetch(ctx *cli.Context) error {
	target := ctx.Args().First()
	if target == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("missing feed name or URL"))
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "fetch", "load_config", err)
		return nil
	}
	fetcher := tabular.NewFetcher(tabular.Options{
		Retry:   cfg.RetryPolicy(),
		Timeout: cfg.FetchTimeout,
		Log:     newLogger(),
	})

	var spin *common.Spinner
	if showSpinner() {
		spin = common.StartSpinner(stderr, "Fetching "+target)
	}
	err = fetchAndPrint(context.Background(), stdout, fetcher, cfg, target)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		common.PrintRuntimeErr(ctx, "fetch", target, err)
	}
	return nil
}

// fetchAndPrint prints a configured feed the way the board shows it, or any
// other URL as its newest rows.
func fetchAndPrint(ctx context.Context, w io.Writer, f board.Fetcher, cfg *config.Config, target string) error {
	var feed *board.Feed
	switch target {
	case board.FeedProjects:
		fd := board.ProjectsFeed(cfg.ProjectsURL)
		feed = &fd
	case board.FeedFlights:
		fd := board.FlightsFeed(cfg.FlightsURL)
		feed = &fd
	}

	url := target
	if feed != nil {
		if feed.URL == "" {
			return fmt.Errorf("error: %s feed URL not configured", feed.Name)
		}
		url = feed.URL
	}
	d, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}

	if feed == nil {
		latest := tabular.Latest(d.Rows, cfg.MaxRows)
		printTable(w, d.RawHeaders, latest)
		fmt.Fprintf(w, "\n%d of %d rows, newest first\n", len(latest), len(d.Rows))
		return nil
	}
	t, err := board.BuildTable(*feed, d, cfg.MaxRows, false)
	if err != nil {
		return err
	}
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Cells
		if r.Status != "" {
			rows[i] = append(append([]string(nil), r.Cells...), "("+string(r.Status)+")")
		}
	}
	printTable(w, t.Columns, rows)
	fmt.Fprintf(w, "\n%d of %d rows, newest first\n", len(t.Rows), t.Count)
	return nil
}
