package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/infoboard/infoboard/cmd/common"
	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/config"
	"github.com/infoboard/infoboard/internal/db"
	"github.com/infoboard/infoboard/internal/display"
	"github.com/infoboard/infoboard/internal/objstore"
	"github.com/infoboard/infoboard/internal/server"
	"github.com/infoboard/infoboard/internal/telemetry"
	"github.com/infoboard/infoboard/internal/urlcache"
	"github.com/infoboard/infoboard/pkg/logger"
	"github.com/infoboard/infoboard/pkg/tabular"
)

// components is everything the run command wires together.
type components struct {
	storage  *storage
	board    *board.Board
	surface  *server.Surface
	engine   *display.Engine
	server   *server.Server
	log      logger.Logger
	shutdown func(context.Context) error
}

// Close releases resources in reverse order of initialization.
func (c *components) Close() {
	if c.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), DEF_SHUTDOWN_TIMEOUT)
		defer cancel()
		if err := c.shutdown(ctx); err != nil {
			c.log.Warning("telemetry shutdown: %v", err)
		}
	}
	if c.storage != nil {
		_ = c.storage.Close()
	}
}

var initComponents = func(ctx context.Context, cfg *config.Config, l logger.Logger) (*components, error) {
	c := &components{log: l}

	shutdown, err := telemetry.Setup(ctx, "infoboard", currentBuildArgs.Version, cfg.OTLPEndpoint)
	if err != nil {
		l.Warning("telemetry disabled: %v", err)
	}
	c.shutdown = shutdown

	c.storage, err = openStorage(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	fetcher := tabular.NewFetcher(tabular.Options{
		Retry:   cfg.RetryPolicy(),
		Timeout: cfg.FetchTimeout,
		Log:     l,
	})
	c.board = board.New(fetcher, []board.Feed{
		board.ProjectsFeed(cfg.ProjectsURL),
		board.FlightsFeed(cfg.FlightsURL),
	}, board.Options{
		MaxRows:   cfg.MaxRows,
		PadRows:   cfg.PadRows,
		Snapshots: db.NewSnapshotStore(c.storage.db),
		Log:       l,
	})
	if err := c.board.Restore(ctx); err != nil {
		l.Warning("board: restore snapshots: %v", err)
	}

	token, err := adminToken(cfg, l)
	if err != nil {
		l.Warning("admin endpoint disabled: %v", err)
	}

	manifests := c.storage.manifests(cfg, l)
	notifier := server.NewRPCNotifier(l)
	c.surface = server.NewSurface(notifier, l)
	c.engine = display.NewEngine(display.EngineOptions{
		Machine:               cfg.Machine(),
		ReadManifestOnStartup: cfg.ReadManifestOnStartup,
		ManifestCron:          cfg.ManifestCron,
		Log:                   l,
	}, c.surface, c.board, manifests, urlcache.New(c.storage.objects))
	c.server = server.New(server.Config{
		Addr:           cfg.Listen,
		AdminToken:     token,
		Version:        currentBuildArgs.Version,
		Commit:         currentBuildArgs.Commit,
		BuildType:      currentBuildArgs.BuildType,
		AllowedOrigins: cfg.AllowedOrigins,
	}, l, c.engine, manifests, c.surface, notifier, objstore.NewHandler(c.storage.objects))
	return c, nil
}

func run(ctx *cli.Context) error {
	if ctx.NArg() > 0 {
		return common.PrintErrWithHelp(ctx, errors.New("unknown command: "+ctx.Args().First()))
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "run", "load_config", err)
		return nil
	}
	l := withLogFile(cfg, newLogger())
	defer l.Close()

	sigCtx, cancel := setupShutdownHandler()
	defer cancel()

	c, err := initComponents(sigCtx, cfg, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "run", "init", err)
		return nil
	}
	defer c.Close()

	return serve(sigCtx, c)
}

// serve runs the engine, the push queue and the HTTP server until ctx is
// done or one of them fails.
func serve(ctx context.Context, c *components) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.surface.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return c.engine.Run(gctx)
	})
	g.Go(c.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), DEF_SHUTDOWN_TIMEOUT)
		defer cancel()
		return c.server.Shutdown(sctx)
	})
	err := g.Wait()
	c.log.Info("infoboard stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
